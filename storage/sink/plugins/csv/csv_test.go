package csv_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrife/placement/storage/sink/plugins/csv"
)

func TestHeaderWrittenOnce(t *testing.T) {
	dir, err := ioutil.TempDir("", "csv-sink")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "decisions.csv")
	header := []string{"timestamp", "predicted_leader_ip"}

	if err := csv.New(csv.CSVSinkConfig{Path: path}).Append(header, [][]string{{"2024-01-01 00:00:00", "10.0.0.1"}}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	// a second sink over the same file appends below the existing header
	if err := csv.New(csv.CSVSinkConfig{Path: path}).Append(header, [][]string{{"2024-01-01 00:00:15", "10.0.0.2"}}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	contents, err := ioutil.ReadFile(path)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	expected := "timestamp,predicted_leader_ip\n2024-01-01 00:00:00,10.0.0.1\n2024-01-01 00:00:15,10.0.0.2\n"

	if string(contents) != expected {
		t.Fatalf("expected %q, got %q", expected, string(contents))
	}
}

func TestEmptyFileGetsHeader(t *testing.T) {
	dir, err := ioutil.TempDir("", "csv-sink")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "metrics.csv")

	if err := ioutil.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := csv.New(csv.CSVSinkConfig{Path: path}).Append([]string{"ts", "rounds"}, [][]string{{"2024-01-01 00:00", "3"}}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	contents, err := ioutil.ReadFile(path)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if string(contents) != "ts,rounds\n2024-01-01 00:00,3\n" {
		t.Fatalf("unexpected contents %q", string(contents))
	}
}

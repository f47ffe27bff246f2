package plugins_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/placement/storage/sink"
	"github.com/jrife/placement/storage/sink/plugins"
)

func TestSinkDrivers(t *testing.T) {
	for _, plugin := range plugins.Plugins() {
		t.Run(plugin.Name(), driverTest(plugin))
	}
}

func TestPluginLookup(t *testing.T) {
	for _, name := range []string{"csv", "bbolt"} {
		if plugins.Plugin(name) == nil {
			t.Fatalf("expected plugin %s to be registered", name)
		}
	}

	if plugins.Plugin("nope") != nil {
		t.Fatalf("expected no plugin named nope")
	}
}

func driverTest(plugin sink.Plugin) func(t *testing.T) {
	return func(t *testing.T) {
		t.Run("append-read", func(t *testing.T) {
			s, err := plugin.NewTempSink()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			defer s.Delete()

			rows, err := s.Read()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if len(rows) != 0 {
				t.Fatalf("expected new sink to be empty, got %#v", rows)
			}

			header := []string{"timestamp", "predicted_leader_ip"}

			if err := s.Append(header, [][]string{{"t1", "a"}, {"t2", "b"}}); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if err := s.Append(header, [][]string{{"t3", "c"}}); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			rows, err = s.Read()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			expected := [][]string{{"t1", "a"}, {"t2", "b"}, {"t3", "c"}}

			if diff := cmp.Diff(expected, rows); diff != "" {
				t.Fatal(diff)
			}
		})

		t.Run("header-mismatch", func(t *testing.T) {
			s, err := plugin.NewTempSink()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			defer s.Delete()

			if err := s.Append([]string{"a", "b"}, [][]string{{"1", "2"}}); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if err := s.Append([]string{"a", "c"}, [][]string{{"1", "2"}}); !errors.Is(err, sink.ErrHeaderMismatch) {
				t.Fatalf("expected ErrHeaderMismatch, got %#v", err)
			}

			rows, err := s.Read()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if len(rows) != 1 {
				t.Fatalf("expected the rejected append to write nothing, got %#v", rows)
			}
		})

		t.Run("closed", func(t *testing.T) {
			s, err := plugin.NewTempSink()

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			defer s.Delete()

			if err := s.Close(); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if err := s.Append([]string{"a"}, [][]string{{"1"}}); !errors.Is(err, sink.ErrClosed) {
				t.Fatalf("expected ErrClosed, got %#v", err)
			}
		})
	}
}

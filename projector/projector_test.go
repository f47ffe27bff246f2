package projector_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/projector"
	"github.com/jrife/placement/replica"
)

type staticResolver map[string]string

func (resolver staticResolver) HostOf(node string) (string, bool) {
	host, ok := resolver[node]

	return host, ok
}

func TestProject(t *testing.T) {
	p := projector.New(projector.Config{
		Resolver: staticResolver{
			"b": "10.0.0.2",
			"a": "10.0.0.1",
			"z": "10.0.0.9",
		},
	})

	window := forecast.Window{
		Timestamps: []time.Time{time.Unix(1, 0), time.Unix(2, 0), time.Unix(3, 0)},
		Columns:    []string{"b_write", "b_read", "a_write", "a_read", "z_write", "z_read", "unknown_read", "label"},
		Rows: [][]float64{
			{1, 2, 4, 10, 0, 0, 5, 100},
			{2, 2, 5, 11, 0, 0, 5, 100},
			{3, 5, 6, 12, 0, 0, 5, 100},
		},
	}

	expected := []replica.Replica{
		{ID: "a", Address: "10.0.0.1", Weight: 1, Read: 11, Write: 5},
		{ID: "b", Address: "10.0.0.2", Weight: 1, Read: 3, Write: 2},
	}

	if diff := cmp.Diff(expected, p.Project(window)); diff != "" {
		t.Fatal(diff)
	}
}

func TestProjectEmpty(t *testing.T) {
	p := projector.New(projector.Config{Resolver: staticResolver{}})

	if replicas := p.Project(forecast.Window{}); len(replicas) != 0 {
		t.Fatalf("expected no replicas, got %#v", replicas)
	}
}

func TestProjectReadOnly(t *testing.T) {
	p := projector.New(projector.Config{Resolver: staticResolver{"a": "10.0.0.1"}})

	replicas := p.Project(forecast.Window{
		Columns: []string{"a_read"},
		Rows:    [][]float64{{1}, {3}},
	})

	expected := []replica.Replica{{ID: "a", Address: "10.0.0.1", Weight: 1, Read: 2}}

	if diff := cmp.Diff(expected, replicas); diff != "" {
		t.Fatal(diff)
	}
}

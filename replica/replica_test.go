package replica_test

import (
	"testing"

	"github.com/jrife/placement/replica"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestQuorumSize(t *testing.T) {
	testCases := map[string]struct {
		replicas []replica.Replica
		quorum   int
	}{
		"empty": {
			replicas: nil,
			quorum:   1,
		},
		"one": {
			replicas: []replica.Replica{{ID: "a"}},
			quorum:   1,
		},
		"three-default-weight": {
			replicas: []replica.Replica{{ID: "a"}, {ID: "b"}, {ID: "c"}},
			quorum:   2,
		},
		"four-default-weight": {
			replicas: []replica.Replica{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
			quorum:   3,
		},
		"weighted": {
			replicas: []replica.Replica{{ID: "a", Weight: 3}, {ID: "b", Weight: 1}, {ID: "c", Weight: 1}},
			quorum:   3,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if quorum := replica.QuorumSize(testCase.replicas); quorum != testCase.quorum {
				t.Fatalf("expected quorum to be %d, got %d", testCase.quorum, quorum)
			}
		})
	}
}

func TestQuorumSizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("quorum is floor(total weight / 2) + 1 and at least 1", prop.ForAll(
		func(weights []int) bool {
			replicas := make([]replica.Replica, len(weights))
			total := 0

			for i, weight := range weights {
				replicas[i] = replica.Replica{Weight: weight}
				total += replicas[i].VotingWeight()
			}

			quorum := replica.QuorumSize(replicas)

			return quorum == total/2+1 && quorum >= 1
		},
		gen.SliceOf(gen.IntRange(-2, 5)),
	))

	properties.TestingRun(t)
}

func TestClusterViewTotalWrites(t *testing.T) {
	view := replica.NewClusterView([]replica.Replica{
		{ID: "a", Write: 5},
		{ID: "b", Write: 1},
		{ID: "c", Write: 1.5},
	}, nil)

	if view.Quorum != 2 {
		t.Fatalf("expected quorum to be 2, got %d", view.Quorum)
	}

	if total := view.TotalWrites(); total != 7.5 {
		t.Fatalf("expected total writes to be 7.5, got %f", total)
	}
}

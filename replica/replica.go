package replica

// Latencies describes a source of round-trip times
// between replica addresses. Implementations must
// never fail a lookup. Unknown addresses should
// yield a large penalty instead.
type Latencies interface {
	Latency(from, to string) float64
}

// Replica is one cluster member capable of holding
// leadership along with the read and write load
// projected for it. Replicas are rebuilt every tick
// and are never persisted.
type Replica struct {
	ID      string
	Address string
	// Weight is the voting weight of the replica.
	// Zero or negative values count as 1.
	Weight int
	Read   float64
	Write  float64
}

// VotingWeight returns the effective voting weight
func (replica Replica) VotingWeight() int {
	if replica.Weight <= 0 {
		return 1
	}

	return replica.Weight
}

// ClusterView is the set of live replicas together with
// the latency table and the quorum size derived from
// the replicas' voting weights.
type ClusterView struct {
	Replicas  []Replica
	Latencies Latencies
	Quorum    int
}

// NewClusterView builds a view and derives its quorum size
func NewClusterView(replicas []Replica, latencies Latencies) ClusterView {
	return ClusterView{
		Replicas:  replicas,
		Latencies: latencies,
		Quorum:    QuorumSize(replicas),
	}
}

// QuorumSize returns floor(totalVotingWeight/2)+1. It is
// always at least 1.
func QuorumSize(replicas []Replica) int {
	total := 0

	for _, replica := range replicas {
		total += replica.VotingWeight()
	}

	return total/2 + 1
}

// TotalWrites sums the projected write rate of every replica
func (view ClusterView) TotalWrites() float64 {
	var total float64

	for _, replica := range view.Replicas {
		total += replica.Write
	}

	return total
}

package topology

import "github.com/jrife/placement/replica"

// DefaultSentinel is the latency returned for
// addresses that are not in the table.
const DefaultSentinel = 999

var _ replica.Latencies = (*LatencyTable)(nil)

type addressPair struct {
	a string
	b string
}

func newAddressPair(a, b string) addressPair {
	if b < a {
		a, b = b, a
	}

	return addressPair{a: a, b: b}
}

// LatencyTable holds round-trip times between known
// addresses. Entries are symmetric. A LatencyTable is
// built once at startup and must not be modified after
// it is shared.
type LatencyTable struct {
	sentinel  float64
	addresses map[string]bool
	latencies map[addressPair]float64
}

// NewLatencyTable creates an empty table. Lookups involving
// unknown addresses return sentinel.
func NewLatencyTable(sentinel float64) *LatencyTable {
	return &LatencyTable{
		sentinel:  sentinel,
		addresses: make(map[string]bool),
		latencies: make(map[addressPair]float64),
	}
}

// Set records the round-trip time between a and b in
// both directions.
func (table *LatencyTable) Set(a, b string, rtt float64) {
	table.addresses[a] = true
	table.addresses[b] = true
	table.latencies[newAddressPair(a, b)] = rtt
}

// Latency implements replica.Latencies. The latency from
// a known address to itself is 0.
func (table *LatencyTable) Latency(from, to string) float64 {
	if !table.addresses[from] || !table.addresses[to] {
		return table.sentinel
	}

	if from == to {
		return 0
	}

	rtt, ok := table.latencies[newAddressPair(from, to)]

	if !ok {
		return table.sentinel
	}

	return rtt
}

// Sentinel returns the penalty used for unknown addresses
func (table *LatencyTable) Sentinel() float64 {
	return table.sentinel
}

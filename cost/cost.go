// Package cost scores candidate leaders for a cluster view
// and picks the one with the lowest projected, load-weighted
// request latency.
//
// Under the Quorum variant writes are quorum-gated: a write
// completes once enough followers acknowledge it, so its
// latency is an order statistic of the leader's peer
// latencies. Reads are served by the leader and cost the
// round trip between the leader and the reading replica.
//
//	W(L) = 0                               if quorum-1 <= 0
//	W(L) = (quorum-1)-th smallest d(L, i)  otherwise
//	T(L) = sum_i read_i * d(L, i) + W(L) * sum_i write_i
//
// where d(L, L) = 0. A candidate whose peers cannot form a
// quorum is infeasible and never chosen.
//
// The PointToPoint variant weights every request by the
// plain round trip to the leader and has no quorum gating:
//
//	T(L) = sum_i (read_i + write_i) * d(L, i)
//
// A candidate whose total cost is NaN or infinite is skipped.
// Candidates are evaluated in the order of view.Replicas.
// Ties resolve to the first candidate in that order.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/jrife/placement/replica"
	"github.com/jrife/placement/utils/sortedwindow"
	"go.uber.org/zap"
)

// Variant selects the cost formula
type Variant int

const (
	// Quorum gates writes on the quorum commit latency
	Quorum Variant = iota
	// PointToPoint weights all requests by the leader round trip
	PointToPoint
)

var (
	// ErrUnknownVariant is returned by ParseVariant for
	// unrecognized names
	ErrUnknownVariant = errors.New("unknown cost variant")
)

// ParseVariant parses a variant name
func ParseVariant(name string) (Variant, error) {
	switch name {
	case "", "quorum":
		return Quorum, nil
	case "point-to-point":
		return PointToPoint, nil
	}

	return Quorum, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

func (variant Variant) String() string {
	switch variant {
	case Quorum:
		return "quorum"
	case PointToPoint:
		return "point-to-point"
	}

	return fmt.Sprintf("Variant(%d)", int(variant))
}

// Result is the outcome of a cost evaluation
type Result struct {
	Leader replica.Replica
	Cost   float64
}

// ModelConfig contains configuration
// for a cost model
type ModelConfig struct {
	Logger  *zap.Logger
	Variant Variant
}

// Model evaluates leader candidates. It performs no I/O
// besides debug logging.
type Model struct {
	logger  *zap.Logger
	variant Variant
}

// New creates a cost model
func New(config ModelConfig) *Model {
	model := &Model{logger: config.Logger, variant: config.Variant}

	if model.logger == nil {
		model.logger = zap.L()
	}

	model.logger = model.logger.With(zap.Stringer("variant", model.variant))

	return model
}

// Optimal returns the candidate with the minimal total cost.
// ok is false when the view is empty or no candidate can
// form a quorum with a finite cost.
func (model *Model) Optimal(view replica.ClusterView) (result Result, ok bool) {
	for _, candidate := range view.Replicas {
		commit, feasible := model.CommitLatency(view, candidate)

		if !feasible {
			model.logger.Debug("candidate cannot form a quorum", zap.String("candidate", candidate.ID), zap.Int("quorum", view.Quorum))

			continue
		}

		total := model.TotalCost(view, candidate, commit)

		model.logger.Debug("candidate evaluated",
			zap.String("candidate", candidate.ID),
			zap.String("address", candidate.Address),
			zap.Float64("commit_latency", commit),
			zap.Float64("total_cost", total),
		)

		if math.IsNaN(total) || math.IsInf(total, 0) {
			model.logger.Warn("candidate has a non-finite cost", zap.String("candidate", candidate.ID), zap.Float64("total_cost", total))

			continue
		}

		// strict comparison keeps the first of equal-cost candidates
		if !ok || total < result.Cost {
			result = Result{Leader: candidate, Cost: total}
			ok = true
		}
	}

	return result, ok
}

// CommitLatency returns W(leader). feasible is false if the
// other replicas cannot supply quorum-1 acknowledgements.
// The PointToPoint variant has no commit latency and every
// candidate is feasible.
func (model *Model) CommitLatency(view replica.ClusterView, leader replica.Replica) (latency float64, feasible bool) {
	if model.variant == PointToPoint {
		return 0, true
	}

	followersNeeded := view.Quorum - 1

	if followersNeeded <= 0 {
		return 0, true
	}

	// Keep the followersNeeded smallest latencies. The largest
	// of them is when the quorum acknowledgement completes.
	window := sortedwindow.New(comparePeerLatency, sortedwindow.WithLimit(followersNeeded))

	for i, r := range view.Replicas {
		if r.ID == leader.ID {
			continue
		}

		window.Insert(peerLatency{latency: view.Latencies.Latency(leader.Address, r.Address), index: i})
	}

	if window.Size() < followersNeeded {
		return math.Inf(1), false
	}

	max, _ := window.Max()

	return max.(peerLatency).latency, true
}

// TotalCost returns T(leader) given its commit latency
func (model *Model) TotalCost(view replica.ClusterView, leader replica.Replica, commit float64) float64 {
	var total float64

	for _, r := range view.Replicas {
		d := model.distance(view, leader, r)

		switch model.variant {
		case PointToPoint:
			total += (r.Read + r.Write) * d
		default:
			total += r.Read * d
		}
	}

	if model.variant == Quorum {
		total += commit * view.TotalWrites()
	}

	return total
}

func (model *Model) distance(view replica.ClusterView, leader, r replica.Replica) float64 {
	if r.ID == leader.ID {
		return 0
	}

	return view.Latencies.Latency(leader.Address, r.Address)
}

// peerLatency is ordered by latency and then by position
// so equal latencies stay distinct in the window.
type peerLatency struct {
	latency float64
	index   int
}

func comparePeerLatency(a, b interface{}) int {
	pa := a.(peerLatency)
	pb := b.(peerLatency)

	switch {
	case pa.latency < pb.latency:
		return -1
	case pa.latency > pb.latency:
		return 1
	case pa.index < pb.index:
		return -1
	case pa.index > pb.index:
		return 1
	}

	return 0
}

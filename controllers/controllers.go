// Package controllers contains the placement control loop.
//
// A run moves through INIT, where the first forecaster is built
// and retried until it exists, and then evaluates one tick at a
// time. A tick forecasts load, projects it onto replicas and
// scores every candidate leader. Keep decisions are buffered and
// the loop sleeps until the next tick. A migrate decision is
// flushed with everything buffered before it, executed once and
// ends the run whatever the outcome. Restarting the process
// after a migration attempt is left to an outside supervisor.
package controllers

import (
	"context"
	"time"

	"github.com/jrife/placement/cost"
	"github.com/jrife/placement/decisionlog"
	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/metrics"
	"github.com/jrife/placement/migration"
	"github.com/jrife/placement/replica"
)

// Projector reduces a forecast window to replicas
type Projector interface {
	Project(window forecast.Window) []replica.Replica
}

// Scorer picks the optimal leader for a cluster view
type Scorer interface {
	Optimal(view replica.ClusterView) (cost.Result, bool)
}

// DecisionLog buffers decisions until a migration
type DecisionLog interface {
	Record(decision decisionlog.Decision) error
	Flush() error
}

// Executor carries out migrations
type Executor interface {
	Resolve(address string) (string, error)
	Migrate(ctx context.Context, self string, target string) (migration.Result, error)
}

// MetricsWriter persists migration metrics
type MetricsWriter interface {
	Write(migration metrics.Migration) error
}

// Reloader keeps the published forecaster current in the
// background once started
type Reloader interface {
	Start(ctx context.Context)
	Stop()
}

// Outcome says why a run ended
type Outcome int

const (
	// OutcomeCancelled means the context was cancelled
	OutcomeCancelled Outcome = iota
	// OutcomeTickCap means the configured tick cap was reached
	// without a migration
	OutcomeTickCap
	// OutcomeMigrated means a migration succeeded
	OutcomeMigrated
	// OutcomeMigrationFailed means a migration was attempted
	// and failed. It is not retried.
	OutcomeMigrationFailed
)

func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeTickCap:
		return "tick-cap"
	case OutcomeMigrated:
		return "migrated"
	case OutcomeMigrationFailed:
		return "migration-failed"
	}

	return "cancelled"
}

// Report summarizes a run
type Report struct {
	Outcome Outcome
	// Rounds is the number of ticks evaluated
	Rounds int
	// Active is the time spent evaluating ticks
	Active time.Duration
	// Target is the migration target, if any
	Target string
	// Migration describes the migration attempt, if any
	Migration migration.Result
	// Err is the migration error for OutcomeMigrationFailed
	Err error
}

// sleep waits for d or until ctx is done. It returns false if
// ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

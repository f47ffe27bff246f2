// Package metrics records what a placement run cost. Every
// migration attempt persists one Migration row through a
// sink. A Recorder additionally exposes live counters.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jrife/placement/storage/sink"
	"go.uber.org/zap"
)

// MinuteFormat is the layout of the minute-bucketed
// migration timestamp
const MinuteFormat = "2006-01-02 15:04"

// Header is the header row of the persisted migration metrics
var Header = []string{"ts", "rounds", "pred_active_ms", "move_ms", "total_active_ms"}

// Migration summarizes one run that ended in a migration
// attempt
type Migration struct {
	Timestamp time.Time
	// Rounds is the number of ticks evaluated
	Rounds int
	// Active is the time spent forecasting and scoring
	// across all rounds
	Active time.Duration
	// Move is the duration of the copy and transfer steps
	Move time.Duration
}

// Row returns the persisted form of the record
func (migration Migration) Row() []string {
	return []string{
		migration.Timestamp.Truncate(time.Minute).Format(MinuteFormat),
		strconv.Itoa(migration.Rounds),
		millis(migration.Active),
		millis(migration.Move),
		millis(migration.Active + migration.Move),
	}
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d)/float64(time.Millisecond))
}

// WriterConfig contains configuration
// for a Writer
type WriterConfig struct {
	Logger *zap.Logger
	Sink   sink.Sink
}

// Writer persists migration records
type Writer struct {
	logger *zap.Logger
	sink   sink.Sink
}

// NewWriter creates a migration metrics writer
func NewWriter(config WriterConfig) *Writer {
	writer := &Writer{logger: config.Logger, sink: config.Sink}

	if writer.logger == nil {
		writer.logger = zap.L()
	}

	writer.logger = writer.logger.With(zap.String("component", "metrics"))

	return writer
}

// Write appends one migration record
func (writer *Writer) Write(migration Migration) error {
	if err := writer.sink.Append(Header, [][]string{migration.Row()}); err != nil {
		return fmt.Errorf("could not write migration metrics: %w", err)
	}

	writer.logger.Info("wrote migration metrics",
		zap.Int("rounds", migration.Rounds),
		zap.Duration("active", migration.Active),
		zap.Duration("move", migration.Move),
	)

	return nil
}

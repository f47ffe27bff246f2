// Package decisionlog buffers per-tick placement decisions in
// memory and persists them only when a migration is decided,
// so a run that never migrates writes nothing until it exits.
package decisionlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/jrife/placement/storage/sink"
	"go.uber.org/zap"
)

// TimeFormat is the layout of persisted decision timestamps
const TimeFormat = "2006-01-02 15:04:05"

// Header is the header row of the persisted decision log
var Header = []string{"timestamp", "predicted_leader_ip"}

// Decision is the outcome of one tick
type Decision struct {
	Timestamp time.Time
	// Leader is the address of the replica chosen to lead
	Leader  string
	Migrate bool
}

// Row returns the persisted form of the decision
func (decision Decision) Row() []string {
	return []string{decision.Timestamp.Format(TimeFormat), decision.Leader}
}

// Config contains configuration
// for a decision log
type Config struct {
	Logger *zap.Logger
	Sink   sink.Sink
}

// Log is a buffered decision log
type Log struct {
	mu     sync.Mutex
	logger *zap.Logger
	sink   sink.Sink
	buffer []Decision
}

// New creates a decision log
func New(config Config) *Log {
	log := &Log{logger: config.Logger, sink: config.Sink}

	if log.logger == nil {
		log.logger = zap.L()
	}

	log.logger = log.logger.With(zap.String("component", "decisionlog"))

	return log
}

// Record appends a decision to the buffer. A migrate decision
// flushes the whole buffer, including itself, in one write.
func (log *Log) Record(decision Decision) error {
	log.mu.Lock()
	defer log.mu.Unlock()

	log.buffer = append(log.buffer, decision)

	if !decision.Migrate {
		return nil
	}

	return log.flush()
}

// Flush persists every buffered decision in one write.
// The buffer is kept if the write fails.
func (log *Log) Flush() error {
	log.mu.Lock()
	defer log.mu.Unlock()

	return log.flush()
}

func (log *Log) flush() error {
	if len(log.buffer) == 0 {
		return nil
	}

	rows := make([][]string, len(log.buffer))

	for i, decision := range log.buffer {
		rows[i] = decision.Row()
	}

	if err := log.sink.Append(Header, rows); err != nil {
		return fmt.Errorf("could not flush %d decisions: %w", len(rows), err)
	}

	log.logger.Info("flushed decisions", zap.Int("rows", len(rows)))
	log.buffer = nil

	return nil
}

// Buffered returns a copy of the decisions not yet persisted
func (log *Log) Buffered() []Decision {
	log.mu.Lock()
	defer log.mu.Unlock()

	return append([]Decision{}, log.buffer...)
}

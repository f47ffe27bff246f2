// Package forecast describes the contract between the
// placement controller and the demand forecaster. A
// forecaster turns recent load history into a window of
// future per-replica read and write rates.
//
// The model itself is opaque. ExecForecaster prepares the
// history window, hands it to an external predictor process
// along with the artifact files and shapes what comes back.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrArtifact is returned when a forecaster cannot be
	// constructed from its artifact files
	ErrArtifact = errors.New("invalid forecasting artifact")
	// ErrEmptyForecast is returned when a prediction has no rows
	ErrEmptyForecast = errors.New("forecast is empty")
	// ErrInsufficientHistory is returned when the history has
	// fewer rows than the model needs to look back
	ErrInsufficientHistory = errors.New("not enough history")
	// ErrPredict is returned when prediction fails for any
	// other reason
	ErrPredict = errors.New("prediction failed")
)

const (
	// ReadSuffix marks a column holding a replica's read rate
	ReadSuffix = "_read"
	// WriteSuffix marks a column holding a replica's write rate
	WriteSuffix = "_write"
)

// Forecaster predicts future load from a history source.
// Implementations must be safe to share between goroutines
// once constructed.
type Forecaster interface {
	// Predict forecasts the horizon following the history
	// found at history, using the last rows rows of it. If
	// fixedStep is positive it spaces the forecast timestamps,
	// otherwise the step is inferred from the history.
	Predict(ctx context.Context, history string, rows int, fixedStep time.Duration) (Window, error)
}

// Builder constructs a new forecaster from the current
// artifact files.
type Builder func() (Forecaster, error)

// Window is a forecast horizon: one row of values per
// future timestamp, one column per replica per operation.
// Columns are named {replicaId}_read and {replicaId}_write.
type Window struct {
	Timestamps []time.Time
	Columns    []string
	Rows       [][]float64
}

// Empty returns true if the window has no rows or columns
func (window Window) Empty() bool {
	return len(window.Rows) == 0 || len(window.Columns) == 0
}

// Column returns the values of the i-th column across the horizon
func (window Window) Column(i int) []float64 {
	column := make([]float64, 0, len(window.Rows))

	for _, row := range window.Rows {
		if i < len(row) {
			column = append(column, row[i])
		}
	}

	return column
}

// Artifacts locates the files a forecaster is built from
type Artifacts struct {
	Model  string
	Scaler string
	Meta   string
}

// Paths returns the artifact files keyed by artifact name
func (artifacts Artifacts) Paths() map[string]string {
	return map[string]string{
		"model":  artifacts.Model,
		"scaler": artifacts.Scaler,
		"meta":   artifacts.Meta,
	}
}

func wrapError(sentinel error, wrap string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", sentinel, wrap)
	}

	return fmt.Errorf("%w: %s: %s", sentinel, wrap, err.Error())
}

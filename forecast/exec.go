package forecast

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jrife/placement/utils/log"
	"go.uber.org/zap"
)

var _ Forecaster = (*ExecForecaster)(nil)

// ExecConfig contains configuration
// for an ExecForecaster
type ExecConfig struct {
	Logger *zap.Logger
	// Command is the predictor program followed by any
	// fixed arguments. The artifact paths and the horizon
	// are appended as --model, --scaler, --meta and --horizon.
	Command   []string
	Artifacts Artifacts
}

// ExecForecaster runs an external predictor process for
// every prediction. The history window is written to the
// process's stdin as CSV with a header row of the trained
// columns. The process must print one CSV row per forecast
// step on stdout, optionally preceded by a header row.
type ExecForecaster struct {
	logger    *zap.Logger
	command   []string
	artifacts Artifacts
	meta      Meta
}

// NewExecForecaster validates the artifact files and loads
// the model metadata. It returns an error wrapping
// ErrArtifact if any artifact is unusable.
func NewExecForecaster(config ExecConfig) (*ExecForecaster, error) {
	if len(config.Command) == 0 {
		return nil, wrapError(ErrArtifact, "no predictor command configured", nil)
	}

	for name, path := range config.Artifacts.Paths() {
		info, err := os.Stat(path)

		if err != nil {
			return nil, wrapError(ErrArtifact, "could not stat "+name+" artifact", err)
		}

		if info.IsDir() {
			return nil, wrapError(ErrArtifact, name+" artifact "+path+" is a directory", nil)
		}
	}

	meta, err := LoadMeta(config.Artifacts.Meta)

	if err != nil {
		return nil, err
	}

	forecaster := &ExecForecaster{
		logger:    config.Logger,
		command:   config.Command,
		artifacts: config.Artifacts,
		meta:      meta,
	}

	if forecaster.logger == nil {
		forecaster.logger = zap.L()
	}

	forecaster.logger = forecaster.logger.With(zap.String("forecaster", "exec"), zap.Int("look_back", meta.LookBack), zap.Int("horizon", meta.Horizon))

	return forecaster, nil
}

// Predict implements Forecaster.Predict. At least look_back
// rows of history are required. The window handed to the
// predictor is the last max(rows, look_back) rows. Negative
// predictions are clipped to 0.
func (forecaster *ExecForecaster) Predict(ctx context.Context, historyPath string, rows int, fixedStep time.Duration) (Window, error) {
	history, err := ReadHistory(historyPath)

	if err != nil {
		return Window{}, err
	}

	history, err = history.Select(forecaster.meta.Columns)

	if err != nil {
		return Window{}, err
	}

	total := len(history.Rows)

	if total < forecaster.meta.LookBack {
		return Window{}, wrapError(ErrInsufficientHistory, strconv.Itoa(total)+" rows < look_back "+strconv.Itoa(forecaster.meta.LookBack), nil)
	}

	n := rows

	if n < forecaster.meta.LookBack {
		n = forecaster.meta.LookBack
	}

	history = history.Tail(n)

	log.WithContext(ctx, forecaster.logger).Debug("running predictor", zap.Int("history_rows", len(history.Rows)), zap.Strings("command", forecaster.command))

	output, err := forecaster.run(ctx, history)

	if err != nil {
		return Window{}, err
	}

	predictions, err := parsePredictions(bytes.NewReader(output), len(forecaster.meta.Columns))

	if err != nil {
		return Window{}, err
	}

	if len(predictions) == 0 {
		return Window{}, ErrEmptyForecast
	}

	if len(predictions) > forecaster.meta.Horizon {
		predictions = predictions[:forecaster.meta.Horizon]
	}

	step := fixedStep

	if step <= 0 {
		step = InferStep(history.Timestamps)
	}

	window := Window{
		Columns:    forecaster.meta.Columns,
		Rows:       predictions,
		Timestamps: make([]time.Time, len(predictions)),
	}

	start := history.Timestamps[len(history.Timestamps)-1].Add(step)

	for i := range window.Timestamps {
		window.Timestamps[i] = start.Add(time.Duration(i) * step)
	}

	return window, nil
}

func (forecaster *ExecForecaster) run(ctx context.Context, history History) ([]byte, error) {
	var stdin bytes.Buffer
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	writer := csv.NewWriter(&stdin)
	writer.Write(history.Columns)

	for _, row := range history.Rows {
		record := make([]string, len(row))

		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}

		writer.Write(record)
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return nil, wrapError(ErrPredict, "could not encode history window", err)
	}

	args := append([]string{}, forecaster.command[1:]...)
	args = append(args,
		"--model", forecaster.artifacts.Model,
		"--scaler", forecaster.artifacts.Scaler,
		"--meta", forecaster.artifacts.Meta,
		"--horizon", strconv.Itoa(forecaster.meta.Horizon),
	)

	cmd := exec.CommandContext(ctx, forecaster.command[0], args...)
	cmd.Stdin = &stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, wrapError(ErrPredict, "predictor failed: "+strings.TrimSpace(stderr.String()), err)
	}

	return stdout.Bytes(), nil
}

func parsePredictions(r io.Reader, width int) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	predictions := [][]float64{}
	first := true

	for {
		record, err := reader.Read()

		if err == io.EOF {
			break
		} else if err != nil {
			return nil, wrapError(ErrPredict, "could not read predictor output", err)
		}

		if first {
			first = false

			if len(record) > 0 {
				if _, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64); err != nil {
					// header row
					continue
				}
			}
		}

		if len(record) != width {
			return nil, wrapError(ErrPredict, "predictor row has "+strconv.Itoa(len(record))+" values, expected "+strconv.Itoa(width), nil)
		}

		row := make([]float64, width)

		for i, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)

			if err != nil {
				return nil, wrapError(ErrPredict, "predictor returned a non-numeric value", err)
			}

			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, wrapError(ErrPredict, "predictor returned a non-finite value "+field, nil)
			}

			if v < 0 {
				v = 0
			}

			row[i] = v
		}

		predictions = append(predictions, row)
	}

	return predictions, nil
}

package forecast

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"io/ioutil"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampColumn names the history column holding
// unix timestamps in seconds
const TimestampColumn = "timestamp"

// Meta describes a trained model: the feature columns
// in training order, how many rows it looks back and how
// many rows it forecasts.
type Meta struct {
	Columns  []string `json:"columns"`
	LookBack int      `json:"look_back"`
	Horizon  int      `json:"horizon"`
}

// LoadMeta reads model metadata from a JSON file
func LoadMeta(path string) (Meta, error) {
	var meta Meta

	data, err := ioutil.ReadFile(path)

	if err != nil {
		return meta, wrapError(ErrArtifact, "could not read model metadata", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, wrapError(ErrArtifact, "could not parse model metadata", err)
	}

	if len(meta.Columns) == 0 {
		return meta, wrapError(ErrArtifact, "model metadata lists no columns", nil)
	}

	if meta.LookBack <= 0 || meta.Horizon <= 0 {
		return meta, wrapError(ErrArtifact, "model metadata needs positive look_back and horizon", nil)
	}

	return meta, nil
}

// History is a load history table
type History struct {
	Timestamps []time.Time
	Columns    []string
	Rows       [][]float64
}

// ReadHistory reads a history CSV. The file must have a
// timestamp column. Values that are not numbers read as 0.
func ReadHistory(path string) (History, error) {
	f, err := os.Open(path)

	if err != nil {
		return History{}, wrapError(ErrPredict, "could not open history", err)
	}

	defer f.Close()

	return readHistory(f)
}

func readHistory(r io.Reader) (History, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()

	if err == io.EOF {
		return History{}, wrapError(ErrInsufficientHistory, "history is empty", nil)
	} else if err != nil {
		return History{}, wrapError(ErrPredict, "could not read history header", err)
	}

	timestampIndex := -1
	history := History{}
	columnIndexes := []int{}

	for i, column := range header {
		if column == TimestampColumn {
			timestampIndex = i

			continue
		}

		history.Columns = append(history.Columns, column)
		columnIndexes = append(columnIndexes, i)
	}

	if timestampIndex < 0 {
		return History{}, wrapError(ErrPredict, "history has no timestamp column", nil)
	}

	for {
		record, err := reader.Read()

		if err == io.EOF {
			break
		} else if err != nil {
			return History{}, wrapError(ErrPredict, "could not read history row", err)
		}

		if timestampIndex >= len(record) {
			continue
		}

		seconds, err := strconv.ParseFloat(record[timestampIndex], 64)

		if err != nil {
			continue
		}

		row := make([]float64, len(columnIndexes))

		for j, i := range columnIndexes {
			if i < len(record) {
				row[j] = parseValue(record[i])
			}
		}

		history.Timestamps = append(history.Timestamps, unixSeconds(seconds))
		history.Rows = append(history.Rows, row)
	}

	return history, nil
}

// Select returns the history restricted to columns, in that
// order. It fails if any column is missing.
func (history History) Select(columns []string) (History, error) {
	indexes := make(map[string]int, len(history.Columns))

	for i, column := range history.Columns {
		indexes[column] = i
	}

	positions := make([]int, len(columns))
	missing := []string{}

	for i, column := range columns {
		position, ok := indexes[column]

		if !ok {
			missing = append(missing, column)

			continue
		}

		positions[i] = position
	}

	if len(missing) > 0 {
		return History{}, wrapError(ErrPredict, "history is missing trained columns "+strings.Join(missing, ","), nil)
	}

	selected := History{Timestamps: history.Timestamps, Columns: columns, Rows: make([][]float64, len(history.Rows))}

	for r, row := range history.Rows {
		selected.Rows[r] = make([]float64, len(columns))

		for i, position := range positions {
			selected.Rows[r][i] = row[position]
		}
	}

	return selected, nil
}

// Tail returns the last n rows of the history
func (history History) Tail(n int) History {
	if n >= len(history.Rows) {
		return history
	}

	start := len(history.Rows) - n

	return History{
		Timestamps: history.Timestamps[start:],
		Columns:    history.Columns,
		Rows:       history.Rows[start:],
	}
}

// InferStep returns the median gap between consecutive
// timestamps. It returns 1s when there are fewer than two
// timestamps or the median is not positive.
func InferStep(timestamps []time.Time) time.Duration {
	if len(timestamps) < 2 {
		return time.Second
	}

	diffs := make([]float64, 0, len(timestamps)-1)

	for i := 1; i < len(timestamps); i++ {
		diffs = append(diffs, float64(timestamps[i].Sub(timestamps[i-1])))
	}

	sort.Float64s(diffs)

	var median float64

	if n := len(diffs); n%2 == 1 {
		median = diffs[n/2]
	} else {
		median = (diffs[n/2-1] + diffs[n/2]) / 2
	}

	if median <= 0 {
		return time.Second
	}

	return time.Duration(median)
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)

	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

func unixSeconds(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)

	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

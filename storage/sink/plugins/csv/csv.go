package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrife/placement/storage/sink"
	"github.com/jrife/placement/utils/uuid"
)

const (
	DriverName = "csv"
)

func Plugins() []sink.Plugin {
	return []sink.Plugin{
		&CSVPlugin{},
	}
}

type CSVPlugin struct {
}

func (plugin *CSVPlugin) Name() string {
	return DriverName
}

func (plugin *CSVPlugin) NewSink(options sink.PluginOptions) (sink.Sink, error) {
	path, err := sink.PathOption(options)

	if err != nil {
		return nil, err
	}

	return New(CSVSinkConfig{Path: path}), nil
}

func (plugin *CSVPlugin) NewTempSink() (sink.Sink, error) {
	return plugin.NewSink(sink.PluginOptions{
		"path": fmt.Sprintf("%s/csv-%s.csv", os.TempDir(), uuid.MustUUID()),
	})
}

type CSVSinkConfig struct {
	Path string
}

var _ sink.Sink = (*CSVSink)(nil)

// CSVSink appends records to a CSV file. The file is
// created with a header row on first write if it does not
// exist or is empty.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	closed bool
}

func New(config CSVSinkConfig) *CSVSink {
	return &CSVSink{path: config.Path}
}

func (csvSink *CSVSink) Append(header []string, rows [][]string) error {
	csvSink.mu.Lock()
	defer csvSink.mu.Unlock()

	if csvSink.closed {
		return sink.ErrClosed
	}

	existing, err := csvSink.header()

	if err != nil {
		return err
	}

	if existing != nil && !sink.HeaderMatches(existing, header) {
		return fmt.Errorf("%s: %w", csvSink.path, sink.ErrHeaderMismatch)
	}

	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)

	if existing == nil {
		writer.Write(header)
	}

	writer.WriteAll(rows)

	if err := writer.Error(); err != nil {
		return fmt.Errorf("could not encode rows: %s", err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(csvSink.path), 0755); err != nil {
		return fmt.Errorf("could not create directory for %s: %s", csvSink.path, err.Error())
	}

	f, err := os.OpenFile(csvSink.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)

	if err != nil {
		return fmt.Errorf("could not open %s: %s", csvSink.path, err.Error())
	}

	if _, err := f.Write(buffer.Bytes()); err != nil {
		f.Close()

		return fmt.Errorf("could not write to %s: %s", csvSink.path, err.Error())
	}

	return f.Close()
}

// header returns the header row of the file or nil if
// the file does not exist or is empty
func (csvSink *CSVSink) header() ([]string, error) {
	f, err := os.Open(csvSink.path)

	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not open %s: %s", csvSink.path, err.Error())
	}

	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()

	if err == io.EOF {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not read header of %s: %s", csvSink.path, err.Error())
	}

	return header, nil
}

func (csvSink *CSVSink) Read() ([][]string, error) {
	csvSink.mu.Lock()
	defer csvSink.mu.Unlock()

	if csvSink.closed {
		return nil, sink.ErrClosed
	}

	f, err := os.Open(csvSink.path)

	if os.IsNotExist(err) {
		return [][]string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("could not open %s: %s", csvSink.path, err.Error())
	}

	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()

	if err != nil {
		return nil, fmt.Errorf("could not read %s: %s", csvSink.path, err.Error())
	}

	if len(records) == 0 {
		return [][]string{}, nil
	}

	return records[1:], nil
}

func (csvSink *CSVSink) Close() error {
	csvSink.mu.Lock()
	defer csvSink.mu.Unlock()

	csvSink.closed = true

	return nil
}

func (csvSink *CSVSink) Delete() error {
	if err := csvSink.Close(); err != nil {
		return err
	}

	if err := os.RemoveAll(csvSink.path); err != nil {
		return fmt.Errorf("could not remove path %s: %s", csvSink.path, err.Error())
	}

	return nil
}

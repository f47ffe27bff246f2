// Package sink defines append-only record sinks. A sink
// persists rows of string fields in the order they were
// appended. Each Append call is a single write: either every
// row is persisted or none are.
package sink

import (
	"errors"
)

var (
	// ErrClosed indicates that the sink was closed
	ErrClosed = errors.New("sink was closed")
	// ErrHeaderMismatch indicates that rows were appended with
	// a header that differs from the one the sink was created with
	ErrHeaderMismatch = errors.New("header does not match existing sink")
)

// PluginOptions is a generic structure to pass
// configuration to a sink plugin
type PluginOptions map[string]interface{}

// Plugin represents a sink plugin
type Plugin interface {
	// Name returns the name of the sink plugin
	Name() string
	// NewSink returns an instance of the plugin sink
	NewSink(options PluginOptions) (Sink, error)
	// NewTempSink returns an instance of the plugin sink
	// initialized with some sane defaults. It is meant for
	// tests that need an initialized sink without knowing
	// how to initialize it
	NewTempSink() (Sink, error)
}

// Sink is an append-only table of records
type Sink interface {
	// Append persists rows after any rows already in the sink.
	// header describes the columns. It is recorded when the
	// sink is first written and must match on later appends.
	Append(header []string, rows [][]string) error
	// Read returns every persisted row, excluding the header,
	// in append order
	Read() ([][]string, error)
	// Close closes the sink
	Close() error
	// Delete closes then deletes the sink and all its contents
	Delete() error
}

// HeaderMatches reports whether two headers are identical
func HeaderMatches(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// PathOption extracts the required "path" option
func PathOption(options PluginOptions) (string, error) {
	path, ok := options["path"]

	if !ok {
		return "", errors.New("\"path\" is required")
	}

	pathString, ok := path.(string)

	if !ok {
		return "", errors.New("\"path\" must be a string")
	}

	return pathString, nil
}

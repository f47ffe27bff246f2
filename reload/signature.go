package reload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zeebo/xxh3"
)

// Absent is the fingerprint of an artifact file that
// does not exist or cannot be read
const Absent = "absent"

// FingerprintMode selects how artifact files are fingerprinted
type FingerprintMode int

const (
	// ModeMtime fingerprints a file by its modification time
	// and size
	ModeMtime FingerprintMode = iota
	// ModeDigest fingerprints a file by a hash of its contents.
	// It is slower but detects rewrites that keep the mtime.
	ModeDigest
)

// ErrUnknownMode is returned when parsing an unknown
// fingerprint mode
var ErrUnknownMode = errors.New("unknown fingerprint mode")

// ParseFingerprintMode parses "mtime" or "digest". The empty
// string selects mtime.
func ParseFingerprintMode(s string) (FingerprintMode, error) {
	switch s {
	case "", "mtime":
		return ModeMtime, nil
	case "digest":
		return ModeDigest, nil
	}

	return ModeMtime, fmt.Errorf("%q: %w", s, ErrUnknownMode)
}

func (mode FingerprintMode) String() string {
	if mode == ModeDigest {
		return "digest"
	}

	return "mtime"
}

// Signature maps artifact names to file fingerprints
type Signature map[string]string

// Equal reports whether two signatures are structurally equal
func (signature Signature) Equal(other Signature) bool {
	if len(signature) != len(other) {
		return false
	}

	for name, fingerprint := range signature {
		if o, ok := other[name]; !ok || o != fingerprint {
			return false
		}
	}

	return true
}

// Watcher fingerprints a fixed set of artifact files
type Watcher struct {
	paths map[string]string
	mode  FingerprintMode
}

// NewWatcher creates a watcher over paths, a map from
// artifact name to file path
func NewWatcher(paths map[string]string, mode FingerprintMode) *Watcher {
	return &Watcher{paths: paths, mode: mode}
}

// Signature computes the current signature of the artifacts.
// Unreadable files fingerprint as Absent.
func (watcher *Watcher) Signature() Signature {
	signature := make(Signature, len(watcher.paths))

	for name, path := range watcher.paths {
		signature[name] = watcher.fingerprint(path)
	}

	return signature
}

func (watcher *Watcher) fingerprint(path string) string {
	info, err := os.Stat(path)

	if err != nil {
		return Absent
	}

	if watcher.mode == ModeMtime {
		return strconv.FormatInt(info.ModTime().UnixNano(), 10) + ":" + strconv.FormatInt(info.Size(), 10)
	}

	f, err := os.Open(path)

	if err != nil {
		return Absent
	}

	defer f.Close()

	hasher := xxh3.New()

	if _, err := io.Copy(hasher, f); err != nil {
		return Absent
	}

	return strconv.FormatUint(hasher.Sum64(), 16)
}

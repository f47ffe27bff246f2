package reload_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jrife/placement/forecast"
	"github.com/jrife/placement/reload"
)

type fakeForecaster struct {
	generation int
}

func (forecaster *fakeForecaster) Predict(ctx context.Context, history string, rows int, fixedStep time.Duration) (forecast.Window, error) {
	return forecast.Window{}, nil
}

// harness drives a manager with a simulated fingerprint and clock
type harness struct {
	mu          sync.Mutex
	signature   reload.Signature
	now         time.Time
	builds      int
	buildErr    error
	holder      *reload.Holder
	manager     *reload.Manager
	initialized *fakeForecaster
}

func newHarness(debounce time.Duration) *harness {
	h := &harness{
		signature:   reload.Signature{"model": "v1"},
		now:         time.Unix(1000, 0),
		initialized: &fakeForecaster{},
	}

	h.holder = reload.NewHolder(h.initialized)
	h.manager = reload.NewManager(reload.ManagerConfig{
		Holder: h.holder,
		Build: func() (forecast.Forecaster, error) {
			h.mu.Lock()
			defer h.mu.Unlock()

			if h.buildErr != nil {
				return nil, h.buildErr
			}

			h.builds++

			return &fakeForecaster{generation: h.builds}, nil
		},
		Fingerprint: func() reload.Signature {
			h.mu.Lock()
			defer h.mu.Unlock()

			return h.signature
		},
		Interval: time.Millisecond,
		Debounce: debounce,
		Now: func() time.Time {
			h.mu.Lock()
			defer h.mu.Unlock()

			return h.now
		},
	})

	// the first poll takes the baseline
	h.manager.Poll()

	return h
}

func (h *harness) set(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.signature = reload.Signature{"model": version}
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.now = h.now.Add(d)
}

// pollEvery polls once per second of simulated time for d and
// returns the number of reloads
func (h *harness) pollEvery(d time.Duration) int {
	reloads := 0

	for elapsed := time.Duration(0); elapsed <= d; elapsed += time.Second {
		if h.manager.Poll() {
			reloads++
		}

		h.advance(time.Second)
	}

	return reloads
}

func TestChangeHeldPastDebounce(t *testing.T) {
	h := newHarness(5 * time.Second)

	h.set("v2")

	if reloads := h.pollEvery(20 * time.Second); reloads != 1 {
		t.Fatalf("expected exactly 1 reload, got %d", reloads)
	}

	if forecaster := h.holder.Get().(*fakeForecaster); forecaster.generation != 1 {
		t.Fatalf("expected the rebuilt forecaster to be published, got generation %d", forecaster.generation)
	}
}

func TestChangeRevertedWithinDebounce(t *testing.T) {
	h := newHarness(5 * time.Second)

	h.set("v2")

	if reloads := h.pollEvery(3 * time.Second); reloads != 0 {
		t.Fatalf("expected no reload inside the debounce window, got %d", reloads)
	}

	h.set("v1")

	if reloads := h.pollEvery(20 * time.Second); reloads != 0 {
		t.Fatalf("expected no reload after reverting, got %d", reloads)
	}

	if h.holder.Get() != h.initialized {
		t.Fatalf("expected the initial forecaster to remain published")
	}
}

func TestUnchangedNeverReloads(t *testing.T) {
	h := newHarness(0)

	if reloads := h.pollEvery(10 * time.Second); reloads != 0 {
		t.Fatalf("expected no reload, got %d", reloads)
	}
}

func TestFailedRebuildRetriesNextPoll(t *testing.T) {
	h := newHarness(5 * time.Second)
	h.buildErr = errors.New("corrupt model")

	h.set("v2")

	if reloads := h.pollEvery(10 * time.Second); reloads != 0 {
		t.Fatalf("expected failed rebuilds to publish nothing, got %d", reloads)
	}

	if h.holder.Get() != h.initialized {
		t.Fatalf("expected the previous forecaster to be retained")
	}

	h.mu.Lock()
	h.buildErr = nil
	h.mu.Unlock()

	// the debounce window already elapsed, so no fresh wait
	if !h.manager.Poll() {
		t.Fatalf("expected the next poll to retry immediately")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(0)

	h.manager.Start(context.Background())
	h.set("v2")

	deadline := time.Now().Add(5 * time.Second)

	for h.holder.Get() == h.initialized {
		if time.Now().After(deadline) {
			t.Fatalf("expected the background poller to publish a new forecaster")
		}

		time.Sleep(time.Millisecond)
	}

	h.manager.Stop()
	h.manager.Stop()
}

func TestStartTakesBaseline(t *testing.T) {
	h := newHarness(0)

	// artifacts missing at construction appear before the
	// first forecaster is published and polling starts
	h.set(reload.Absent)
	h.manager.Poll()
	h.set("v2")

	h.manager.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	h.manager.Stop()

	h.mu.Lock()
	builds := h.builds
	h.mu.Unlock()

	if builds != 0 {
		t.Fatalf("expected no rebuild of the artifacts present at start, got %d", builds)
	}

	if h.holder.Get() != h.initialized {
		t.Fatalf("expected the initial forecaster to remain published")
	}
}

func TestHolderIgnoresNil(t *testing.T) {
	initial := &fakeForecaster{}
	holder := reload.NewHolder(initial)

	holder.Set(nil)

	if holder.Get() != initial {
		t.Fatalf("expected nil to be ignored")
	}
}

func TestWatcherModes(t *testing.T) {
	dir, err := ioutil.TempDir("", "reload")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "model.h5")
	paths := map[string]string{"model": path, "meta": filepath.Join(dir, "missing.json")}

	for _, mode := range []reload.FingerprintMode{reload.ModeMtime, reload.ModeDigest} {
		t.Run(mode.String(), func(t *testing.T) {
			watcher := reload.NewWatcher(paths, mode)

			if err := ioutil.WriteFile(path, []byte("weights-1"), 0644); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			before := watcher.Signature()

			if before["meta"] != reload.Absent {
				t.Fatalf("expected a missing file to fingerprint as absent, got %s", before["meta"])
			}

			if !before.Equal(watcher.Signature()) {
				t.Fatalf("expected an unchanged file to keep its signature")
			}

			if err := ioutil.WriteFile(path, []byte("weights-22"), 0644); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if before.Equal(watcher.Signature()) {
				t.Fatalf("expected a rewritten file to change the signature")
			}
		})
	}
}

func TestDigestIgnoresMtime(t *testing.T) {
	dir, err := ioutil.TempDir("", "reload")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "scaler.pkl")

	if err := ioutil.WriteFile(path, []byte("scale"), 0644); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	watcher := reload.NewWatcher(map[string]string{"scaler": path}, reload.ModeDigest)
	before := watcher.Signature()
	later := time.Now().Add(time.Hour)

	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !before.Equal(watcher.Signature()) {
		t.Fatalf("expected digest mode to ignore a touched mtime")
	}
}

func TestParseFingerprintMode(t *testing.T) {
	for input, expected := range map[string]reload.FingerprintMode{"": reload.ModeMtime, "mtime": reload.ModeMtime, "digest": reload.ModeDigest} {
		mode, err := reload.ParseFingerprintMode(input)

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if mode != expected {
			t.Fatalf("%q: expected %s, got %s", input, expected, mode)
		}
	}

	if _, err := reload.ParseFingerprintMode("sha"); !errors.Is(err, reload.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %#v", err)
	}
}

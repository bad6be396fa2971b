package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ChangeFunc receives the previous and the newly loaded config together with
// their differences.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// Watcher polls a config file and calls a [ChangeFunc] when its content
// changes to another valid configuration. Invalid edits are logged and the
// last valid config is kept.
//
// Change detection is two-staged: an unchanged mtime skips the read, and an
// unchanged content hash skips the parse. Edits that only touch keys
// outside [Diff]'s view do not fire the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	// checkMu serialises polls with explicit Reload calls.
	checkMu sync.Mutex

	mu   sync.Mutex
	snap snapshot

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// snapshot is the last valid state read from disk.
type snapshot struct {
	cfg   *Config
	hash  [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and then polls it in the background until
// [Watcher.Stop]. The initial load must succeed.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.snap = snap

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.cfg
}

// Reload checks the file immediately, ignoring the mtime shortcut. It
// returns the load error, if any, and leaves the current config in place
// on failure.
func (w *Watcher) Reload() error {
	return w.check(true)
}

// Stop ends polling and waits for an in-flight check to finish. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if err := w.check(false); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

func (w *Watcher) check(force bool) error {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	w.mu.Lock()
	prev := w.snap
	w.mu.Unlock()

	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			return err
		}
		if info.ModTime().Equal(prev.mtime) {
			return nil
		}
	}

	next, err := readSnapshot(w.path)
	if err != nil {
		return err
	}
	if next.hash == prev.hash {
		// Touched but not edited.
		w.mu.Lock()
		w.snap.mtime = next.mtime
		w.mu.Unlock()
		return nil
	}

	w.mu.Lock()
	w.snap = next
	w.mu.Unlock()

	d := Diff(prev.cfg, next.cfg)
	if d.IsEmpty() {
		return nil
	}
	slog.Info("config watcher: configuration reloaded",
		"path", w.path,
		"pipeline_fields", d.PipelineFields,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg, d)
	}
	return nil
}

// readSnapshot reads, hashes and validates the file in one pass.
func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, hash: sha256.Sum256(data), mtime: info.ModTime()}, nil
}

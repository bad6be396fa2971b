// Package reconnect wraps a transcript.Source so that a dropped upstream
// feed is re-established with exponential backoff. Consumers see a single
// uninterrupted event channel that only closes when the caller stops the
// stream or every retry has failed.
package reconnect

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/emotive/pkg/provider/transcript"
	"github.com/MrWong99/emotive/pkg/types"
)

var _ transcript.Source = (*Source)(nil)

// Config controls the retry behaviour.
type Config struct {
	// MaxRetries is the number of consecutive failed restarts before the
	// stream gives up. Default: 10.
	MaxRetries int

	// Backoff is the delay before the first restart attempt. Default: 1s.
	Backoff time.Duration

	// MaxBackoff caps the doubling delay. Default: 30s.
	MaxBackoff time.Duration

	// Buffer is the capacity of the outward event channel. Default: 64.
	Buffer int

	// OnReconnect, if set, is called after each successful restart with
	// the attempt number that succeeded.
	OnReconnect func(attempt int)
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
}

// Source restarts its inner source whenever the inner stream ends while the
// caller's context is still live.
type Source struct {
	inner transcript.Source
	name  string
	cfg   Config
}

// New wraps inner. name labels log lines.
func New(inner transcript.Source, name string, cfg Config) *Source {
	cfg.defaults()
	return &Source{inner: inner, name: name, cfg: cfg}
}

// Start dials the inner source once. A failure on this first dial is
// returned directly; later drops are retried in the background.
func (s *Source) Start(ctx context.Context) (transcript.Stream, error) {
	first, err := s.inner.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconnect: start %s: %w", s.name, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	st := &stream{
		events: make(chan types.TranscriptEvent, s.cfg.Buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(ctx, st, first)
	return st, nil
}

// pump owns the current inner stream for its whole lifetime.
func (s *Source) pump(ctx context.Context, st *stream, cur transcript.Stream) {
	defer close(st.done)
	defer close(st.events)
	for {
		dropped := forward(ctx, cur, st.events)
		_ = cur.Close()
		if !dropped {
			return
		}
		slog.Warn("transcript stream dropped", "provider", s.name)
		next, ok := s.restart(ctx)
		if !ok {
			return
		}
		cur = next
	}
}

// forward copies events until the inner channel closes or ctx is done. It
// reports true when the inner stream ended on its own.
func forward(ctx context.Context, cur transcript.Stream, out chan<- types.TranscriptEvent) bool {
	in := cur.Events()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-in:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
	}
}

func (s *Source) restart(ctx context.Context) (transcript.Stream, bool) {
	backoff := s.cfg.Backoff
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		slog.Info("attempting transcript reconnection",
			"provider", s.name,
			"attempt", attempt,
			"max_retries", s.cfg.MaxRetries,
			"backoff", backoff,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}

		next, err := s.inner.Start(ctx)
		if err == nil {
			slog.Info("transcript reconnected", "provider", s.name, "attempt", attempt)
			if s.cfg.OnReconnect != nil {
				s.cfg.OnReconnect(attempt)
			}
			return next, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		slog.Warn("transcript reconnect attempt failed", "provider", s.name, "attempt", attempt, "err", err)
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
	slog.Error("transcript reconnect exhausted", "provider", s.name, "max_retries", s.cfg.MaxRetries)
	return nil, false
}

// ── stream ───────────────────────────────────────────────────────────────────

type stream struct {
	events chan types.TranscriptEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (st *stream) Events() <-chan types.TranscriptEvent { return st.events }

// Close stops retrying, closes the inner stream and waits for the pump to
// exit. Safe to call more than once.
func (st *stream) Close() error {
	st.once.Do(st.cancel)
	<-st.done
	return nil
}

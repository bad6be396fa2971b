// Package websocket provides a transcript.Source that relays JSON transcript
// events from a websocket endpoint.
//
// Each text message is one event:
//
//	{"speaker":"self","text":"that's hilarious","is_partial":false,"timestamp":"2025-03-01T12:00:00Z"}
//
// Messages that fail to decode, name an unknown speaker or carry no text are
// skipped. A missing speaker means "self" and a missing timestamp is filled
// with the receive time.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/emotive/pkg/provider/transcript"
	"github.com/MrWong99/emotive/pkg/types"
)

const defaultBuffer = 64

var _ transcript.Source = (*Source)(nil)

// Source dials a websocket endpoint and decodes transcript events from it.
type Source struct {
	url    string
	header http.Header
	buffer int
	now    func() time.Time
}

// Option is a functional option for Source.
type Option func(*Source)

// WithBearerToken sends an Authorization: Bearer header on dial.
func WithBearerToken(token string) Option {
	return func(s *Source) {
		if token != "" {
			s.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithBuffer sets the event channel capacity. Default: 64.
func WithBuffer(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithClock replaces the time source used for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New creates a Source for the ws:// or wss:// endpoint url.
func New(url string, opts ...Option) (*Source, error) {
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, fmt.Errorf("transcript websocket: url %q must use ws:// or wss://", url)
	}
	s := &Source{url: url, header: http.Header{}, buffer: defaultBuffer, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start implements transcript.Source.
func (s *Source) Start(ctx context.Context) (transcript.Stream, error) {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: s.header})
	if err != nil {
		return nil, fmt.Errorf("transcript websocket: dial: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	st := &stream{
		conn:   conn,
		events: make(chan types.TranscriptEvent, s.buffer),
		cancel: cancel,
		now:    s.now,
	}
	st.wg.Add(1)
	go st.readLoop(ctx)
	return st, nil
}

type stream struct {
	conn   *websocket.Conn
	events chan types.TranscriptEvent
	cancel context.CancelFunc
	now    func() time.Time

	once sync.Once
	wg   sync.WaitGroup
}

func (s *stream) Events() <-chan types.TranscriptEvent { return s.events }

func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}

func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				slog.Warn("transcript websocket: read failed", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		ev, err := decodeEvent(msg, s.now)
		if err != nil {
			slog.Debug("transcript websocket: skipping message", "err", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// decodeEvent parses one wire message.
func decodeEvent(data []byte, now func() time.Time) (types.TranscriptEvent, error) {
	var ev types.TranscriptEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return types.TranscriptEvent{}, fmt.Errorf("decode: %w", err)
	}
	if ev.Speaker == "" {
		ev.Speaker = types.SpeakerSelf
	}
	if !ev.Speaker.IsValid() {
		return types.TranscriptEvent{}, fmt.Errorf("unknown speaker %q", ev.Speaker)
	}
	ev.Text = strings.TrimSpace(ev.Text)
	if ev.Text == "" {
		return types.TranscriptEvent{}, errors.New("empty text")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now()
	}
	return ev, nil
}

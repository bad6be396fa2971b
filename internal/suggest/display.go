package suggest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/emotive/pkg/types"
)

// Reaction is what a display sink renders: an emoji, a styled text or a
// media item.
type Reaction struct {
	Keyword string           `json:"keyword,omitempty"`
	Emoji   string           `json:"emoji,omitempty"`
	Text    string           `json:"text,omitempty"`
	Style   string           `json:"style,omitempty"`
	Media   *types.MediaItem `json:"media,omitempty"`
}

// defaultTextStyle is used for text reactions without a style.
const defaultTextStyle = "classic-speech"

// reactionFor converts a suggestion. ok is false when the suggestion has
// neither emoji nor text.
func reactionFor(s types.Suggestion) (Reaction, bool) {
	switch {
	case s.Emoji != "":
		return Reaction{Keyword: s.Keyword, Emoji: s.Emoji}, true
	case s.Text != "":
		style := s.Style
		if style == "" {
			style = defaultTextStyle
		}
		return Reaction{Keyword: s.Keyword, Text: s.Text, Style: style}, true
	default:
		return Reaction{}, false
	}
}

// Display renders reactions for a limited time.
type Display interface {
	ShowReaction(ctx context.Context, r Reaction, d time.Duration) error
	HideReaction(ctx context.Context) error
}

// Panel receives every suggestion update for presentation. Implementations
// must not block.
type Panel interface {
	ShowSuggestions(u Update)
}

// displayQueue shows queued suggestions one after another, each for the
// current display duration, hiding it before the next.
type displayQueue struct {
	display  Display
	duration func() time.Duration

	mu      sync.Mutex
	items   []types.Suggestion
	running bool
	gen     uint64
	cancel  context.CancelFunc
}

func (q *displayQueue) push(ctx context.Context, s types.Suggestion) {
	if q.display == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, s)
	if q.running {
		return
	}
	q.running = true
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	go q.run(ctx, q.gen)
}

// pop returns the next item for worker gen, or ok=false when the worker
// should exit.
func (q *displayQueue) pop(gen uint64) (types.Suggestion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.gen || len(q.items) == 0 {
		if gen == q.gen {
			q.running = false
		}
		return types.Suggestion{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	return s, true
}

func (q *displayQueue) run(ctx context.Context, gen uint64) {
	for {
		s, ok := q.pop(gen)
		if !ok {
			return
		}
		r, ok := reactionFor(s)
		if !ok {
			continue
		}
		d := q.duration()
		if err := q.display.ShowReaction(ctx, r, d); err != nil {
			slog.Warn("suggest: show reaction failed", "keyword", s.Keyword, "err", err)
			continue
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if err := q.display.HideReaction(ctx); err != nil {
			slog.Debug("suggest: hide reaction failed", "err", err)
		}
	}
}

// clear drops queued items and stops the worker without hiding the current
// reaction.
func (q *displayQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.gen++
	q.running = false
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
}

// pending returns the number of queued suggestions not yet shown.
func (q *displayQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Package transcript defines the Source interface for upstream speech-to-text
// feeds.
//
// The speech engine runs elsewhere; a Source only relays its results. Each
// event carries the speaker, the text and whether the result is partial.
// Audio capture and recognition are not part of this package.
//
// Implementations must be safe for concurrent use.
package transcript

import (
	"context"

	"github.com/MrWong99/emotive/pkg/types"
)

// Source is the abstraction over any transcript feed.
type Source interface {
	// Start opens a stream of transcript events. The stream ends when ctx is
	// cancelled, the upstream closes or Close is called.
	Start(ctx context.Context) (Stream, error)
}

// Stream is a live transcript feed.
type Stream interface {
	// Events returns the channel of transcript events. It is closed when the
	// stream ends.
	Events() <-chan types.TranscriptEvent

	// Close terminates the stream and releases resources. It is idempotent.
	Close() error
}

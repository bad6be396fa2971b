// Package notify provides a typed, non-blocking fan-out used by pipeline
// components to announce state changes to any number of subscribers.
package notify

import "sync"

// Broadcaster delivers values of type T to every subscriber. Publish never
// blocks: a subscriber whose channel is full misses the value. The zero value
// is ready to use and safe for concurrent use.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// Subscribe registers a new subscriber with a channel of the given capacity
// (16 when non-positive). The returned cancel func unsubscribes and closes
// the channel; calling it more than once is safe.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]chan T)
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends v to every subscriber that has room for it.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

package notify

import "testing"

func TestBroadcaster_FanOut(t *testing.T) {
	t.Parallel()
	var b Broadcaster[string]
	a, cancelA := b.Subscribe(1)
	c, cancelC := b.Subscribe(1)
	defer cancelC()

	b.Publish("wow")
	if got := <-a; got != "wow" {
		t.Errorf("a got %q", got)
	}
	if got := <-c; got != "wow" {
		t.Errorf("c got %q", got)
	}

	cancelA()
	cancelA()
	if _, ok := <-a; ok {
		t.Error("expected closed channel after cancel")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	t.Parallel()
	var b Broadcaster[int]
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(1)
	b.Publish(2)
	if got := <-ch; got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected second value %d", v)
	default:
	}
}

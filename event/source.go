package event

import (
	"context"
	"sync"
)

// Source supplies purchase events: a replayable snapshot of everything the
// external store knows about, and a live stream of new events. Delivery on
// the stream is at-least-once; consumers must tolerate duplicates.
type Source interface {
	// Snapshot returns all known past purchase events. Safe to call
	// repeatedly; ordering is not guaranteed.
	Snapshot(ctx context.Context) ([]Purchase, error)

	// Subscribe returns a channel of live purchase events. The channel is
	// closed when ctx is cancelled or the source shuts down.
	Subscribe(ctx context.Context) (<-chan Purchase, error)
}

// ChanSource is an in-memory Source backed by channels. It doubles as the
// bridge for platform purchase callbacks (the adapter that receives
// transactions from the external store calls Publish) and as a test double.
type ChanSource struct {
	mu      sync.Mutex
	history []Purchase
	subs    []*subscriber
	closed  bool
	buffer  int
}

// Compile-time interface check.
var _ Source = (*ChanSource)(nil)

// NewChanSource creates a ChanSource. buffer sizes each subscriber's delivery
// channel; events beyond it queue in memory until the subscriber drains them,
// so a slow consumer delays delivery but never loses an event.
func NewChanSource(buffer int) *ChanSource {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChanSource{buffer: buffer}
}

// Publish records an event in the snapshot history and fans it out to all
// live subscribers. Publish never blocks and never drops: events a subscriber
// has not yet drained queue up behind its channel.
func (s *ChanSource) Publish(ev Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.history = append(s.history, ev)
	for _, sub := range s.subs {
		sub.enqueue(ev)
	}
}

// Snapshot implements Source.
func (s *ChanSource) Snapshot(_ context.Context) ([]Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Purchase, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Subscribe implements Source. The returned channel is closed when ctx is
// cancelled or the source is closed.
func (s *ChanSource) Subscribe(ctx context.Context) (<-chan Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscriber(s.buffer)
	if s.closed {
		close(sub.ch)
		return sub.ch, nil
	}
	s.subs = append(s.subs, sub)

	go func() {
		sub.run(ctx)
		s.unsubscribe(sub)
	}()

	return sub.ch, nil
}

// Close terminates all subscriber channels.
func (s *ChanSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		close(sub.done)
	}
	s.subs = nil
}

func (s *ChanSource) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.subs {
		if cur == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// subscriber owns an unbounded pending queue drained into its delivery
// channel by a dedicated goroutine.
type subscriber struct {
	ch   chan Purchase
	done chan struct{}

	mu      sync.Mutex
	pending []Purchase
	wake    chan struct{}
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		ch:   make(chan Purchase, buffer),
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
}

func (sub *subscriber) enqueue(ev Purchase) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, ev)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// run forwards queued events to the delivery channel in publish order until
// the context is cancelled or the source is closed.
func (sub *subscriber) run(ctx context.Context) {
	defer close(sub.ch)

	for {
		sub.mu.Lock()
		batch := sub.pending
		sub.pending = nil
		sub.mu.Unlock()

		for _, ev := range batch {
			select {
			case sub.ch <- ev:
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}

		select {
		case <-sub.wake:
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		}
	}
}

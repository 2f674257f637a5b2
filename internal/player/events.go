package player

import (
	"sync"

	"scqueue/internal/core"
)

// subscriberBuffer is the per-subscriber channel capacity
const subscriberBuffer = 32

// Bus fans playback events out to subscribers. Publishing never blocks.
// A subscriber that falls behind misses progress and state events, but Ended
// and Failed are queued until delivered. Delivered events keep publish order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	ch   chan core.PlaybackEvent
	done chan struct{}

	mu       sync.Mutex
	backlog  []core.PlaybackEvent
	draining bool
	closed   bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber. The returned cancel func closes the channel.
func (b *Bus) Subscribe() (<-chan core.PlaybackEvent, func()) {
	sub := &subscriber{
		ch:   make(chan core.PlaybackEvent, subscriberBuffer),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				sub.close()
			}
		})
	}
}

// Publish hands ev to every subscriber.
func (b *Bus) Publish(ev core.PlaybackEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		sub.offer(ev)
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.close()
	}
}

func terminal(ev core.PlaybackEvent) bool {
	return ev.Type == core.EventEnded || ev.Type == core.EventFailed
}

func (s *subscriber) offer(ev core.PlaybackEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	// a backlog means the channel is behind, sending now would reorder
	if len(s.backlog) == 0 {
		select {
		case s.ch <- ev:
			return
		default:
		}
	}
	if !terminal(ev) {
		return
	}

	s.backlog = append(s.backlog, ev)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// drain delivers the backlog in order. An event stays in the backlog until it
// is sent so offer never overtakes it.
func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		if s.closed || len(s.backlog) == 0 {
			s.draining = false
			if s.closed {
				close(s.ch)
			}
			s.mu.Unlock()
			return
		}
		ev := s.backlog[0]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
			s.mu.Lock()
			s.backlog = s.backlog[1:]
			s.mu.Unlock()
		case <-s.done:
		}
	}
}

// close stops delivery. The channel is closed here unless drain is running,
// in which case drain closes it on its way out.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if !s.draining {
		close(s.ch)
	}
}

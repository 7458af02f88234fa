// Package broadcast implements a single-producer, multiple-subscriber
// fan-out where the producer never blocks. A subscriber that falls
// behind does not slow the producer down; instead it receives a lag
// signal reporting how many messages it missed.
//
// This generalizes the non-blocking send-with-default idiom used
// throughout the teacher's relay and tunnel packages (TerminalOutputSender.Send,
// BrowserState.DrainEvents) into a reusable SPMC primitive.
package broadcast

import "sync"

// Lag reports that a subscriber's channel was full and messages had
// to be dropped rather than delivered.
type Lag struct {
	Dropped uint64
}

// Hub fans out values of type T to any number of subscribers. The
// zero value is not usable; use New.
type Hub[T any] struct {
	mu          sync.Mutex
	subscribers map[*Subscription[T]]struct{}
	closed      bool
	capacity    int
}

// New creates a Hub whose subscriber channels have the given buffer
// capacity. Spec requires at least 4096 for session output broadcasts
// and 512 for activity event broadcasts; callers pass the value that
// matches their component.
func New[T any](capacity int) *Hub[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Hub[T]{
		subscribers: make(map[*Subscription[T]]struct{}),
		capacity:    capacity,
	}
}

// Subscription is a single subscriber's view of the broadcast: a data
// channel and a lag channel. Both are closed together when the
// subscription is cancelled or the hub is closed.
type Subscription[T any] struct {
	data chan T
	lag  chan Lag
	hub  *Hub[T]
}

// C returns the channel of delivered values.
func (s *Subscription[T]) C() <-chan T { return s.data }

// Lag returns the channel of lag signals. Drops that happen while a
// signal is still unread are added into that signal's Dropped count.
func (s *Subscription[T]) Lag() <-chan Lag { return s.lag }

// Unsubscribe removes this subscription from the hub and closes its
// channels. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subscribers[s]; !ok {
		return
	}
	delete(s.hub.subscribers, s)
	close(s.data)
	close(s.lag)
}

// Subscribe registers a new subscriber. The returned Subscription must
// be Unsubscribed by the caller when no longer needed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscription[T]{
		data: make(chan T, h.capacity),
		lag:  make(chan Lag, 1),
		hub:  h,
	}
	if h.closed {
		close(sub.data)
		close(sub.lag)
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

// Publish delivers v to every current subscriber without blocking. A
// subscriber whose channel is full is sent a lag signal (best-effort;
// the lag channel itself is never allowed to block the publisher) and
// the value is dropped for that subscriber only.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subscribers {
		select {
		case sub.data <- v:
		default:
			dropped := uint64(1)
			select {
			case prev := <-sub.lag:
				dropped += prev.Dropped
			default:
			}
			select {
			case sub.lag <- Lag{Dropped: dropped}:
			default:
			}
		}
	}
}

// Close terminates the hub: every current subscriber's channels are
// closed and future Subscribe calls return an already-closed
// subscription. Idempotent.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.data)
		close(sub.lag)
	}
	h.subscribers = make(map[*Subscription[T]]struct{})
}

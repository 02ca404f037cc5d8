package core

import (
	"context"
	"sync"
)

// Stream fans published values out to subscribers. New subscribers receive the
// latest value immediately. Each subscriber has a bounded buffer; when it is full
// the oldest pending value is dropped so Publish never blocks.
type Stream[T any] struct {
	mu        sync.Mutex
	latest    T
	hasLatest bool
	subs      map[uint64]*Subscription[T]
	nextID    uint64
	buffer    int
	closed    bool
}

// NewStream constructs a stream whose subscribers buffer up to buffer values.
func NewStream[T any](buffer int) *Stream[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream[T]{subs: make(map[uint64]*Subscription[T]), buffer: buffer}
}

// Subscription is one consumer's view of a Stream.
type Subscription[T any] struct {
	ch     chan T
	stream *Stream[T]
	id     uint64
	once   sync.Once
	done   chan struct{}
}

// Updates returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T { return s.ch }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.stream.remove(s)
}

// Publish records v as the latest value and delivers it to every subscriber.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = v
	s.hasLatest = true
	for _, sub := range s.subs {
		deliver(sub.ch, v)
	}
}

// deliver sends without blocking, evicting the oldest buffered value when full.
// Callers hold the stream lock, so no other sender races on ch.
func deliver[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Latest returns the most recently published value.
func (s *Stream[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// Subscribe registers a consumer. The subscription ends when ctx is done, when
// Close is called, or when the stream closes.
func (s *Stream[T]) Subscribe(ctx context.Context) *Subscription[T] {
	sub := &Subscription[T]{
		ch:     make(chan T, s.buffer),
		stream: s,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.once.Do(func() {
			close(sub.ch)
			close(sub.done)
		})
		return sub
	}
	s.nextID++
	sub.id = s.nextID
	s.subs[sub.id] = sub
	if s.hasLatest {
		sub.ch <- s.latest
	}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

// Subscribers reports the number of active subscriptions.
func (s *Stream[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream[T]) remove(sub *Subscription[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub.id)
	sub.once.Do(func() {
		close(sub.ch)
		close(sub.done)
	})
}

// Close ends every subscription. Later publishes are ignored and later
// subscriptions are closed immediately.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.once.Do(func() {
			close(sub.ch)
			close(sub.done)
		})
	}
}

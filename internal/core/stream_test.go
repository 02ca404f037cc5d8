package core

import (
	"context"
	"testing"
	"time"
)

func recv[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}
	var zero T
	return zero
}

func expectClosed[T any](t *testing.T, sub *Subscription[T]) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription not closed")
		}
	}
}

func TestStreamReplaysLatestToNewSubscribers(t *testing.T) {
	s := NewStream[int](4)
	s.Publish(1)
	s.Publish(2)

	sub := s.Subscribe(context.Background())
	defer sub.Close()
	if got := recv(t, sub); got != 2 {
		t.Fatalf("expected latest value 2, got %d", got)
	}
	s.Publish(3)
	if got := recv(t, sub); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if latest, ok := s.Latest(); !ok || latest != 3 {
		t.Fatalf("unexpected latest %d %v", latest, ok)
	}
}

func TestStreamWithoutValueDeliversNothingOnSubscribe(t *testing.T) {
	s := NewStream[string](1)
	sub := s.Subscribe(context.Background())
	defer sub.Close()
	select {
	case v := <-sub.Updates():
		t.Fatalf("unexpected value %q", v)
	default:
	}
}

func TestStreamDropsOldestWhenBufferFull(t *testing.T) {
	s := NewStream[int](2)
	sub := s.Subscribe(context.Background())
	defer sub.Close()
	for i := 1; i <= 5; i++ {
		s.Publish(i)
	}
	first, second := recv(t, sub), recv(t, sub)
	if first != 4 || second != 5 {
		t.Fatalf("expected the two newest values 4,5; got %d,%d", first, second)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := NewStream[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	sub := s.Subscribe(ctx)
	cancel()
	expectClosed(t, sub)
	waitFor(t, func() bool { return s.Subscribers() == 0 })
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	s := NewStream[int](1)
	sub := s.Subscribe(context.Background())
	sub.Close()
	sub.Close()
	expectClosed(t, sub)
	if s.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Subscribers())
	}
	s.Publish(1)
}

func TestStreamCloseEndsSubscriptions(t *testing.T) {
	s := NewStream[int](1)
	a := s.Subscribe(context.Background())
	b := s.Subscribe(context.Background())
	s.Close()
	expectClosed(t, a)
	expectClosed(t, b)

	late := s.Subscribe(context.Background())
	expectClosed(t, late)
	s.Publish(7)
	if _, ok := s.Latest(); ok {
		t.Fatalf("publish after close must be ignored")
	}
}

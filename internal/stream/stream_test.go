package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribePublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)

	s.Publish(SecurityEvent{Type: EventSignIn, UserID: "user-1"})

	select {
	case evt := <-ch:
		if evt.Type != EventSignIn || evt.UserID != "user-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be filled")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPublishDropsSlowSubscriber(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Subscribe(ctx) // never drained

	// Must not block even though the subscriber buffer fills.
	for i := 0; i < 100; i++ {
		s.Publish(SecurityEvent{Type: EventRefresh})
	}
}

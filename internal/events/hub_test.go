package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TopicRuntime, map[string]any{"type": "state_change"})

	select {
	case ev := <-ch:
		if ev.Type != TopicRuntime {
			t.Errorf("Type = %q, want %q", ev.Type, TopicRuntime)
		}
		if ev.ID != 1 {
			t.Errorf("ID = %d, want 1", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe()
	cancel()

	// Channel should be closed after cancel.
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic.
	h.Publish(TopicLifecycle, nil)
}

func TestSnapshotSince(t *testing.T) {
	h := NewHub(5)
	for range 3 {
		h.Publish(TopicRuntime, nil)
	}

	all := h.SnapshotSince(0)
	if len(all) != 3 {
		t.Fatalf("snapshot = %d events, want 3", len(all))
	}

	tail := h.SnapshotSince(all[1].ID)
	if len(tail) != 1 || tail[0].ID != all[2].ID {
		t.Errorf("tail = %v, want only the last event", tail)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for range 5 {
		h.Publish(TopicRuntime, nil)
	}

	got := h.SnapshotSince(0)
	if len(got) != 3 {
		t.Fatalf("snapshot = %d events, want 3", len(got))
	}
	if got[0].ID != 3 || got[2].ID != 5 {
		t.Errorf("ring holds IDs %d..%d, want 3..5", got[0].ID, got[2].ID)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 300 { // more than the subscriber buffer
			h.Publish(TopicRuntime, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubPublishSubscribe(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	h.PublishJob("job.created", "job-1", nil)

	select {
	case ev := <-ch:
		if ev.Type != "job.created" {
			t.Fatalf("type = %q, want job.created", ev.Type)
		}
		var data map[string]any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data["job_id"] != "job-1" {
			t.Fatalf("job_id = %v, want job-1", data["job_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestHubRingOverwritesOldest(t *testing.T) {
	t.Parallel()

	h := NewHub(2)
	h.Publish("a", nil)
	h.Publish("b", nil)
	h.Publish("c", nil)

	snap := h.SnapshotSince(0)
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	if snap[0].Type != "b" || snap[1].Type != "c" {
		t.Fatalf("snapshot = %q,%q, want b,c", snap[0].Type, snap[1].Type)
	}
}

func TestHubSnapshotSinceFiltersByID(t *testing.T) {
	t.Parallel()

	h := NewHub(8)
	h.Publish("a", nil)
	h.Publish("b", nil)

	snap := h.SnapshotSince(1)
	if len(snap) != 1 || snap[0].Type != "b" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	// Channel buffer is 128; overflow it and ensure Publish returns.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			h.Publish("tick", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(NewEvent(KindSyncCompleted, "test"))

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncCompleted {
			t.Errorf("got kind %q, want %s", evt.Kind, KindSyncCompleted)
		}
		if evt.Timestamp.IsZero() {
			t.Error("event has no timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("net.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindSyncStarted})
	b.Publish(Event{Kind: KindNetOnline})

	select {
	case evt := <-ch:
		if evt.Kind != KindNetOnline {
			t.Errorf("got kind %q, want %s", evt.Kind, KindNetOnline)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("net.", 10)
	unsub()
	unsub() // second call is a no-op

	if n := b.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	b.Publish(Event{Kind: KindNetOffline})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("record.", 1)
	defer unsub()

	b.Publish(Event{Kind: KindRecordQueued})
	// Dropped: the buffer already holds one event.
	b.Publish(Event{Kind: KindRecordCommitted})

	evt := <-ch
	if evt.Kind != KindRecordQueued {
		t.Errorf("got %q, want %s", evt.Kind, KindRecordQueued)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second event %q", evt.Kind)
	default:
	}
}

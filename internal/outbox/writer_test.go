package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/remote"
	"github.com/maclap/cashtrack/internal/store"
	"go.uber.org/zap"
)

func newTestWriter(t *testing.T, online bool, mem *remote.Memory) (*Writer, *store.Queue, *bus.Bus) {
	t.Helper()
	net := &fakeNet{}
	net.online.Store(online)
	q := testQueue(t)
	b := bus.New()
	return NewWriter(q, mem, net, b, zap.NewNop(), Options{}), q, b
}

func TestSubmitOnlineCommitsDirectly(t *testing.T) {
	mem := remote.NewMemory()
	w, q, b := newTestWriter(t, true, mem)
	ch, unsub := b.Subscribe("record.", 4)
	defer unsub()

	out, err := w.Submit(context.Background(), record.KindTransaction, txPayload("coffee"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Queued || out.RemoteID == "" {
		t.Errorf("outcome = %+v, want a direct commit", out)
	}
	if n := unsyncedCount(t, q); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}
	if docs := mem.Collection("transactions"); len(docs) != 1 {
		t.Errorf("remote transactions = %d, want 1", len(docs))
	}
	if evt := <-ch; evt.Kind != bus.KindRecordCommitted {
		t.Errorf("event = %q, want %s", evt.Kind, bus.KindRecordCommitted)
	}
}

func TestSubmitOfflineQueues(t *testing.T) {
	mem := remote.NewMemory()
	w, q, b := newTestWriter(t, false, mem)
	ch, unsub := b.Subscribe("record.", 4)
	defer unsub()

	payload := json.RawMessage(`{"date":"2026-10-17","reading":1532.4,"user":"ana","timestamp":1760659200000}`)
	out, err := w.Submit(context.Background(), record.KindMeterReading, payload)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Queued || !strings.HasPrefix(out.ID, "offline_") {
		t.Errorf("outcome = %+v, want a queued record", out)
	}
	if mem.Calls() != 0 {
		t.Errorf("remote calls = %d, want 0 while offline", mem.Calls())
	}

	rec, err := q.Get(context.Background(), out.ID)
	if err != nil || rec == nil {
		t.Fatalf("Get(%s) = %v, %v", out.ID, rec, err)
	}
	if rec.Kind != record.KindMeterReading || rec.RetryCount != 0 || rec.Synced {
		t.Errorf("queued record = %+v", rec)
	}
	if evt := <-ch; evt.Kind != bus.KindRecordQueued {
		t.Errorf("event = %q, want %s", evt.Kind, bus.KindRecordQueued)
	}
}

func TestSubmitFallsBackToQueueOnRemoteError(t *testing.T) {
	mem := remote.NewMemory()
	mem.FailWith = func(int, string, json.RawMessage) error { return errors.New("unavailable") }
	w, q, _ := newTestWriter(t, true, mem)

	out, err := w.Submit(context.Background(), record.KindTransaction, txPayload("rent"))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Queued {
		t.Errorf("outcome = %+v, want queued after remote failure", out)
	}
	if n := unsyncedCount(t, q); n != 1 {
		t.Errorf("queue count = %d, want 1", n)
	}
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		kind    record.Kind
		payload string
		want    error
	}{
		{"unknown kind", record.Kind("invoice"), `{}`, record.ErrUnknownKind},
		{"bad type", record.KindTransaction, `{"date":"2026-10-17","type":"sideways","amount":1,"remark":"x","user":"ana","timestamp":1}`, record.ErrInvalidPayload},
		{"not json", record.KindNote, `{`, record.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := remote.NewMemory()
			w, q, _ := newTestWriter(t, false, mem)
			_, err := w.Submit(context.Background(), tt.kind, json.RawMessage(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
			if n := unsyncedCount(t, q); n != 0 {
				t.Errorf("queue count = %d, want 0", n)
			}
		})
	}
}

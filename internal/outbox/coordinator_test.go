package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/remote"
	"github.com/maclap/cashtrack/internal/store"
	"go.uber.org/zap"
)

type fakeNet struct{ online atomic.Bool }

func (f *fakeNet) Online() bool { return f.online.Load() }

// blockingRemote never answers; every create ends with its context.
type blockingRemote struct{ calls atomic.Int32 }

func (b *blockingRemote) Create(ctx context.Context, _ string, _ json.RawMessage) (string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return "", ctx.Err()
}

// cancelAfterCommit commits to mem and then cancels the drain's context,
// like a client that gives up right after the remote accepted the write.
type cancelAfterCommit struct {
	mem    *remote.Memory
	cancel context.CancelFunc
}

func (c *cancelAfterCommit) Create(ctx context.Context, collection string, payload json.RawMessage) (string, error) {
	id, err := c.mem.Create(ctx, collection, payload)
	c.cancel()
	return id, err
}

// stuckDropQueue fails every dead-letter move while stuck is set.
type stuckDropQueue struct {
	*store.Queue
	stuck atomic.Bool
}

func (q *stuckDropQueue) MoveToDeadLetter(ctx context.Context, id string, cause error) (bool, error) {
	if q.stuck.Load() {
		return false, fmt.Errorf("dead letter %s: %w", id, store.ErrStorageWriteFailed)
	}
	return q.Queue.MoveToDeadLetter(ctx, id, cause)
}

func testQueue(t *testing.T) *store.Queue {
	t.Helper()
	q := store.NewQueue(filepath.Join(t.TempDir(), "queue.db"))
	if err := q.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func txPayload(remark string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"date":"2026-10-17","type":"in","amount":120.5,"remark":%q,"user":"ana","timestamp":1760659200000}`,
		remark))
}

func enqueueN(t *testing.T, q *store.Queue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := range n {
		id, err := q.Enqueue(context.Background(), record.KindTransaction, txPayload(fmt.Sprintf("sale %d", i)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func newTestCoordinator(q Queue, rs remote.Store, n Connectivity, opts Options) (*Coordinator, *bus.Bus) {
	b := bus.New()
	return NewCoordinator(q, rs, n, b, zap.NewNop(), opts), b
}

func drainOnce(t *testing.T, c *Coordinator) Result {
	t.Helper()
	res, ran := c.Drain(context.Background())
	if !ran {
		t.Fatal("Drain() was coalesced, want a full cycle")
	}
	return res
}

func unsyncedCount(t *testing.T, q *store.Queue) int {
	t.Helper()
	n, err := q.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// Three records written offline all land remotely once connectivity returns.
func TestDrainOfflineThenOnline(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	net := &fakeNet{}
	c, _ := newTestCoordinator(q, mem, net, Options{})

	enqueueN(t, q, 3)

	if res := drainOnce(t, c); res != (Result{}) {
		t.Errorf("offline drain = %+v, want zero result", res)
	}
	if mem.Calls() != 0 {
		t.Errorf("offline drain made %d remote calls, want 0", mem.Calls())
	}
	if n := unsyncedCount(t, q); n != 3 {
		t.Fatalf("offline drain changed queue: count = %d, want 3", n)
	}

	net.online.Store(true)
	res := drainOnce(t, c)
	if res != (Result{Success: 3}) {
		t.Errorf("drain = %+v, want {Success:3 Failed:0}", res)
	}
	if n := unsyncedCount(t, q); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}

	docs := mem.Collection("transactions")
	if len(docs) != 3 {
		t.Fatalf("remote transactions = %d, want 3", len(docs))
	}
	for i, doc := range docs {
		if want := fmt.Sprintf("sale %d", i); !strings.Contains(string(doc.Payload), want) {
			t.Errorf("doc %d payload = %s, want remark %q (enqueue order)", i, doc.Payload, want)
		}
	}
}

// A record that always fails is counted failed exactly once, on the cycle
// that exhausts its budget, and is never attempted again.
func TestDrainRetryBudget(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	mem.FailWith = func(int, string, json.RawMessage) error { return errors.New("quota exceeded") }
	net := &fakeNet{}
	net.online.Store(true)
	c, b := newTestCoordinator(q, mem, net, Options{})
	dropped, unsub := b.Subscribe(bus.KindSyncRecordDropped, 4)
	defer unsub()

	ids := enqueueN(t, q, 1)

	want := []Result{{}, {}, {Failed: 1}}
	totalFailed := 0
	for i, w := range want {
		res := drainOnce(t, c)
		if res != w {
			t.Errorf("drain %d = %+v, want %+v", i+1, res, w)
		}
		totalFailed += res.Failed
		if i < 2 {
			rec, err := q.Get(context.Background(), ids[0])
			if err != nil || rec == nil {
				t.Fatalf("record missing after drain %d: %v", i+1, err)
			}
			if rec.RetryCount != i+1 {
				t.Errorf("retry count after drain %d = %d, want %d", i+1, rec.RetryCount, i+1)
			}
		}
	}
	if totalFailed != 1 {
		t.Errorf("cumulative failed = %d, want 1", totalFailed)
	}
	if n := unsyncedCount(t, q); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}

	if res := drainOnce(t, c); res != (Result{}) {
		t.Errorf("fourth drain = %+v, want zero result", res)
	}
	if mem.Calls() != 3 {
		t.Errorf("remote calls = %d, want 3", mem.Calls())
	}

	select {
	case evt := <-dropped:
		d := evt.Payload.(Dropped)
		if d.ID != ids[0] || !errors.Is(d.Err, ErrRetryBudgetExhausted) || !errors.Is(d.Err, ErrRemoteCommitFailed) {
			t.Errorf("dropped event = %+v", d)
		}
	default:
		t.Error("no sync.record_dropped event")
	}

	dead, err := q.ListDeadLetters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].ID != ids[0] || dead[0].RetryCount != 3 {
		t.Fatalf("dead letters = %+v, want the exhausted record with retry 3", dead)
	}
	if !strings.Contains(dead[0].LastError, "quota exceeded") {
		t.Errorf("dead letter error = %q", dead[0].LastError)
	}
}

// An exhausted record whose drop did not persist is neither counted nor
// attempted again; the drop is finished by a later drain.
func TestDrainUnpersistedDropIsRetriedWithoutRemote(t *testing.T) {
	q := &stuckDropQueue{Queue: testQueue(t)}
	q.stuck.Store(true)
	mem := remote.NewMemory()
	mem.FailWith = func(int, string, json.RawMessage) error { return errors.New("unavailable") }
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, mem, net, Options{})

	ids := enqueueN(t, q.Queue, 1)
	failed := 0
	for range 4 {
		failed += drainOnce(t, c).Failed
	}
	if failed != 0 {
		t.Errorf("failed while the drop is stuck = %d, want 0", failed)
	}
	if mem.Calls() != 3 {
		t.Errorf("remote calls = %d, want 3", mem.Calls())
	}
	rec, err := q.Get(context.Background(), ids[0])
	if err != nil || rec == nil || rec.RetryCount != 3 {
		t.Fatalf("record = %+v, %v; want still queued with retry 3", rec, err)
	}

	q.stuck.Store(false)
	if res := drainOnce(t, c); res != (Result{Failed: 1}) {
		t.Errorf("drain = %+v, want {Success:0 Failed:1}", res)
	}
	if mem.Calls() != 3 {
		t.Errorf("remote calls after drop = %d, want 3", mem.Calls())
	}
	if n := unsyncedCount(t, q.Queue); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}
	dead, err := q.ListDeadLetters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || !strings.Contains(dead[0].LastError, "unavailable") {
		t.Errorf("dead letters = %+v", dead)
	}
}

func TestDrainRetryBudgetWithoutDeadLetter(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	mem.FailWith = func(int, string, json.RawMessage) error { return remote.ErrRejected }
	net := &fakeNet{}
	net.online.Store(true)
	opts := DefaultOptions()
	opts.DropExhausted = true
	c, _ := newTestCoordinator(q, mem, net, opts)

	enqueueN(t, q, 1)
	var failed int
	for range 3 {
		failed += drainOnce(t, c).Failed
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	dead, err := q.ListDeadLetters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 0 {
		t.Errorf("dead letters = %d, want 0 when disabled", len(dead))
	}
	if n := unsyncedCount(t, q); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}
}

// One good and one bad record: the good one is committed, the bad one
// stays queued with one retry used and is not counted yet.
func TestDrainPartialFailure(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	mem.FailWith = func(_ int, _ string, p json.RawMessage) error {
		if strings.Contains(string(p), "sale 1") {
			return errors.New("permission denied")
		}
		return nil
	}
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, mem, net, Options{})

	ids := enqueueN(t, q, 2)
	res := drainOnce(t, c)
	if res != (Result{Success: 1}) {
		t.Errorf("drain = %+v, want {Success:1 Failed:0}", res)
	}

	left, err := q.ListUnsynced(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].ID != ids[1] {
		t.Fatalf("unsynced = %+v, want only the second record", left)
	}
	if left[0].RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", left[0].RetryCount)
	}
	if !strings.Contains(left[0].LastError, "permission denied") {
		t.Errorf("last error = %q", left[0].LastError)
	}
}

// A second trigger during a running drain is coalesced: no record is
// attempted twice.
func TestDrainExclusive(t *testing.T) {
	q := testQueue(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	mem := remote.NewMemory()
	mem.FailWith = func(call int, _ string, _ json.RawMessage) error {
		if call == 1 {
			close(entered)
			<-release
		}
		return nil
	}
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, mem, net, Options{})

	enqueueN(t, q, 2)

	done := make(chan Result, 1)
	go func() {
		res, _ := c.Drain(context.Background())
		done <- res
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first drain never reached the remote store")
	}
	if !c.Draining() {
		t.Error("Draining() = false during a drain")
	}
	if _, ran := c.Drain(context.Background()); ran {
		t.Error("second Drain() ran concurrently, want it coalesced")
	}
	close(release)

	res := <-done
	if res != (Result{Success: 2}) {
		t.Errorf("drain = %+v, want {Success:2 Failed:0}", res)
	}
	if mem.Calls() != 2 {
		t.Errorf("remote calls = %d, want 2 (one per record)", mem.Calls())
	}
	if c.Draining() {
		t.Error("Draining() = true after the drain finished")
	}
}

func TestDrainAttemptTimeoutIsTransient(t *testing.T) {
	q := testQueue(t)
	rs := &blockingRemote{}
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, rs, net, Options{AttemptTimeout: 20 * time.Millisecond})

	ids := enqueueN(t, q, 2)
	res := drainOnce(t, c)
	if res != (Result{}) {
		t.Errorf("drain = %+v, want zero result", res)
	}
	if rs.calls.Load() != 2 {
		t.Errorf("attempts = %d, want 2 (a hang must not stall the cycle)", rs.calls.Load())
	}
	rec, err := q.Get(context.Background(), ids[0])
	if err != nil || rec == nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RetryCount != 1 || !strings.Contains(rec.LastError, "timed out") {
		t.Errorf("record = retry %d, error %q; want retry 1 with timeout error", rec.RetryCount, rec.LastError)
	}
}

func TestDrainCancelledKeepsBudget(t *testing.T) {
	q := testQueue(t)
	rs := &blockingRemote{}
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, rs, net, Options{})

	ids := enqueueN(t, q, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ran := c.Drain(ctx); !ran {
		t.Fatal("Drain() coalesced")
	}

	rec, err := q.Get(context.Background(), ids[0])
	if err != nil || rec == nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.RetryCount != 0 {
		t.Errorf("retry count = %d after shutdown, want 0", rec.RetryCount)
	}
}

// A committed record is removed locally even when the trigger is cancelled
// right after the remote accepted it, so it is never sent twice.
func TestDrainCancelledAfterCommitRemovesRecord(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := &cancelAfterCommit{mem: mem, cancel: cancel}
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, rs, net, Options{})

	enqueueN(t, q, 1)
	res, ran := c.Drain(ctx)
	if !ran || res != (Result{Success: 1}) {
		t.Fatalf("drain = %+v ran=%v, want {Success:1}", res, ran)
	}
	if n := unsyncedCount(t, q); n != 0 {
		t.Fatalf("queue count = %d, want 0", n)
	}

	drainOnce(t, c)
	if docs := len(mem.Documents()); docs != 1 {
		t.Errorf("remote docs = %d, want 1", docs)
	}
}

func TestDrainNowStopsAfterStop(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	net := &fakeNet{}
	net.online.Store(true)
	c, _ := newTestCoordinator(q, mem, net, Options{})

	enqueueN(t, q, 2)
	res, ran := c.DrainNow()
	if !ran || res != (Result{Success: 2}) {
		t.Errorf("DrainNow = %+v ran=%v, want {Success:2}", res, ran)
	}

	c.Stop()
	enqueueN(t, q, 1)
	if _, ran := c.DrainNow(); ran {
		t.Error("DrainNow ran after Stop")
	}
	if mem.Calls() != 2 {
		t.Errorf("remote calls = %d, want 2", mem.Calls())
	}
}

func TestDrainStorageUnavailable(t *testing.T) {
	q := store.NewQueue(filepath.Join(t.TempDir(), "missing", "dir", "queue.db"))
	mem := remote.NewMemory()
	net := &fakeNet{}
	net.online.Store(true)
	c, b := newTestCoordinator(q, mem, net, Options{})
	completed, unsub := b.Subscribe(bus.KindSyncCompleted, 1)
	defer unsub()

	if res := drainOnce(t, c); res != (Result{}) {
		t.Errorf("drain = %+v, want zero result", res)
	}
	select {
	case evt := <-completed:
		if evt.Payload.(Result) != (Result{}) {
			t.Errorf("completed payload = %+v", evt.Payload)
		}
	default:
		t.Error("sync.completed not published")
	}
}

func TestStartDrainsOnStartupAndReconnect(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	net := &fakeNet{}
	net.online.Store(true)
	c, b := newTestCoordinator(q, mem, net, Options{Interval: time.Hour})
	completed, unsub := b.Subscribe(bus.KindSyncCompleted, 4)
	defer unsub()

	enqueueN(t, q, 1)
	c.Start(context.Background())
	defer c.Stop()

	waitResult := func(want Result) {
		t.Helper()
		select {
		case evt := <-completed:
			if got := evt.Payload.(Result); got != want {
				t.Errorf("result = %+v, want %+v", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for sync.completed")
		}
	}
	waitResult(Result{Success: 1})

	enqueueN(t, q, 2)
	b.Publish(bus.NewEvent(bus.KindNetOnline, true))
	waitResult(Result{Success: 2})

	if mem.Calls() != 3 {
		t.Errorf("remote calls = %d, want 3", mem.Calls())
	}
}

func TestStartOfflineSkipsStartupDrain(t *testing.T) {
	q := testQueue(t)
	mem := remote.NewMemory()
	c, b := newTestCoordinator(q, mem, &fakeNet{}, Options{Interval: 10 * time.Millisecond})
	started, unsub := b.Subscribe(bus.KindSyncStarted, 1)
	defer unsub()

	enqueueN(t, q, 1)
	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	select {
	case <-started:
		t.Error("drain started while offline")
	default:
	}
	if mem.Calls() != 0 {
		t.Errorf("remote calls = %d, want 0", mem.Calls())
	}
}

func TestStopReleasesSubscription(t *testing.T) {
	q := testQueue(t)
	c, b := newTestCoordinator(q, remote.NewMemory(), &fakeNet{}, Options{})

	c.Start(context.Background())
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Subscribers())
	}
	c.Stop()
	if b.Subscribers() != 0 {
		t.Errorf("subscribers after Stop = %d, want 0", b.Subscribers())
	}
}

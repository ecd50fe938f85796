// Package outbox replays locally queued writes against the remote store.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maclap/cashtrack/internal/bus"
	"github.com/maclap/cashtrack/internal/record"
	"github.com/maclap/cashtrack/internal/remote"
	"github.com/maclap/cashtrack/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrRemoteCommitFailed wraps any error from a remote create attempt.
	ErrRemoteCommitFailed = errors.New("remote commit failed")
	// ErrRetryBudgetExhausted marks a record dropped after its last allowed attempt.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
)

// Queue is the subset of the durable queue the coordinator drives.
type Queue interface {
	ListUnsynced(ctx context.Context) ([]store.OfflineRecord, error)
	RemoveRecord(ctx context.Context, id string) error
	UpdateRetry(ctx context.Context, id string, retryCount int, cause error) (bool, error)
	MoveToDeadLetter(ctx context.Context, id string, cause error) (bool, error)
}

// Connectivity reports whether the remote store is reachable.
type Connectivity interface {
	Online() bool
}

// Options tunes a Coordinator. The zero value dead-letters exhausted records.
type Options struct {
	Interval       time.Duration
	RetryBudget    int
	AttemptTimeout time.Duration
	DropExhausted  bool // delete exhausted records instead of dead-lettering them
}

// DefaultOptions returns the standard drain settings.
func DefaultOptions() Options {
	return Options{
		Interval:       30 * time.Second,
		RetryBudget:    3,
		AttemptTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = d.RetryBudget
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = d.AttemptTimeout
	}
	return o
}

// Result is the outcome of one drain cycle. Records that failed but still
// have budget left appear in neither count.
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Dropped is the payload of a sync.record_dropped event.
type Dropped struct {
	ID         string
	Kind       record.Kind
	RetryCount int
	DeadLetter bool
	Err        error
}

// Coordinator drains the queue whenever it is triggered and the remote is
// reachable. At most one drain runs at a time.
type Coordinator struct {
	queue  Queue
	remote remote.Store
	net    Connectivity
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	draining atomic.Bool

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator. Zero option fields take defaults.
func NewCoordinator(q Queue, rs remote.Store, n Connectivity, b *bus.Bus, logger *zap.Logger, opts Options) *Coordinator {
	return &Coordinator{
		queue:  q,
		remote: rs,
		net:    n,
		bus:    b,
		logger: logger,
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective options.
func (c *Coordinator) Options() Options { return c.opts }

// Start runs a startup drain if online, then drains on every tick and on
// every connectivity-restored event until Stop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.runCtx = ctx
	c.wg.Add(1)
	c.mu.Unlock()
	onlineCh, unsub := c.bus.Subscribe(bus.KindNetOnline, 8)

	go func() {
		defer c.wg.Done()
		defer unsub()

		if c.net.Online() {
			c.trigger(ctx, "startup")
		}

		ticker := time.NewTicker(c.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.trigger(ctx, "tick")
			case <-onlineCh:
				c.trigger(ctx, "online")
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the trigger loop, releases the ticker and bus subscription,
// and waits for an in-flight drain to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// DrainNow runs a manual drain on the coordinator's own context, so a
// caller that gives up waiting does not interrupt the cycle. Stop waits for
// it. After Stop it does nothing and reports false.
func (c *Coordinator) DrainNow() (Result, bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return Result{}, false
	}
	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	res, ran := c.Drain(ctx)
	if !ran {
		c.logger.Debug("drain trigger coalesced", zap.String("trigger", "manual"))
	}
	return res, ran
}

// Draining reports whether a drain cycle is in progress.
func (c *Coordinator) Draining() bool { return c.draining.Load() }

func (c *Coordinator) trigger(ctx context.Context, reason string) {
	if _, ran := c.Drain(ctx); !ran {
		c.logger.Debug("drain trigger coalesced", zap.String("trigger", reason))
	}
}

// Drain runs one drain cycle. It reports false, without doing anything, if
// another cycle is already running. A cycle never fails as a whole; per
// record failures are counted in the Result.
func (c *Coordinator) Drain(ctx context.Context) (Result, bool) {
	if !c.draining.CompareAndSwap(false, true) {
		return Result{}, false
	}
	defer c.draining.Store(false)

	if !c.net.Online() {
		c.logger.Debug("drain skipped: offline")
		return Result{}, true
	}

	start := time.Now()
	c.bus.Publish(bus.NewEvent(bus.KindSyncStarted, nil))
	res := c.drain(ctx)
	c.logger.Info("drain completed",
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
	c.bus.Publish(bus.NewEvent(bus.KindSyncCompleted, res))
	return res, true
}

func (c *Coordinator) drain(ctx context.Context) Result {
	var res Result

	pending, err := c.queue.ListUnsynced(ctx)
	if err != nil {
		c.logger.Error("failed to list unsynced records", zap.Error(err))
		return res
	}

	// Local bookkeeping must survive a cancelled trigger: a record committed
	// remotely but left in the queue would be sent twice.
	local := context.WithoutCancel(ctx)

	for i, rec := range pending {
		if ctx.Err() != nil {
			c.logger.Info("drain interrupted", zap.Int("remaining", len(pending)-i))
			return res
		}

		if rec.RetryCount >= c.opts.RetryBudget {
			// A previous drop did not persist; finish it without another attempt.
			cause := errors.New(rec.LastError)
			if c.drop(local, rec, rec.RetryCount, cause) {
				res.Failed++
			}
			continue
		}

		remoteID, err := c.commit(ctx, rec.Kind, rec.Payload)
		if err == nil {
			if err := c.queue.RemoveRecord(local, rec.ID); err != nil {
				c.logger.Error("committed record not removed; it will be sent again",
					zap.Error(err), zap.String("id", rec.ID), zap.String("remote_id", remoteID))
			}
			res.Success++
			continue
		}
		if ctx.Err() != nil {
			// Shutdown, not a remote failure: keep the retry budget intact.
			return res
		}
		if c.fail(local, rec, err) {
			res.Failed++
		}
	}
	return res
}

func (c *Coordinator) commit(ctx context.Context, kind record.Kind, payload json.RawMessage) (string, error) {
	collection, err := kind.Collection()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRemoteCommitFailed, err)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.AttemptTimeout)
	defer cancel()

	id, err := c.remote.Create(attemptCtx, collection, payload)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("attempt timed out after %s: %w", c.opts.AttemptTimeout, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrRemoteCommitFailed, collection, err)
	}
	return id, nil
}

// fail records a failed attempt and reports whether the record left the
// queue for good.
func (c *Coordinator) fail(ctx context.Context, rec store.OfflineRecord, cause error) bool {
	retries := rec.RetryCount + 1
	updated, err := c.queue.UpdateRetry(ctx, rec.ID, retries, cause)
	if err != nil {
		c.logger.Error("failed to record retry", zap.Error(err), zap.String("id", rec.ID))
		return false
	}
	if !updated {
		c.logger.Warn("record changed during drain", zap.String("id", rec.ID))
		return false
	}

	if retries < c.opts.RetryBudget {
		c.logger.Warn("record commit failed; will retry",
			zap.Error(cause),
			zap.String("id", rec.ID),
			zap.String("kind", rec.Kind.String()),
			zap.Int("retry_count", retries),
		)
		return false
	}
	return c.drop(ctx, rec, retries, cause)
}

// drop removes an exhausted record, to the dead letter table unless
// DropExhausted is set. It reports false if the record is still queued.
func (c *Coordinator) drop(ctx context.Context, rec store.OfflineRecord, retries int, cause error) bool {
	deadLetter := !c.opts.DropExhausted
	var err error
	if deadLetter {
		_, err = c.queue.MoveToDeadLetter(ctx, rec.ID, cause)
	} else {
		err = c.queue.RemoveRecord(ctx, rec.ID)
	}
	if err != nil {
		c.logger.Error("failed to drop exhausted record; retrying the drop next drain",
			zap.Error(err), zap.String("id", rec.ID))
		return false
	}

	dropErr := fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, retries, cause)
	c.logger.Error("record dropped",
		zap.Error(dropErr),
		zap.String("id", rec.ID),
		zap.String("kind", rec.Kind.String()),
		zap.Bool("dead_letter", deadLetter),
	)
	c.bus.Publish(bus.NewEvent(bus.KindSyncRecordDropped, Dropped{
		ID:         rec.ID,
		Kind:       rec.Kind,
		RetryCount: retries,
		DeadLetter: deadLetter,
		Err:        dropErr,
	}))
	return true
}

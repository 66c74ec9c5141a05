package tasks

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Config holds tracker tuning knobs.
type Config struct {
	// OperationTimeout is the maximum duration a single operation may run
	// before it is force-failed. Zero means no timeout.
	OperationTimeout time.Duration

	// Retention is how long terminal records are kept before the sweep
	// evicts them. Zero means records are kept for the process lifetime.
	Retention time.Duration

	// SweepInterval is how often the eviction sweep runs. Only meaningful
	// when Retention is set; defaults to one minute.
	SweepInterval time.Duration
}

// DefaultConfig returns the tracker configuration used by the servers:
// a generous per-operation ceiling (agent invocations chain several cloud
// calls) and an hour of poll-ability after completion.
func DefaultConfig() Config {
	return Config{
		OperationTimeout: 15 * time.Minute,
		Retention:        1 * time.Hour,
		SweepInterval:    1 * time.Minute,
	}
}

// record is the tracker's internal mutable state for one task, plus the
// cancel handle for its worker context. Task snapshots are copied out of it
// under the tracker lock.
type record struct {
	task   Task
	cancel context.CancelFunc
}

// Tracker runs submitted operations on worker goroutines and answers status
// polls. It is an injectable component; construct one per server process
// and pass it to request handlers; there is no package-level instance.
//
// The id→record map is the only shared mutable state. A coarse RWMutex is
// deliberate: expected throughput is a handful of concurrent agent runs,
// and each record's lifecycle is driven by exactly one worker goroutine.
type Tracker struct {
	cfg Config

	mu      sync.RWMutex
	records map[string]*record

	journal *Journal // optional, nil-safe

	wg        sync.WaitGroup
	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewTracker creates a tracker. journal may be nil; when present, terminal
// tasks are recorded to it for post-restart audit.
func NewTracker(cfg Config, journal *Journal) *Tracker {
	if cfg.Retention > 0 && cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	t := &Tracker{
		cfg:       cfg,
		records:   make(map[string]*record),
		journal:   journal,
		stopSweep: make(chan struct{}),
	}
	if cfg.Retention > 0 {
		t.wg.Add(1)
		go t.sweepLoop()
	}
	return t
}

// Submit accepts an operation, returns a fresh unique identifier
// immediately, and schedules the operation without blocking. The identifier
// is resolvable via Status before Submit returns.
//
// ctx bounds the whole operation: the worker derives its context from it,
// so canceling ctx cancels the task. Use context.Background() for
// fire-and-forget submissions.
func (t *Tracker) Submit(ctx context.Context, description string, op Operation) string {
	id := uuid.NewString()
	opCtx, cancel := context.WithCancel(ctx)

	rec := &record{
		task: Task{
			ID:          id,
			Description: description,
			State:       StatePending,
			CreatedAt:   timeNow().UTC(),
		},
		cancel: cancel,
	}

	t.mu.Lock()
	t.records[id] = rec
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(opCtx, cancel, id, op)

	return id
}

// Status returns a snapshot of the task record. Failed tasks are a normal
// terminal state here, never an error: the only error Status returns is
// ErrTaskNotFound, so pollers can always distinguish "unknown id" from
// "found but failed".
func (t *Tracker) Status(id string) (Task, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return rec.task, nil
}

// Cancel requests cancellation of a task. Canceling an already-terminal
// task is a no-op that reports the current state. The transition to
// Canceled happens on the worker goroutine when the operation observes
// its context; Cancel only fires the signal.
func (t *Tracker) Cancel(id string) (Task, error) {
	t.mu.RLock()
	rec, ok := t.records[id]
	t.mu.RUnlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	rec.cancel()
	return t.Status(id)
}

// Close stops the retention sweep and waits for in-flight operations to
// reach a terminal state. In-flight contexts are not canceled; callers
// that want a hard stop should cancel the contexts they passed to Submit.
func (t *Tracker) Close() {
	t.sweepOnce.Do(func() { close(t.stopSweep) })
	t.wg.Wait()
}

// run drives one task through its lifecycle. It is the only goroutine that
// mutates this record's state, so the transitions Pending→Running→terminal
// are strictly ordered.
func (t *Tracker) run(ctx context.Context, cancel context.CancelFunc, id string, op Operation) {
	defer t.wg.Done()
	defer cancel()

	if t.cfg.OperationTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeoutCause(ctx, t.cfg.OperationTimeout,
			fmt.Errorf("timed out after %s", t.cfg.OperationTimeout))
		defer timeoutCancel()

		// The context deadline only works for operations that observe it.
		// The watchdog force-fails the record at expiry regardless; when
		// the operation eventually returns, the terminal check in
		// transition makes its late write a no-op.
		watchdog := time.AfterFunc(t.cfg.OperationTimeout, func() {
			expired := timeNow().UTC()
			t.transition(id, func(task *Task) {
				task.State = StateFailed
				task.Error = fmt.Sprintf("timed out after %s", t.cfg.OperationTimeout)
				task.FinishedAt = &expired
			})
		})
		defer watchdog.Stop()
	}

	started := timeNow().UTC()
	t.transition(id, func(task *Task) {
		task.State = StateRunning
		task.StartedAt = &started
	})

	result, err := op(ctx)

	finished := timeNow().UTC()
	t.transition(id, func(task *Task) {
		task.FinishedAt = &finished
		switch {
		case err == nil:
			task.State = StateCompleted
			task.Result = result
		case ctx.Err() != nil:
			// Context loss wins over whatever error the operation
			// surfaced while unwinding.
			if cause := context.Cause(ctx); cause == context.Canceled {
				task.State = StateCanceled
				task.Error = "canceled"
			} else {
				task.State = StateFailed
				task.Error = cause.Error()
			}
		default:
			task.State = StateFailed
			task.Error = err.Error()
		}
	})

	if t.journal != nil {
		snapshot, statusErr := t.Status(id)
		if statusErr == nil {
			if jerr := t.journal.Record(snapshot); jerr != nil {
				log.Printf("WARNING: task journal write for %s: %v", id, jerr)
			}
		}
	}
}

// transition applies fn to the task under the write lock. Terminal records
// are never touched again, which makes Completed/Failed/Canceled absorbing
// even if a late timeout or cancel races the operation's own return.
func (t *Tracker) transition(id string, fn func(*Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok || rec.task.State.Terminal() {
		return
	}
	fn(&rec.task)
}

// sweepLoop evicts terminal records older than the retention window.
func (t *Tracker) sweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopSweep:
			return
		case <-ticker.C:
			t.evictExpired()
		}
	}
}

func (t *Tracker) evictExpired() {
	cutoff := timeNow().UTC().Add(-t.cfg.Retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, rec := range t.records {
		if rec.task.State.Terminal() && rec.task.FinishedAt != nil && rec.task.FinishedAt.Before(cutoff) {
			delete(t.records, id)
		}
	}
}

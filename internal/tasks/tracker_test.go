package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitForTerminal polls until the task reaches a terminal state or the
// deadline passes. Returns the final snapshot.
func waitForTerminal(t *testing.T, tr *Tracker, id string) Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := tr.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) returned %v while waiting for terminal state", id, err)
		}
		if task.State.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", id)
	return Task{}
}

// --- Submit / Status ---

func TestSubmit_ResolvableImmediately(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	release := make(chan struct{})
	id := tr.Submit(context.Background(), "slow op", func(ctx context.Context) (string, error) {
		<-release
		return "ok", nil
	})

	task, err := tr.Status(id)
	if err != nil {
		t.Fatalf("Status right after Submit = %v, want task", err)
	}
	if task.State.Terminal() {
		t.Errorf("state right after Submit = %s, want pending or running", task.State)
	}
	close(release)

	final := waitForTerminal(t, tr, id)
	if final.State != StateCompleted {
		t.Errorf("final state = %s, want completed", final.State)
	}
	if final.Result != "ok" {
		t.Errorf("result = %q, want %q", final.Result, "ok")
	}
	if final.Error != "" {
		t.Errorf("completed task carries error %q", final.Error)
	}
}

func TestSubmit_FailureStoredOnRecord(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	id := tr.Submit(context.Background(), "doomed op", func(ctx context.Context) (string, error) {
		return "", errors.New("quota exceeded")
	})

	final := waitForTerminal(t, tr, id)
	if final.State != StateFailed {
		t.Errorf("final state = %s, want failed", final.State)
	}
	if final.Error != "quota exceeded" {
		t.Errorf("error = %q, want %q", final.Error, "quota exceeded")
	}
	if final.Result != "" {
		t.Errorf("failed task carries result %q", final.Result)
	}
}

func TestStatus_UnknownID(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	if _, err := tr.Status("00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Status(unknown) = %v, want ErrTaskNotFound", err)
	}
}

func TestSubmit_ConcurrentIDsAreDistinct(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	const n = 100
	var (
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := tr.Submit(context.Background(), "noop", func(ctx context.Context) (string, error) {
				return "done", nil
			})
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("got %d distinct ids from %d submits", len(ids), n)
	}
}

// --- Terminal states are absorbing ---

func TestTransition_TerminalIsAbsorbing(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	id := tr.Submit(context.Background(), "quick", func(ctx context.Context) (string, error) {
		return "first", nil
	})
	final := waitForTerminal(t, tr, id)

	// A late transition attempt must not overwrite the terminal record.
	tr.transition(id, func(task *Task) {
		task.State = StateFailed
		task.Error = "late writer"
	})

	again, err := tr.Status(id)
	if err != nil {
		t.Fatalf("Status = %v", err)
	}
	if again.State != final.State || again.Result != final.Result {
		t.Errorf("terminal record changed: was %+v, now %+v", final, again)
	}
}

// --- Cancellation ---

func TestCancel_RunningTask(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	started := make(chan struct{})
	id := tr.Submit(context.Background(), "cancelable", func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})
	<-started

	if _, err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel = %v", err)
	}

	final := waitForTerminal(t, tr, id)
	if final.State != StateCanceled {
		t.Errorf("state after cancel = %s, want canceled", final.State)
	}
}

func TestCancel_UnknownID(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	if _, err := tr.Cancel("nonexistent-id"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Cancel(unknown) = %v, want ErrTaskNotFound", err)
	}
}

func TestCancel_CompletedTaskIsNoop(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	id := tr.Submit(context.Background(), "quick", func(ctx context.Context) (string, error) {
		return "done", nil
	})
	waitForTerminal(t, tr, id)

	task, err := tr.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel after completion = %v", err)
	}
	if task.State != StateCompleted {
		t.Errorf("cancel flipped a completed task to %s", task.State)
	}
}

// --- Timeout ---

func TestTimeout_ForceFailsRunningTask(t *testing.T) {
	tr := NewTracker(Config{OperationTimeout: 20 * time.Millisecond}, nil)
	defer tr.Close()

	id := tr.Submit(context.Background(), "hung op", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	final := waitForTerminal(t, tr, id)
	if final.State != StateFailed {
		t.Errorf("state after timeout = %s, want failed", final.State)
	}
	if final.Error == "" {
		t.Error("timed-out task has empty error string")
	}
}

func TestTimeout_ContextIgnoringOperationStillFails(t *testing.T) {
	tr := NewTracker(Config{OperationTimeout: 20 * time.Millisecond}, nil)
	defer tr.Close()

	done := make(chan struct{})
	id := tr.Submit(context.Background(), "stubborn op", func(ctx context.Context) (string, error) {
		defer close(done)
		time.Sleep(150 * time.Millisecond) // never checks ctx
		return "late", nil
	})

	// Well past the deadline but before the operation returns, the record
	// must already be failed, not still running.
	time.Sleep(80 * time.Millisecond)
	task, err := tr.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if task.State != StateFailed {
		t.Errorf("state past deadline = %s, want failed", task.State)
	}

	// The late return must not resurrect the record as completed.
	<-done
	final := waitForTerminal(t, tr, id)
	if final.State != StateFailed {
		t.Errorf("final state = %s, want failed", final.State)
	}
	if final.Result != "" {
		t.Errorf("late result leaked into the record: %q", final.Result)
	}
	if !strings.Contains(final.Error, "timed out") {
		t.Errorf("error = %q, want timeout message", final.Error)
	}
}

// --- Retention ---

func TestEviction_RemovesExpiredTerminalRecords(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	id := tr.Submit(context.Background(), "quick", func(ctx context.Context) (string, error) {
		return "done", nil
	})
	waitForTerminal(t, tr, id)

	// Simulate an expired retention window directly: the sweep loop itself
	// is just a ticker around evictExpired.
	tr.cfg.Retention = 1 * time.Nanosecond
	time.Sleep(2 * time.Millisecond)
	tr.evictExpired()

	if _, err := tr.Status(id); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Status after eviction = %v, want ErrTaskNotFound", err)
	}
}

func TestEviction_KeepsRunningTasks(t *testing.T) {
	tr := NewTracker(Config{}, nil)
	defer tr.Close()

	release := make(chan struct{})
	id := tr.Submit(context.Background(), "long", func(ctx context.Context) (string, error) {
		<-release
		return "ok", nil
	})

	tr.cfg.Retention = 1 * time.Nanosecond
	tr.evictExpired()

	if _, err := tr.Status(id); err != nil {
		t.Errorf("running task was evicted: %v", err)
	}
	close(release)
	waitForTerminal(t, tr, id)
}

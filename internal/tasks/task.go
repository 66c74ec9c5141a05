// Package tasks decouples request acceptance from request completion for
// long-running operations (agent invocations, workflow executions) and
// provides a polling interface keyed by opaque task identifiers.
//
// A task's lifecycle is strictly ordered: Pending → Running → one terminal
// state (Completed, Failed, or Canceled). Terminal states are absorbing:
// once reached, the record never changes again.
package tasks

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// ErrTaskNotFound is returned by Status and Cancel when the identifier was
// never issued or the record has been evicted by the retention sweep.
var ErrTaskNotFound = errors.New("task not found")

// Task is a snapshot of one asynchronous operation. Status returns copies,
// so callers can never observe a record mid-transition: a task is either
// fully pending, fully running, or terminal with exactly one of
// Result/Error set.
type Task struct {
	ID          string     `json:"task_id"`
	Description string     `json:"description,omitempty"`
	State       State      `json:"state"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Operation is the unit of work a task executes. Parameters are already
// bound; the tracker only observes the result string or the error. The
// context is canceled when the task is canceled or times out.
type Operation func(ctx context.Context) (string, error)

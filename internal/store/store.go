// Package store persists task records in a single-file relational
// database, matching the demo_task table contract the Controller and the
// original C++ reference implementation both speak.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/maumercado/taskdispatch/internal/task"
)

// ErrUnavailable is returned by Open when the store cannot be reached.
var ErrUnavailable = errors.New("store: unavailable")

// Store is the contract the Controller consults for durable task state.
// Implementations must treat every call as atomic per-row; cross-call
// transactions are not required.
type Store interface {
	// Open is an idempotent, cheap liveness probe. It returns
	// ErrUnavailable (wrapped) if the store cannot presently be reached.
	Open(ctx context.Context) error

	// FetchOpenTasks returns every task whose state is not task.Success.
	// Ordering is unspecified.
	FetchOpenTasks(ctx context.Context) ([]task.Task, error)

	// Update persists the column subset appropriate for t.State:
	//   Running  -> state, worker, assign_time
	//   Killed   -> state
	//   Success  -> state, complete_time
	// Any other state is rejected with an error.
	Update(ctx context.Context, t task.Task) error

	// Close releases any held resources.
	Close() error
}

// StorageError wraps a failure from a Store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

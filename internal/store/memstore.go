package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/maumercado/taskdispatch/internal/task"
)

// Memory is an in-process Store used by tests. It implements the same
// contract as SQLite without touching disk.
type Memory struct {
	mu        sync.Mutex
	tasks     map[string]task.Task
	Available bool
}

// NewMemory returns a Memory store seeded with the given tasks.
func NewMemory(seed ...task.Task) *Memory {
	m := &Memory{tasks: make(map[string]task.Task), Available: true}
	for _, t := range seed {
		m.tasks[t.Name] = t
	}
	return m
}

func (m *Memory) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Available {
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) FetchOpenTasks(ctx context.Context) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Available {
		return nil, storageErr("fetch_open_tasks", ErrUnavailable)
	}
	var out []task.Task
	for _, t := range m.tasks {
		if t.State != task.Success {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, t task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Available {
		return storageErr("update", ErrUnavailable)
	}
	existing, ok := m.tasks[t.Name]
	if !ok {
		return storageErr("update", fmt.Errorf("task %q not found", t.Name))
	}
	switch t.State {
	case task.Running:
		existing.State = task.Running
		existing.Worker = t.Worker
		existing.AssignTime = t.AssignTime
	case task.Killed:
		existing.State = task.Killed
	case task.Success:
		existing.State = task.Success
		existing.CompleteTime = t.CompleteTime
	default:
		return storageErr("update", fmt.Errorf("invalid update state %s", t.State))
	}
	m.tasks[t.Name] = existing
	return nil
}

func (m *Memory) Close() error {
	return nil
}

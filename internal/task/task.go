// Package task holds the Controller's task record and the thread-unsafe
// in-memory table it is kept in. All mutation is expected to happen from the
// Controller's owner goroutine; the table itself does no locking.
package task

import "fmt"

// MaxNameLen is the longest identifier the wire codec's cstring encoder
// accepts (wire.MaxTaskNameLen-1). The whole-frame bounds are tighter: an
// assign frame fits task names of at most 27 bytes, and a status frame fits
// a worker id and task name totalling at most 58 bytes. Task names loaded
// from the store are not checked against either bound.
const MaxNameLen = 31

// Task is the in-memory mirror of one demo_task row.
type Task struct {
	Name         string
	SleepTime    uint32
	State        State
	Worker       string
	AssignTime   int64
	CompleteTime int64
}

// Snapshot returns a copy of the task, safe to hand to a reader outside the
// owner goroutine (e.g. the admin HTTP surface).
func (t Task) Snapshot() Task {
	return t
}

// Table is the Controller's in-memory task_name -> Task mapping. It holds
// every task whose persisted state is not Success (invariant 4).
type Table struct {
	tasks map[string]*Task
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{tasks: make(map[string]*Task)}
}

// Get returns the task with the given name, if present.
func (t *Table) Get(name string) (*Task, bool) {
	task, ok := t.tasks[name]
	return task, ok
}

// Put inserts or overwrites a task by name.
func (t *Table) Put(task *Task) {
	t.tasks[task.Name] = task
}

// Delete removes a task by name (used when a task reaches Success).
func (t *Table) Delete(name string) {
	delete(t.tasks, name)
}

// Len reports how many tasks remain in the table.
func (t *Table) Len() int {
	return len(t.tasks)
}

// Each calls fn once per task in the table, in Go's randomized map order.
// Iteration order is deliberately unspecified, matching the dispatch
// algorithm's unspecified tie-break among equally eligible candidates.
func (t *Table) Each(fn func(*Task) bool) {
	for _, task := range t.tasks {
		if !fn(task) {
			return
		}
	}
}

// Snapshot returns a copy of every task in the table, for callers (such as
// the admin HTTP surface) that must not reference into the live map.
func (t *Table) Snapshot() []Task {
	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, task.Snapshot())
	}
	return out
}

// HasOpenByPK reports whether a task with this name already exists in the
// table, used by the reload step to avoid overwriting in-flight state with a
// stale store row.
func (t *Table) HasOpenByPK(name string) bool {
	_, ok := t.tasks[name]
	return ok
}

func (t Task) String() string {
	return fmt.Sprintf("Task{%s state=%s worker=%q sleep=%d}", t.Name, t.State, t.Worker, t.SleepTime)
}

// Package controller implements the dispatch core: the task-assignment
// state machine and liveness supervision described for the Controller
// process. It is transport-agnostic — it implements reactor.Handler and is
// driven entirely from the reactor's single owner goroutine, so none of its
// state needs its own locking.
package controller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/taskdispatch/internal/events"
	"github.com/maumercado/taskdispatch/internal/metrics"
	"github.com/maumercado/taskdispatch/internal/reactor"
	"github.com/maumercado/taskdispatch/internal/store"
	"github.com/maumercado/taskdispatch/internal/task"
	"github.com/maumercado/taskdispatch/internal/wire"
)

// Grace is the number of seconds beyond a task's declared sleep_time before
// its worker is declared a slacker.
const Grace = 10 * time.Second

// Sender is the subset of reactor.Reactor the Controller needs to talk back
// to a connection. Implemented by *reactor.Reactor.
type Sender interface {
	Send(id reactor.ConnID, frame []byte) error
	Close(id reactor.ConnID)
}

// Controller owns the in-memory task table and worker table and implements
// the dispatch algorithm, disconnect procedure, and liveness sweep.
type Controller struct {
	store  store.Store
	sender Sender
	bus    *events.Bus
	log    zerolog.Logger

	tasks   *task.Table
	workers map[reactor.ConnID]string

	shutdown bool
}

// New constructs a Controller. Load must be called before the reactor
// starts accepting connections.
func New(st store.Store, sender Sender, bus *events.Bus, log zerolog.Logger) *Controller {
	return &Controller{
		store:   st,
		sender:  sender,
		bus:     bus,
		log:     log,
		tasks:   task.NewTable(),
		workers: make(map[reactor.ConnID]string),
	}
}

// Load populates the task table from the store at startup. Per the
// Controller's startup contract, an empty or unreachable store aborts
// startup.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.store.Open(ctx); err != nil {
		return err
	}
	tasks, err := c.store.FetchOpenTasks(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return errEmptyStore
	}
	for i := range tasks {
		t := tasks[i]
		c.tasks.Put(&t)
	}
	metrics.SetOpenTasks(float64(c.tasks.Len()))
	return nil
}

var errEmptyStore = &initError{"store has no open tasks"}

type initError struct{ reason string }

func (e *initError) Error() string { return "controller: " + e.reason }

// OnNewConnection implements reactor.Handler.
func (c *Controller) OnNewConnection(id reactor.ConnID) {
	if c.shutdown {
		c.sendExit(id)
		c.sender.Close(id)
	}
}

// OnMessage implements reactor.Handler.
func (c *Controller) OnMessage(id reactor.ConnID, frame wire.StatusFrame) {
	if _, known := c.workers[id]; !known {
		c.workers[id] = frame.WorkerID
		metrics.SetActiveWorkers(float64(len(c.workers)))
		c.bus.Publish(context.Background(), events.NewEvent(events.EventWorkerJoined, events.WorkerEventData(frame.WorkerID, nil)))
	}

	switch {
	case frame.Idle():
		c.dispatch(id, frame.WorkerID)

	case frame.TimeLeft == 0:
		c.handleCompletion(id, frame)

	default:
		c.handleReconnect(id, frame)
	}
}

func (c *Controller) handleCompletion(id reactor.ConnID, frame wire.StatusFrame) {
	t, ok := c.tasks.Get(frame.TaskName)
	if !ok || t.Worker != frame.WorkerID {
		c.log.Warn().Str("worker_id", frame.WorkerID).Str("task_name", frame.TaskName).Msg("completion for unknown or mismatched task")
		c.disconnectWorker(id, false)
		return
	}

	t.State = task.Success
	t.CompleteTime = time.Now().Unix()
	if err := c.store.Update(context.Background(), *t); err != nil {
		c.log.Error().Err(err).Msg("persist completion failed, shutting down")
		c.shutdown = true
	}
	c.tasks.Delete(t.Name)
	metrics.RecordCompletion()
	metrics.SetOpenTasks(float64(c.tasks.Len()))
	c.bus.Publish(context.Background(), events.NewEvent(events.EventTaskCompleted, events.TaskEventData(t.Name, t.Worker, nil)))
	c.log.Info().Str("worker_id", frame.WorkerID).Str("task_name", t.Name).Msg("task completed")

	c.dispatch(id, frame.WorkerID)
}

func (c *Controller) handleReconnect(id reactor.ConnID, frame wire.StatusFrame) {
	t, ok := c.tasks.Get(frame.TaskName)
	if !ok || t.Worker != frame.WorkerID {
		c.log.Warn().Str("worker_id", frame.WorkerID).Str("task_name", frame.TaskName).Msg("reconnect for unknown or mismatched task")
		c.disconnectWorker(id, false)
		return
	}
	// A reconnect does not reset assign_time: the task has been running
	// since it was first dispatched, not since this new connection showed up.
	t.State = task.Running
	if err := c.store.Update(context.Background(), *t); err != nil {
		c.log.Error().Err(err).Msg("persist reconnect failed, shutting down")
		c.shutdown = true
	}
	c.log.Info().Str("worker_id", frame.WorkerID).Str("task_name", t.Name).Msg("worker reconnected mid-task")
}

// dispatch selects the next task for workerID on connection id and sends
// the assignment, or sends an exit frame when nothing is left to do.
func (c *Controller) dispatch(id reactor.ConnID, workerID string) {
	candidate, resumed := c.selectTask(workerID)
	if candidate == nil {
		c.log.Info().Str("worker_id", workerID).Msg("no task to dispatch, telling worker to exit")
		c.disconnectWorker(id, true)
		return
	}

	frame := wire.AssignFrame{TaskName: candidate.Name, SleepTime: candidate.SleepTime}
	buf, err := wire.EncodeAssign(frame)
	if err != nil {
		c.log.Error().Err(err).Str("task_name", candidate.Name).Msg("cannot encode assignment")
		return
	}
	if err := c.sender.Send(id, buf); err != nil {
		// Write failed: leave task state untouched, the sweep will reclaim it.
		c.sender.Close(id)
		delete(c.workers, id)
		return
	}

	candidate.Worker = workerID
	candidate.State = task.Running
	candidate.AssignTime = time.Now().Unix()
	c.tasks.Put(candidate)

	if err := c.store.Update(context.Background(), *candidate); err != nil {
		c.log.Error().Err(err).Msg("persist dispatch failed, shutting down")
		c.shutdown = true
	}

	kind := "new"
	if resumed {
		kind = "resume"
	}
	metrics.RecordDispatch(kind)
	c.bus.Publish(context.Background(), events.NewEvent(events.EventTaskDispatched, events.TaskEventData(candidate.Name, workerID, map[string]interface{}{"kind": kind})))

	if resumed {
		c.log.Info().Str("worker_id", workerID).Str("task_name", candidate.Name).Msg("re-dispatch previous task")
	} else {
		c.log.Info().Str("worker_id", workerID).Str("task_name", candidate.Name).Msg("dispatch new task")
	}
}

// selectTask implements the dispatch algorithm: prefer a task already owned
// by workerID in a resumable state; otherwise fall back to any dispatchable
// task. The resume branch short-circuits the scan; the fallback branch does
// not, matching the original reference's inner loop.
func (c *Controller) selectTask(workerID string) (candidate *task.Task, resumed bool) {
	var fallback *task.Task
	c.tasks.Each(func(t *task.Task) bool {
		if t.Worker == workerID && t.State.Resumable() {
			candidate = t
			resumed = true
			return false
		}
		if t.State.Dispatchable() {
			fallback = t
		}
		return true
	})
	if candidate != nil {
		return candidate, true
	}
	return fallback, false
}

// OnProtocolError implements reactor.Handler. The connection is closed by
// the reactor right after this call; no task state is touched, so the
// liveness sweep will reclaim whatever task (if any) was in flight.
func (c *Controller) OnProtocolError(id reactor.ConnID, err error) {
	c.log.Warn().Err(err).Msg("closing connection after protocol error")
	delete(c.workers, id)
}

// OnHangup implements reactor.Handler.
func (c *Controller) OnHangup(id reactor.ConnID) {
	c.disconnectWorker(id, false)
}

// disconnectWorker implements the disconnect procedure: reclaim the first
// Running/Killed task owned by this connection's worker, forget the worker,
// optionally tell it to exit, and close the socket.
func (c *Controller) disconnectWorker(id reactor.ConnID, sendExit bool) {
	workerID, ok := c.workers[id]
	if !ok {
		c.sender.Close(id)
		return
	}

	var reclaimed *task.Task
	c.tasks.Each(func(t *task.Task) bool {
		if t.Worker == workerID && (t.State == task.Running || t.State == task.Killed) {
			reclaimed = t
			return false
		}
		return true
	})
	if reclaimed != nil && reclaimed.State != task.Killed {
		reclaimed.State = task.Killed
		if err := c.store.Update(context.Background(), *reclaimed); err != nil {
			c.log.Error().Err(err).Msg("persist kill on disconnect failed, shutting down")
			c.shutdown = true
		}
		metrics.RecordKill("disconnect")
		c.bus.Publish(context.Background(), events.NewEvent(events.EventTaskKilled, events.TaskEventData(reclaimed.Name, workerID, map[string]interface{}{"reason": "disconnect"})))
	}

	delete(c.workers, id)
	metrics.SetActiveWorkers(float64(len(c.workers)))
	c.bus.Publish(context.Background(), events.NewEvent(events.EventWorkerLeft, events.WorkerEventData(workerID, nil)))

	if sendExit {
		c.sendExit(id)
	}
	c.sender.Close(id)
}

func (c *Controller) sendExit(id reactor.ConnID) {
	buf, err := wire.EncodeAssign(wire.AssignFrame{})
	if err != nil {
		return
	}
	// Best-effort: a write failure here just means the peer is already gone.
	_ = c.sender.Send(id, buf)
}

// OnTimeout implements reactor.Handler. wasIdle distinguishes a real poll
// timeout (run the full liveness sweep) from the post-event housekeeping
// call that only checks for shutdown.
func (c *Controller) OnTimeout(wasIdle bool) (stop bool) {
	if wasIdle {
		c.sweep()
	}
	return c.finishTimeout()
}

// sweep runs the five-step liveness sweep.
func (c *Controller) sweep() {
	start := time.Now()
	defer func() { metrics.RecordSweepDuration(time.Since(start).Seconds()) }()

	// Step 1: probe the store.
	if err := c.store.Open(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("store unreachable during sweep, shutting down")
		c.shutdown = true
		return
	}

	// Step 2: reclaim slackers.
	now := time.Now().Unix()
	var slackers []*task.Task
	c.tasks.Each(func(t *task.Task) bool {
		if t.State == task.Running && now-t.AssignTime > int64(t.SleepTime)+int64(Grace.Seconds()) {
			slackers = append(slackers, t)
		}
		return true
	})
	for _, t := range slackers {
		connID, hasConn := c.connForWorker(t.Worker)
		if hasConn {
			c.disconnectWorker(connID, true)
			continue
		}
		t.State = task.Killed
		if err := c.store.Update(context.Background(), *t); err != nil {
			c.log.Error().Err(err).Msg("persist sweep kill failed, shutting down")
			c.shutdown = true
		}
		metrics.RecordKill("sweep")
		c.bus.Publish(context.Background(), events.NewEvent(events.EventTaskKilled, events.TaskEventData(t.Name, t.Worker, map[string]interface{}{"reason": "sweep"})))
		c.log.Info().Str("worker_id", t.Worker).Str("task_name", t.Name).Msg("slacker task killed, no live connection")
	}

	// Step 3: reload new tasks from the store, never overwriting in-memory state.
	rows, err := c.store.FetchOpenTasks(context.Background())
	if err != nil {
		c.log.Error().Err(err).Msg("fetch_open_tasks failed during sweep, shutting down")
		c.shutdown = true
		return
	}
	loaded := 0
	for i := range rows {
		row := rows[i]
		if !c.tasks.HasOpenByPK(row.Name) {
			c.tasks.Put(&row)
			loaded++
		}
	}
	if loaded > 0 {
		c.log.Info().Int("count", loaded).Msg("loaded new tasks from store")
	}
	metrics.SetOpenTasks(float64(c.tasks.Len()))

	c.bus.Publish(context.Background(), events.NewEvent(events.EventSweepRun, map[string]interface{}{"loaded": loaded, "open_tasks": c.tasks.Len()}))
}

// finishTimeout is step 5, run after every sweep and after every other
// event: if shutdown is set, disconnect every worker with exit; report
// whether the reactor loop should stop.
func (c *Controller) finishTimeout() bool {
	if c.shutdown {
		for id := range c.workers {
			c.disconnectWorker(id, true)
		}
	}
	return c.shutdown || c.tasks.Len() == 0
}

func (c *Controller) connForWorker(workerID string) (reactor.ConnID, bool) {
	for id, w := range c.workers {
		if w == workerID {
			return id, true
		}
	}
	return 0, false
}

// TaskSnapshot, WorkerSnapshot, and Kick touch the owner-goroutine-only
// tables directly and so must be called through (*reactor.Reactor).Exec
// from any other goroutine, such as an admin HTTP handler.

// TaskSnapshot returns a copy of the task table, safe for the admin surface
// to read without observing torn state.
func (c *Controller) TaskSnapshot() []task.Task {
	return c.tasks.Snapshot()
}

// WorkerSnapshot returns a copy of the worker table.
func (c *Controller) WorkerSnapshot() map[reactor.ConnID]string {
	out := make(map[reactor.ConnID]string, len(c.workers))
	for k, v := range c.workers {
		out[k] = v
	}
	return out
}

// Kick forces an immediate disconnect of the given worker, reusing the same
// disconnect procedure the liveness sweep uses. Used by the admin surface's
// force-redispatch action.
func (c *Controller) Kick(workerID string) bool {
	id, ok := c.connForWorker(workerID)
	if !ok {
		return false
	}
	c.disconnectWorker(id, true)
	return true
}

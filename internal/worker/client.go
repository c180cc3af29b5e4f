// Package worker implements the Worker client: a single-threaded cooperative
// loop around one TCP connection to a Controller. It executes at most one
// task at a time by sleeping for the assigned duration, reports completion,
// and survives Controller restarts by reconnecting and reporting its
// remaining sleep rather than starting the task over.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/maumercado/taskdispatch/internal/wire"
)

const (
	// idlePollInterval is the 1000ms poll timeout used while no task is in
	// progress; nothing is sent to the Controller when it expires.
	idlePollInterval = 1 * time.Second
	// slackerExtra is added to every assigned sleep when Client.isSlacker is
	// set, a test knob for exercising the Controller's liveness sweep.
	slackerExtra = 20 * time.Second
	// reconnectDelay throttles the reconnect loop after a dropped connection.
	reconnectDelay = 1 * time.Second
)

// errExit is returned internally when the Controller sends an empty-name
// assignment; it is the only clean termination signal in the protocol.
var errExit = errors.New("worker: received exit assignment")

// Client drives one Worker's connection to a Controller. None of its state
// needs locking: Run's reconnect loop and runConnection's event loop are the
// only code that ever touches it.
type Client struct {
	workerID       string
	controllerAddr string
	isSlacker      bool
	log            zerolog.Logger

	// taskName, sleepTime, and sleepStart describe the task currently (or
	// most recently) in progress. taskName is empty when idle.
	taskName   string
	sleepTime  uint32
	sleepStart time.Time
}

// New constructs a Client for workerID against controllerAddr. isSlacker adds
// slackerExtra to every assigned sleep, used to drive the Controller past its
// grace period in tests and demos.
func New(workerID, controllerAddr string, isSlacker bool, log zerolog.Logger) *Client {
	return &Client{
		workerID:       workerID,
		controllerAddr: controllerAddr,
		isSlacker:      isSlacker,
		log:            log,
	}
}

// timeLeft computes time_left(): the whole seconds remaining on the current
// task, rounded up and clamped to zero, or zero when idle.
func (c *Client) timeLeft() uint32 {
	if c.taskName == "" {
		return 0
	}
	remaining := time.Duration(c.sleepTime)*time.Second - time.Since(c.sleepStart)
	if remaining <= 0 {
		return 0
	}
	return uint32((remaining + time.Second - 1) / time.Second)
}

// pollTimeout is the reactor-equivalent wait: time_left()*1000ms while a task
// is in progress, 1000ms while idle.
func (c *Client) pollTimeout() time.Duration {
	if c.taskName == "" {
		return idlePollInterval
	}
	if tl := c.timeLeft(); tl > 0 {
		return time.Duration(tl) * time.Second
	}
	return 0
}

// Run drives the reconnect loop: connect, report status, wait for an
// assignment or completion deadline, repeat on hangup, until ctx is
// cancelled or the Controller sends an exit assignment.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := c.runConnection(ctx)
		switch {
		case errors.Is(err, errExit):
			c.log.Info().Msg("controller signaled exit, shutting down")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.log.Warn().Err(err).Msg("connection lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// runConnection owns one TCP connection end to end: cold-start or
// reconnect-mid-task status frame, then the wait/assign/sleep/complete cycle
// until the connection drops or the Controller tells the worker to exit.
func (c *Client) runConnection(ctx context.Context) error {
	conn, err := net.Dial("tcp", c.controllerAddr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if c.taskName == "" {
		c.log.Info().Msg("connected, idle")
	} else {
		c.log.Info().Str("task_name", c.taskName).Uint32("time_left", c.timeLeft()).Msg("reconnected mid-task")
	}
	if err := c.sendStatus(conn); err != nil {
		return fmt.Errorf("send status: %w", err)
	}

	frames := make(chan wire.AssignFrame, 1)
	readErrs := make(chan error, 1)
	go func() {
		for {
			f, err := wire.ReadAssign(conn)
			if err != nil {
				readErrs <- err
				return
			}
			frames <- f
		}
	}()

	timer := time.NewTimer(c.pollTimeout())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-frames:
			if f.Exit() {
				return errExit
			}
			c.adopt(f)
			drainTimer(timer)
			timer.Reset(c.pollTimeout())

		case err := <-readErrs:
			return err

		case <-timer.C:
			if c.taskName != "" && c.timeLeft() == 0 {
				c.log.Info().Str("task_name", c.taskName).Msg("sleep elapsed, reporting completion")
				if err := c.sendStatus(conn); err != nil {
					return fmt.Errorf("send completion: %w", err)
				}
				c.taskName = ""
				c.sleepTime = 0
			}
			timer.Reset(c.pollTimeout())
		}
	}
}

// adopt installs a newly received assignment as the current task. The
// slacker knob inflates sleepTime before timeLeft/pollTimeout ever see it, so
// the worker genuinely sleeps longer than it declares to anyone watching its
// nominal task duration.
func (c *Client) adopt(f wire.AssignFrame) {
	c.taskName = f.TaskName
	c.sleepTime = f.SleepTime
	if c.isSlacker {
		c.sleepTime += uint32(slackerExtra.Seconds())
	}
	c.sleepStart = time.Now()
	c.log.Info().Str("task_name", c.taskName).Uint32("sleep_time", c.sleepTime).Msg("task assigned")
}

// sendStatus writes a status frame reflecting the worker's current state:
// idle (cold start), a completion (time_left 0 with taskName still set,
// called right before the caller clears it), or a reconnect mid-task.
func (c *Client) sendStatus(conn net.Conn) error {
	frame := wire.StatusFrame{WorkerID: c.workerID, TaskName: c.taskName, TimeLeft: c.timeLeft()}
	buf, err := wire.EncodeStatus(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

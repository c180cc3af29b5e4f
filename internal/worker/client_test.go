package worker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/taskdispatch/internal/wire"
)

// fakeController accepts exactly one connection and lets the test script its
// side of the conversation: read a status frame, write an assign frame, etc.
type fakeController struct {
	ln   net.Listener
	conn net.Conn
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeController{ln: ln}
}

func (f *fakeController) accept(t *testing.T) net.Conn {
	t.Helper()
	conn, err := f.ln.Accept()
	require.NoError(t, err)
	f.conn = conn
	return conn
}

func (f *fakeController) readStatus(t *testing.T) wire.StatusFrame {
	t.Helper()
	frame, err := wire.ReadStatus(f.conn)
	require.NoError(t, err)
	return frame
}

func (f *fakeController) sendAssign(t *testing.T, frame wire.AssignFrame) {
	t.Helper()
	buf, err := wire.EncodeAssign(frame)
	require.NoError(t, err)
	_, err = f.conn.Write(buf)
	require.NoError(t, err)
}

func (f *fakeController) close() {
	if f.conn != nil {
		f.conn.Close()
	}
	f.ln.Close()
}

func TestClient_ColdStartSendsIdleStatus(t *testing.T) {
	fc := newFakeController(t)
	defer fc.close()

	c := New("W1", fc.ln.Addr().String(), false, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	conn := fc.accept(t)
	status := fc.readStatus(t)
	require.True(t, status.Idle())
	require.Equal(t, "W1", status.WorkerID)

	fc.sendAssign(t, wire.AssignFrame{}) // exit
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exit assignment")
	}
	_ = conn
}

func TestClient_AdoptsTaskAndReportsCompletion(t *testing.T) {
	fc := newFakeController(t)
	defer fc.close()

	c := New("W1", fc.ln.Addr().String(), false, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	fc.accept(t)
	fc.readStatus(t) // idle handshake
	fc.sendAssign(t, wire.AssignFrame{TaskName: "T1", SleepTime: 1})

	completion := fc.readStatus(t)
	require.Equal(t, "T1", completion.TaskName)
	require.EqualValues(t, 0, completion.TimeLeft)

	fc.sendAssign(t, wire.AssignFrame{}) // exit
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after exit assignment")
	}
}

func TestClient_SlackerInflatesSleep(t *testing.T) {
	c := New("W1", "unused:0", true, zerolog.Nop())
	c.adopt(wire.AssignFrame{TaskName: "T1", SleepTime: 2})
	require.EqualValues(t, 2+uint32(slackerExtra.Seconds()), c.sleepTime)
}

func TestClient_TimeLeft_ClampsAtZero(t *testing.T) {
	c := New("W1", "unused:0", false, zerolog.Nop())
	require.EqualValues(t, 0, c.timeLeft(), "idle client has no time left")

	c.taskName = "T1"
	c.sleepTime = 1
	c.sleepStart = time.Now().Add(-5 * time.Second)
	require.EqualValues(t, 0, c.timeLeft(), "elapsed sleep must clamp to zero, never go negative")
}

func TestClient_ReconnectReportsRemainingTime(t *testing.T) {
	fc := newFakeController(t)
	defer fc.close()
	c := New("W2", fc.ln.Addr().String(), false, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	fc.accept(t)
	fc.readStatus(t)
	fc.sendAssign(t, wire.AssignFrame{TaskName: "T2", SleepTime: 30})
	fc.conn.Close() // drop connection mid-task, listener stays up for the reconnect

	select {
	case err := <-done:
		t.Fatalf("Run returned early on hangup: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// The client should reconnect and report a task still in flight with
	// less than the original sleep_time remaining.
	conn, err := fc.ln.Accept()
	require.NoError(t, err)
	reconnectStatus, err := wire.ReadStatus(conn)
	require.NoError(t, err)
	require.Equal(t, "T2", reconnectStatus.TaskName)
	require.Less(t, reconnectStatus.TimeLeft, uint32(30))

	assignBuf, err := wire.EncodeAssign(wire.AssignFrame{})
	require.NoError(t, err)
	_, err = conn.Write(assignBuf)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after exit assignment")
	}
}

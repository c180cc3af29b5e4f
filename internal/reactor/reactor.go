// Package reactor accepts TCP connections and funnels every event — new
// connection, decoded frame, hangup, poll timeout — through a single owner
// goroutine, so a Handler never needs its own locking to guard shared
// state. This is the Go-native reading of the original single-threaded
// epoll reactor: instead of one thread driving epoll_wait, one goroutine
// per connection does blocking I/O and reports back over channels to the
// goroutine that actually owns the Handler's tables.
package reactor

import (
	"io"
	"net"
	"time"

	"github.com/maumercado/taskdispatch/internal/wire"
)

// ConnID identifies one accepted connection for the lifetime the reactor
// knows about it.
type ConnID uint64

// Handler is the domain logic the reactor drives. Every method is called
// from the reactor's single owner goroutine; implementations must not be
// called concurrently and must not block.
type Handler interface {
	// OnNewConnection is called once a connection is accepted, before any
	// frame has been read from it.
	OnNewConnection(id ConnID)
	// OnMessage is called for each successfully decoded status frame.
	OnMessage(id ConnID, frame wire.StatusFrame)
	// OnProtocolError is called when a frame could not be decoded; the
	// reactor closes the connection immediately afterward.
	OnProtocolError(id ConnID, err error)
	// OnHangup is called when the peer closes the connection or a read
	// fails for any other reason.
	OnHangup(id ConnID)
	// OnTimeout is called after every connection event and on every poll
	// expiry (not after an Exec command): wasIdle is true when it fired
	// because the poll interval elapsed with no connection activity, false
	// when it fired right after processing some event.
	// The return value tells the reactor whether to stop the loop.
	OnTimeout(wasIdle bool) (stop bool)
}

type frameMsg struct {
	id    ConnID
	frame wire.StatusFrame
}

type errMsg struct {
	id  ConnID
	err error
}

type connection struct {
	id     ConnID
	conn   net.Conn
	sendCh chan []byte
	done   chan struct{}
}

// Reactor owns the TCP listener, the connection registry, and the single
// goroutine that calls into Handler.
type Reactor struct {
	addr         string
	handler      Handler
	pollInterval time.Duration

	listener net.Listener

	register chan *connection
	frames   chan frameMsg
	errs     chan errMsg
	hangups  chan ConnID
	commands chan func()

	conns  map[ConnID]*connection
	nextID ConnID
}

// New returns a Reactor that will listen on addr once Run is called. handler
// may be nil if the caller needs a *Reactor reference to construct its
// Handler (as the Controller does, to call Send/Close/Exec back on it); call
// SetHandler before Run in that case.
func New(addr string, pollInterval time.Duration, handler Handler) *Reactor {
	return &Reactor{
		addr:         addr,
		handler:      handler,
		pollInterval: pollInterval,
		register:     make(chan *connection, 16),
		frames:       make(chan frameMsg, 64),
		errs:         make(chan errMsg, 64),
		hangups:      make(chan ConnID, 64),
		commands:     make(chan func(), 16),
		conns:        make(map[ConnID]*connection),
	}
}

// SetHandler assigns the Handler that Run will drive. It must be called
// before Run starts, and exists so a Handler that itself needs a *Reactor
// reference (the Controller needs Send/Close/Exec) can be constructed after
// the Reactor.
func (r *Reactor) SetHandler(h Handler) {
	r.handler = h
}

// Exec queues fn to run on the reactor's owner goroutine and blocks until it
// has run. Callers outside the owner goroutine (e.g. admin HTTP handlers)
// use this to safely read or mutate Handler state without their own locks:
// it is the request/response round-trip the single-owner-goroutine design
// relies on. Exec must never be called from within a Handler callback
// (that would deadlock against the very goroutine it is waiting on).
func (r *Reactor) Exec(fn func()) {
	done := make(chan struct{})
	r.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

// Send writes a pre-encoded frame to the given connection. It must only be
// called from within a Handler callback (i.e. from the owner goroutine).
func (r *Reactor) Send(id ConnID, frame []byte) error {
	c, ok := r.conns[id]
	if !ok {
		return net.ErrClosed
	}
	select {
	case c.sendCh <- frame:
		return nil
	case <-c.done:
		return net.ErrClosed
	}
}

// Close closes the given connection and removes it from the registry. It
// must only be called from within a Handler callback.
func (r *Reactor) Close(id ConnID) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	c.conn.Close()
}

// Run starts accepting connections on addr and blocks, driving Handler
// callbacks from this goroutine, until the Handler requests a stop from
// OnTimeout. It returns early only if it cannot listen on addr.
func (r *Reactor) Run() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.listener = ln
	defer ln.Close()

	go r.acceptLoop()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-r.register:
			ticker.Reset(r.pollInterval)
			r.conns[c.id] = c
			r.handler.OnNewConnection(c.id)
			if r.handler.OnTimeout(false) {
				return nil
			}

		case m := <-r.frames:
			ticker.Reset(r.pollInterval)
			if _, ok := r.conns[m.id]; !ok {
				continue
			}
			r.handler.OnMessage(m.id, m.frame)
			if r.handler.OnTimeout(false) {
				return nil
			}

		case m := <-r.errs:
			ticker.Reset(r.pollInterval)
			if _, ok := r.conns[m.id]; !ok {
				continue
			}
			r.handler.OnProtocolError(m.id, m.err)
			r.Close(m.id)
			if r.handler.OnTimeout(false) {
				return nil
			}

		case id := <-r.hangups:
			ticker.Reset(r.pollInterval)
			if c, ok := r.conns[id]; ok {
				delete(r.conns, id)
				c.conn.Close()
				r.handler.OnHangup(id)
			}
			if r.handler.OnTimeout(false) {
				return nil
			}

		case <-ticker.C:
			if r.handler.OnTimeout(true) {
				return nil
			}

		case fn := <-r.commands:
			fn()
		}
	}
}

func (r *Reactor) acceptLoop() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		r.nextID++
		c := &connection{
			id:     r.nextID,
			conn:   conn,
			sendCh: make(chan []byte, 4),
			done:   make(chan struct{}),
		}
		go c.writeLoop()
		go r.readLoop(c)
		r.register <- c
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case frame, ok := <-c.sendCh:
			if !ok {
				return
			}
			if _, err := c.conn.Write(frame); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (r *Reactor) readLoop(c *connection) {
	defer close(c.done)
	for {
		frame, err := wire.ReadStatus(c.conn)
		if err != nil {
			if err == io.EOF {
				r.hangups <- c.id
				return
			}
			if _, ok := err.(*wire.ProtocolError); ok {
				r.errs <- errMsg{id: c.id, err: err}
				return
			}
			r.hangups <- c.id
			return
		}
		r.frames <- frameMsg{id: c.id, frame: frame}
	}
}

// Addr returns the address the reactor is listening on, valid after Run has
// started accepting connections.
func (r *Reactor) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

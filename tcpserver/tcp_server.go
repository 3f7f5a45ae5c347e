// Package tcpserver runs the chat protocol over TCP. An accept loop and one
// reader goroutine per connection feed a single event loop goroutine, which
// decodes each record, hands it to the protocol engine and writes the replies
// before taking the next event. Every state change therefore runs to
// completion in arrival order.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/roomchat/logger"
	"github.com/cyberinferno/roomchat/protocol"
	"github.com/cyberinferno/roomchat/wire"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
	defaultAuthTimeout  = 3 * time.Second
)

type eventKind int

const (
	eventOpened eventKind = iota
	eventRecord
	eventClosed
)

type event struct {
	kind   eventKind
	conn   *clientConn
	record []byte
	err    error
}

// TCPServer accepts chat clients on Addr and drives Engine from a single
// event loop. Configure the exported fields, then call Start. A TCPServer
// may be started once.
type TCPServer struct {
	Logger logger.Logger
	Name   string
	Addr   string
	Engine *protocol.Engine

	// WriteTimeout bounds each record write; a connection whose write fails
	// or times out is torn down. Defaults to 5s.
	WriteTimeout time.Duration
	// AuthTimeout bounds the work done for one request, which in practice is
	// the credential lookup of a LOGIN. Defaults to 3s.
	AuthTimeout time.Duration
	// QueueSize is the capacity of the event queue. Defaults to 256.
	QueueSize int

	listener net.Listener
	running  atomic.Bool
	nextID   atomic.Uint32

	events   chan event
	done     chan struct{}
	loopDone chan struct{}
	acceptor sync.WaitGroup
	readers  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// conns is owned by the event loop goroutine.
	conns map[protocol.ConnID]*clientConn
}

// Start binds Addr and starts the accept loop and the event loop.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.Engine == nil {
		return fmt.Errorf("server %s has no engine", s.Name)
	}

	if s.Logger == nil {
		s.Logger = logger.NewNopLogger()
	}

	if !s.running.CompareAndSwap(false, true) {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.running.Store(false)
		s.Logger.Error("server failed to start", logger.F("error", err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	if s.QueueSize <= 0 {
		s.QueueSize = defaultQueueSize
	}

	if s.WriteTimeout <= 0 {
		s.WriteTimeout = defaultWriteTimeout
	}

	if s.AuthTimeout <= 0 {
		s.AuthTimeout = defaultAuthTimeout
	}

	s.listener = ln
	s.events = make(chan event, s.QueueSize)
	s.done = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.conns = make(map[protocol.ConnID]*clientConn)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.F("addr", ln.Addr().String()))

	go s.eventLoop()
	s.acceptor.Add(1)
	go s.acceptLoop()

	return nil
}

// ListenAddr returns the bound address, which differs from Addr when Addr
// asked for port 0. It returns nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every client connection, tears down their
// protocol state and waits for all server goroutines to exit. Safe to call
// when the server is not running.
func (s *TCPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	_ = s.listener.Close()
	s.cancel()
	close(s.done)
	<-s.loopDone
	s.acceptor.Wait()

	// Connections accepted while the loop was exiting never reached it.
	for drained := false; !drained; {
		select {
		case ev := <-s.events:
			if ev.kind == eventOpened {
				_ = ev.conn.Close()
			}
		default:
			drained = true
		}
	}

	s.readers.Wait()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

func (s *TCPServer) acceptLoop() {
	defer s.acceptor.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.F("error", err))
			continue
		}

		c := newClientConn(protocol.ConnID(s.nextID.Add(1)), conn, s.Logger)
		if !s.post(event{kind: eventOpened, conn: c}) {
			_ = c.Close()
			return
		}

		s.readers.Add(1)
		go func() {
			defer s.readers.Done()
			c.readLoop(
				func(record []byte) bool {
					return s.post(event{kind: eventRecord, conn: c, record: record})
				},
				func(err error) {
					s.post(event{kind: eventClosed, conn: c, err: err})
				},
			)
		}()
	}
}

// post queues ev for the event loop. It returns false once the server is
// stopping.
func (s *TCPServer) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *TCPServer) eventLoop() {
	defer close(s.loopDone)

	for {
		select {
		case <-s.done:
			s.closeAll()
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *TCPServer) dispatch(ev event) {
	switch ev.kind {
	case eventOpened:
		s.conns[ev.conn.ID()] = ev.conn
		ev.conn.log.Info("new connection")

	case eventRecord:
		if _, ok := s.conns[ev.conn.ID()]; !ok {
			return
		}

		s.handleRecord(ev.conn, ev.record)

	case eventClosed:
		if _, ok := s.conns[ev.conn.ID()]; !ok {
			return
		}

		if ev.err != nil {
			ev.conn.log.Warn("read failed", logger.F("error", ev.err))
		}

		s.teardown(ev.conn.ID(), "hung up")
	}
}

func (s *TCPServer) handleRecord(c *clientConn, record []byte) {
	msg, err := wire.Decode(record)
	if err != nil {
		c.log.Warn("dropping malformed record", logger.F("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.AuthTimeout)
	res := s.Engine.Handle(ctx, c.ID(), msg)
	cancel()

	var failed []protocol.ConnID
	for _, out := range res.Out {
		target, ok := s.conns[out.To]
		if !ok {
			continue
		}

		if err := target.Send(out.Msg, s.WriteTimeout); err != nil {
			if errors.Is(err, errEncode) {
				target.log.Error("reply not sent", logger.F("error", err))
				continue
			}

			target.log.Warn("write failed", logger.F("error", err))
			failed = append(failed, out.To)
		}
	}

	if res.Close {
		s.teardown(c.ID(), "closed")
	}

	for _, id := range failed {
		s.teardown(id, "write failed")
	}
}

// teardown closes the connection and removes its identity and session
// membership. Unknown ids are ignored.
func (s *TCPServer) teardown(id protocol.ConnID, why string) {
	c, ok := s.conns[id]
	if !ok {
		return
	}

	delete(s.conns, id)
	_ = c.Close()
	s.Engine.Disconnect(id)
	c.log.Info("connection " + why)
}

func (s *TCPServer) closeAll() {
	for id := range s.conns {
		s.teardown(id, "closed by shutdown")
	}
}

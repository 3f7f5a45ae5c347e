package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/roomchat/logger"
	"github.com/cyberinferno/roomchat/protocol"
	"github.com/cyberinferno/roomchat/wire"
)

// errEncode marks a record that could not be encoded; the connection itself
// is still healthy.
var errEncode = errors.New("cannot encode record")

// clientConn is one accepted connection. Its read loop runs in its own
// goroutine and only forwards raw records to the server's event loop; all
// writes happen on the event loop.
type clientConn struct {
	id     protocol.ConnID
	conn   net.Conn
	log    logger.Logger
	closer sync.Once
}

func newClientConn(id protocol.ConnID, conn net.Conn, log logger.Logger) *clientConn {
	return &clientConn{
		id:   id,
		conn: conn,
		log:  log.With(logger.F("conn", id), logger.F("remote", conn.RemoteAddr().String())),
	}
}

// ID returns the server-assigned handle.
func (c *clientConn) ID() protocol.ConnID {
	return c.id
}

// readLoop scans NUL-terminated records off the socket and hands each one to
// emit. When the peer hangs up or the read fails, closed is called once with
// the cause (nil for a clean EOF). emit and closed return false when the
// server is shutting down, which ends the loop early.
func (c *clientConn) readLoop(emit func(record []byte) bool, closed func(err error)) {
	scanner := wire.NewScanner(c.conn)
	for scanner.Scan() {
		record := make([]byte, len(scanner.Bytes()))
		copy(record, scanner.Bytes())
		if !emit(record) {
			return
		}
	}

	closed(scanner.Err())
}

// Send encodes msg and writes it with the given deadline; a zero timeout
// writes without one.
func (c *clientConn) Send(msg wire.Msg, timeout time.Duration) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", errEncode, msg.Type, err)
	}

	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}

	_, err = c.conn.Write(data)
	return err
}

// Close closes the socket. Safe to call more than once.
func (c *clientConn) Close() error {
	var err error
	c.closer.Do(func() {
		err = c.conn.Close()
	})

	return err
}

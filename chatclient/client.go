// Package chatclient is a Go client for the chat server. It keeps one
// connection, reads records in a background goroutine, delivers relayed chat
// messages to a registered handler and pairs every other record with the
// request waiting for it.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/roomchat/wire"
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected; the server hung up or the read failed
	Connecting                          // Dial in progress
	Connected                           // Connected, possibly logged in
	Closed                              // Close was called; the client cannot be reused
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrNoReply         = errors.New("no reply from server")
	ErrUnexpectedReply = errors.New("unexpected reply from server")
)

// anonymousSource is the source token used before a successful login.
const anonymousSource = "guest"

// NakError is a request the server refused. Reason is the server's
// human-readable explanation.
type NakError struct {
	Type   wire.Type
	Reason string
}

func (e *NakError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Reason)
}

// Incoming is a chat message relayed by the server, from a session member or
// sent directly.
type Incoming struct {
	From      string
	Text      string
	Timestamp time.Time
}

// MessageHandler is called for each relayed message, in arrival order, from
// the read goroutine. It must not block for long.
type MessageHandler func(msg Incoming)

// DisconnectHandler is called once when the connection ends without Close,
// with the read error (nil when the server closed the connection cleanly).
type DisconnectHandler func(err error)

// Config holds configuration for the client.
type Config struct {
	// Address is the "host:port" to connect to.
	Address string
	// ConnectionTimeout is the max duration for establishing the connection.
	ConnectionTimeout time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ReplyTimeout is how long a request waits for its ACK or NAK when the
	// context has no earlier deadline.
	ReplyTimeout time.Duration
}

// DefaultConfig returns a Config with default values for the given address.
//
// Returns:
//   - A Config with defaults: ConnectionTimeout 10s, WriteTimeout 10s,
//     ReplyTimeout 10s
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReplyTimeout:      10 * time.Second,
	}
}

// Client is a connection to a chat server. Requests are serialized: each
// helper sends one record and waits for its reply before the next may start.
// It is safe for concurrent use.
type Client struct {
	config Config
	conn   net.Conn

	mu           sync.RWMutex
	state        ConnectionState
	id           string
	onMessage    MessageHandler
	onDisconnect DisconnectHandler

	writeMu sync.Mutex
	reqMu   sync.Mutex
	replies chan wire.Msg
	done    chan struct{}
	wg      sync.WaitGroup
}

// Dial connects to config.Address and starts reading.
//
// Returns:
//   - A connected, not yet logged in client, or the dial error
func Dial(ctx context.Context, config Config) (*Client, error) {
	c := &Client{
		config:  config,
		state:   Connecting,
		replies: make(chan wire.Msg, 16),
		done:    make(chan struct{}),
	}

	dialer := net.Dialer{Timeout: config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", config.Address, err)
	}

	c.conn = conn
	c.state = Connected

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// OnMessage registers the handler for relayed messages. Repeated calls
// replace the previous handler; nil clears it.
func (c *Client) OnMessage(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

// OnDisconnect registers the handler for unexpected disconnects.
func (c *Client) OnDisconnect(handler DisconnectHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = handler
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ID returns the identity this client logged in as, or "".
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Login authenticates as id. A refused login is returned as a *NakError and
// the server closes the connection.
func (c *Client) Login(ctx context.Context, id, secret string) error {
	if _, err := c.request(ctx, wire.New(wire.Login, id, secret), wire.LoginAck, wire.LoginNak); err != nil {
		return err
	}

	c.mu.Lock()
	c.id = id
	c.mu.Unlock()

	return nil
}

// CreateSession creates the named session and joins it.
func (c *Client) CreateSession(ctx context.Context, name, password string) error {
	_, err := c.sessionRequest(ctx, wire.NewSession, wire.NewSessionAck, wire.NewSessionNak, name, password)
	return err
}

// JoinSession joins an existing session.
func (c *Client) JoinSession(ctx context.Context, name, password string) error {
	_, err := c.sessionRequest(ctx, wire.Join, wire.JoinAck, wire.JoinNak, name, password)
	return err
}

// LeaveSession leaves the current session and returns its name.
func (c *Client) LeaveSession(ctx context.Context) (string, error) {
	reply, err := c.authedRequest(ctx, wire.LeaveSession, "", wire.LeaveAck, wire.LeaveNak)
	if err != nil {
		return "", err
	}

	return reply.Data, nil
}

// Send broadcasts text to the current session. The server does not
// acknowledge session messages; outside a session they are dropped.
func (c *Client) Send(text string) error {
	if text == "" {
		return nil
	}

	id := c.ID()
	if id == "" {
		return ErrNotLoggedIn
	}

	return c.write(wire.New(wire.Message, id, text))
}

// DirectMessage sends text to the client logged in as to.
func (c *Client) DirectMessage(ctx context.Context, to, text string) error {
	_, err := c.authedRequest(ctx, wire.DirectMessage, to+" "+text, wire.DirectMessageAck, wire.DirectMessageNak)
	return err
}

// Query lists online clients and available sessions.
func (c *Client) Query(ctx context.Context) (wire.Listing, error) {
	reply, err := c.authedRequest(ctx, wire.Query, "", wire.QueryAck, wire.QueryAck)
	if err != nil {
		return wire.Listing{}, err
	}

	return wire.ParseListing(reply.Data), nil
}

// Logout tells the server the client is leaving and closes the connection.
func (c *Client) Logout() error {
	source := c.ID()
	if source == "" {
		source = anonymousSource
	}

	_ = c.write(wire.New(wire.Exit, source, ""))
	return c.Close()
}

// Close closes the connection and waits for the read goroutine. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}

	c.state = Closed
	c.mu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()

	return err
}

func (c *Client) sessionRequest(ctx context.Context, t, ack, nak wire.Type, name, password string) (wire.Msg, error) {
	data := name
	if password != "" {
		data += " " + password
	}

	return c.authedRequest(ctx, t, data, ack, nak)
}

func (c *Client) authedRequest(ctx context.Context, t wire.Type, data string, ack, nak wire.Type) (wire.Msg, error) {
	id := c.ID()
	if id == "" {
		return wire.Msg{}, ErrNotLoggedIn
	}

	return c.request(ctx, wire.New(t, id, data), ack, nak)
}

// request sends msg and waits for a reply of type ack or nak.
func (c *Client) request(ctx context.Context, msg wire.Msg, ack, nak wire.Type) (wire.Msg, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	// Discard replies left over from a request that timed out.
	for drained := false; !drained; {
		select {
		case <-c.replies:
		default:
			drained = true
		}
	}

	if err := c.write(msg); err != nil {
		return wire.Msg{}, err
	}

	if c.config.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ReplyTimeout)
		defer cancel()
	}

	var reply wire.Msg
	select {
	case reply = <-c.replies:
	case <-c.done:
		// The server may answer and hang up in one go.
		select {
		case reply = <-c.replies:
		default:
			return wire.Msg{}, ErrNotConnected
		}
	case <-ctx.Done():
		return wire.Msg{}, fmt.Errorf("%w to %s: %w", ErrNoReply, msg.Type, ctx.Err())
	}

	switch reply.Type {
	case ack:
		return reply, nil
	case nak:
		return reply, &NakError{Type: reply.Type, Reason: reply.Data}
	default:
		return reply, fmt.Errorf("%w: %s to %s", ErrUnexpectedReply, reply.Type, msg.Type)
	}
}

func (c *Client) write(msg wire.Msg) error {
	if c.State() != Connected {
		return ErrNotConnected
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	_, err = c.conn.Write(data)
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)

	scanner := wire.NewScanner(c.conn)
	for scanner.Scan() {
		msg, err := wire.Decode(scanner.Bytes())
		if err != nil {
			continue
		}

		if msg.Type == wire.Message {
			c.emitMessage(msg)
			continue
		}

		select {
		case c.replies <- msg:
		default:
		}
	}

	c.mu.Lock()
	closed := c.state == Closed
	if !closed {
		c.state = Disconnected
	}
	handler := c.onDisconnect
	c.mu.Unlock()

	if !closed && handler != nil {
		handler(scanner.Err())
	}
}

func (c *Client) emitMessage(msg wire.Msg) {
	c.mu.RLock()
	handler := c.onMessage
	c.mu.RUnlock()

	if handler != nil {
		handler(Incoming{From: msg.Source, Text: msg.Data, Timestamp: time.Now()})
	}
}

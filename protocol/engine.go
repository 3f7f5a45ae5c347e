// Package protocol implements the chat server's request/response state
// machine. The Engine is transport-agnostic: it takes one decoded record and
// the connection it arrived on, mutates the connection table and session
// registry, and returns the records to deliver.
package protocol

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/cyberinferno/roomchat/conntable"
	"github.com/cyberinferno/roomchat/credential"
	"github.com/cyberinferno/roomchat/logger"
	"github.com/cyberinferno/roomchat/session"
	"github.com/cyberinferno/roomchat/wire"
)

// ConnID is the server-assigned handle of one accepted connection. Handles
// increase monotonically, so ordering by ConnID is ordering by accept time.
type ConnID uint32

// Outbound is one record to deliver to one connection.
type Outbound struct {
	To  ConnID
	Msg wire.Msg
}

// Result is everything a single request produced. When Close is set the
// requesting connection must be torn down after Out has been delivered.
type Result struct {
	Out   []Outbound
	Close bool
}

type handlerFunc func(ctx context.Context, from ConnID, id string, msg wire.Msg) Result

// Engine dispatches inbound records to one handler per record type. Each call
// to Handle is a single state transition; callers must not run two Handle
// calls concurrently if they rely on the ordering guarantees of the event
// loop, although the stores themselves stay consistent either way.
type Engine struct {
	auth     *credential.Authenticator
	conns    *conntable.Table[ConnID]
	sessions *session.Registry[ConnID]
	log      logger.Logger
	handlers map[wire.Type]handlerFunc
}

// NewEngine wires an Engine to its stores. The stores are owned by the
// caller and live as long as the server process.
func NewEngine(
	auth *credential.Authenticator,
	conns *conntable.Table[ConnID],
	sessions *session.Registry[ConnID],
	log logger.Logger,
) *Engine {
	e := &Engine{
		auth:     auth,
		conns:    conns,
		sessions: sessions,
		log:      log.With(logger.F("component", "engine")),
	}

	e.handlers = map[wire.Type]handlerFunc{
		wire.Exit:          e.handleExit,
		wire.NewSession:    e.handleNewSession,
		wire.Join:          e.handleJoin,
		wire.LeaveSession:  e.handleLeave,
		wire.Message:       e.handleMessage,
		wire.DirectMessage: e.handleDirectMessage,
		wire.Query:         e.handleQuery,
	}

	return e
}

// Handle processes one record received on from.
//
// An anonymous connection may only send LOGIN: success binds its identity,
// anything else (failed login or any other record) is answered with LO_NAK
// and closes it. Authenticated connections are routed by record type; record
// types clients never send are logged and dropped.
func (e *Engine) Handle(ctx context.Context, from ConnID, msg wire.Msg) Result {
	id, authenticated := e.conns.Lookup(from)
	if !authenticated {
		if msg.Type != wire.Login {
			e.log.Warn("request before login", logger.F("conn", from), logger.F("type", msg.Type.String()))
			return reject(from, wire.LoginNak, reasonLoginFirst)
		}

		return e.handleLogin(ctx, from, msg)
	}

	if msg.Type == wire.Login {
		return reply(from, wire.LoginNak, reasonAlreadyLoggedInHere)
	}

	h, ok := e.handlers[msg.Type]
	if !ok {
		e.log.Warn("dropping unexpected record",
			logger.F("conn", from), logger.F("client", id), logger.F("type", msg.Type.String()))
		return Result{}
	}

	return h(ctx, from, id, msg)
}

// Disconnect removes every trace of from: its identity binding and its
// session membership, deleting the session if from was its last member. It is
// idempotent.
//
// Returns:
//   - The identity from was bound to and the session it left, either of which
//     may be empty
func (e *Engine) Disconnect(from ConnID) (id string, left string) {
	id, _ = e.conns.Unbind(from)
	left, _ = e.sessions.Leave(from)

	if id != "" || left != "" {
		e.log.Info("client disconnected",
			logger.F("conn", from), logger.F("client", id), logger.F("session", left))
	}

	return id, left
}

// Identity returns the identity bound to from, if it has logged in.
func (e *Engine) Identity(from ConnID) (string, bool) {
	return e.conns.Lookup(from)
}

// Snapshot lists online identities and existing sessions, both sorted.
func (e *Engine) Snapshot() wire.Listing {
	return wire.Listing{
		Clients:  e.conns.Identities(),
		Sessions: e.sessions.Names(),
	}
}

func (e *Engine) handleLogin(ctx context.Context, from ConnID, msg wire.Msg) Result {
	id := msg.Source
	secret, _ := splitFirst(msg.Data)

	err := e.auth.Authenticate(ctx, id, secret, e.conns.Online)
	if err == nil {
		err = e.conns.Bind(from, id)
		if errors.Is(err, conntable.ErrIdentityBound) {
			err = credential.ErrAlreadyLoggedIn
		}
	}

	if err != nil {
		e.log.Info("login rejected", logger.F("conn", from), logger.F("client", id), logger.F("reason", err.Error()))
		return reject(from, wire.LoginNak, loginReason(err))
	}

	e.log.Info("client logged in", logger.F("conn", from), logger.F("client", id))
	return reply(from, wire.LoginAck, "")
}

func (e *Engine) handleExit(_ context.Context, from ConnID, id string, _ wire.Msg) Result {
	e.log.Info("client logged out", logger.F("conn", from), logger.F("client", id))
	return Result{Close: true}
}

func (e *Engine) handleNewSession(_ context.Context, from ConnID, id string, msg wire.Msg) Result {
	name, password := sessionArgs(msg.Data)

	if err := e.sessions.Create(name, password, from); err != nil {
		e.log.Info("session not created",
			logger.F("client", id), logger.F("session", name), logger.F("reason", err.Error()))
		return reply(from, wire.NewSessionNak, sessionReason(err))
	}

	e.log.Info("session created", logger.F("client", id), logger.F("session", name))
	return reply(from, wire.NewSessionAck, name)
}

func (e *Engine) handleJoin(_ context.Context, from ConnID, id string, msg wire.Msg) Result {
	name, password := sessionArgs(msg.Data)

	if err := e.sessions.Join(name, password, from); err != nil {
		e.log.Info("join rejected",
			logger.F("client", id), logger.F("session", name), logger.F("reason", err.Error()))
		return reply(from, wire.JoinNak, sessionReason(err))
	}

	e.log.Info("client joined session", logger.F("client", id), logger.F("session", name))
	return reply(from, wire.JoinAck, name)
}

func (e *Engine) handleLeave(_ context.Context, from ConnID, id string, _ wire.Msg) Result {
	name, err := e.sessions.Leave(from)
	if err != nil {
		return reply(from, wire.LeaveNak, sessionReason(err))
	}

	e.log.Info("client left session", logger.F("client", id), logger.F("session", name))
	return reply(from, wire.LeaveAck, name)
}

func (e *Engine) handleMessage(_ context.Context, from ConnID, id string, msg wire.Msg) Result {
	name, ok := e.sessions.SessionOf(from)
	if !ok || !msg.HasData() {
		e.log.Debug("message dropped", logger.F("client", id), logger.F("in_session", ok))
		return Result{}
	}

	relay := wire.New(wire.Message, id, msg.Data)
	out := lo.FilterMap(e.sessions.MembersOf(name), func(member ConnID, _ int) (Outbound, bool) {
		return Outbound{To: member, Msg: relay}, member != from
	})

	e.log.Debug("message relayed",
		logger.F("client", id), logger.F("session", name), logger.F("recipients", len(out)))
	return Result{Out: out}
}

func (e *Engine) handleDirectMessage(_ context.Context, from ConnID, id string, msg wire.Msg) Result {
	recipient, text := splitFirst(msg.Data)

	if recipient == id {
		return reply(from, wire.DirectMessageNak, reasonSelfSend)
	}

	to, ok := e.conns.FindByIdentity(recipient)
	if !ok {
		return reply(from, wire.DirectMessageNak, unknownRecipientReason(recipient))
	}

	e.log.Debug("direct message delivered", logger.F("client", id), logger.F("recipient", recipient))
	return Result{Out: []Outbound{
		{To: to, Msg: wire.New(wire.Message, id, text)},
		{To: from, Msg: wire.FromServer(wire.DirectMessageAck, recipient)},
	}}
}

func (e *Engine) handleQuery(_ context.Context, from ConnID, _ string, _ wire.Msg) Result {
	return reply(from, wire.QueryAck, e.Snapshot().Format())
}

func reply(to ConnID, t wire.Type, data string) Result {
	return Result{Out: []Outbound{{To: to, Msg: wire.FromServer(t, data)}}}
}

func reject(to ConnID, t wire.Type, data string) Result {
	r := reply(to, t, data)
	r.Close = true
	return r
}

// sessionArgs reads "<name> [<password>]".
func sessionArgs(data string) (name, password string) {
	fields := strings.Fields(data)
	if len(fields) > 0 {
		name = fields[0]
	}

	if len(fields) > 1 {
		password = fields[1]
	}

	return name, password
}

// splitFirst returns the first whitespace-delimited token of s and the text
// after the single delimiter that follows it, verbatim.
func splitFirst(s string) (first, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}

	_, width := utf8.DecodeRuneInString(s[end:])
	return s[:end], s[end+width:]
}

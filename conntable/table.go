// Package conntable maps live connections to the client identity they
// authenticated as.
package conntable

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var (
	ErrIdentityBound = errors.New("identity already bound to another connection")
	ErrConnBound     = errors.New("connection already has an identity")
)

// Table is a two-way index between connections and identities. An identity is
// bound to at most one connection and a connection carries at most one
// identity. It is safe for concurrent use.
type Table[C cmp.Ordered] struct {
	mu     sync.RWMutex
	byConn map[C]string
	byID   map[string]C
}

// New returns an empty Table.
func New[C cmp.Ordered]() *Table[C] {
	return &Table[C]{
		byConn: make(map[C]string),
		byID:   make(map[string]C),
	}
}

// Bind records that conn is authenticated as id.
//
// Returns:
//   - ErrConnBound if conn already has an identity, ErrIdentityBound if id is
//     bound to a different connection
func (t *Table[C]) Bind(conn C, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byConn[conn]; ok {
		return ErrConnBound
	}

	if _, ok := t.byID[id]; ok {
		return ErrIdentityBound
	}

	t.byConn[conn] = id
	t.byID[id] = conn
	return nil
}

// Unbind forgets conn. Unbinding an unknown connection is a no-op.
//
// Returns:
//   - The identity conn was bound to and true, or "" and false
func (t *Table[C]) Unbind(conn C) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byConn[conn]
	if !ok {
		return "", false
	}

	delete(t.byConn, conn)
	delete(t.byID, id)
	return id, true
}

// Lookup returns the identity bound to conn.
func (t *Table[C]) Lookup(conn C) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byConn[conn]
	return id, ok
}

// FindByIdentity returns the connection id is bound to.
func (t *Table[C]) FindByIdentity(id string) (C, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conn, ok := t.byID[id]
	return conn, ok
}

// Online reports whether id is bound to any connection.
func (t *Table[C]) Online(id string) bool {
	_, ok := t.FindByIdentity(id)
	return ok
}

// Identities returns every bound identity in ascending order.
func (t *Table[C]) Identities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := lo.Keys(t.byID)
	slices.Sort(ids)
	return ids
}

// Len returns the number of bound connections.
func (t *Table[C]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.byConn)
}

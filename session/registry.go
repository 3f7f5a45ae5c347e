// Package session keeps the set of named, password-protected chat sessions
// and which connection belongs to which session.
package session

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"
)

var (
	ErrAlreadyInSession = errors.New("already in a session")
	ErrEmptyName        = errors.New("empty session name")
	ErrNameTaken        = errors.New("session name taken")
	ErrNotFound         = errors.New("session not found")
	ErrWrongPassword    = errors.New("wrong session password")
	ErrNotInSession     = errors.New("not in a session")
)

// room is one session. Password and members live in the same value so that
// deleting a session can never leave one without the other.
type room[C cmp.Ordered] struct {
	password string
	members  map[C]struct{}
}

// Registry owns every session and the reverse index from connection to
// session. A connection is a member of at most one session, and a session
// with no members does not exist. It is safe for concurrent use; every
// method is one atomic step.
type Registry[C cmp.Ordered] struct {
	mu     sync.RWMutex
	rooms  map[string]*room[C]
	member map[C]string
}

// NewRegistry returns an empty Registry.
func NewRegistry[C cmp.Ordered]() *Registry[C] {
	return &Registry[C]{
		rooms:  make(map[string]*room[C]),
		member: make(map[C]string),
	}
}

// Create makes a new session with founder as its only member. Checks run in
// order: founder already in a session, empty name, name taken.
//
// Parameters:
//   - name: Session name
//   - password: Session password; may be empty
//   - founder: The creating connection
//
// Returns:
//   - ErrAlreadyInSession, ErrEmptyName or ErrNameTaken on failure
func (r *Registry[C]) Create(name, password string, founder C) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.member[founder]; ok {
		return ErrAlreadyInSession
	}

	if name == "" {
		return ErrEmptyName
	}

	if _, ok := r.rooms[name]; ok {
		return ErrNameTaken
	}

	r.rooms[name] = &room[C]{
		password: password,
		members:  map[C]struct{}{founder: {}},
	}
	r.member[founder] = name

	return nil
}

// Join adds conn to an existing session. Checks run in order: conn already in
// a session, empty name, unknown session, wrong password. A missing session
// therefore always reports ErrNotFound, never ErrWrongPassword.
//
// Parameters:
//   - name: Session to join
//   - password: Password offered by the client
//   - conn: The joining connection
//
// Returns:
//   - ErrAlreadyInSession, ErrEmptyName, ErrNotFound or ErrWrongPassword on
//     failure
func (r *Registry[C]) Join(name, password string, conn C) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.member[conn]; ok {
		return ErrAlreadyInSession
	}

	if name == "" {
		return ErrEmptyName
	}

	rm, ok := r.rooms[name]
	if !ok {
		return ErrNotFound
	}

	if rm.password != password {
		return ErrWrongPassword
	}

	rm.members[conn] = struct{}{}
	r.member[conn] = name

	return nil
}

// Leave removes conn from its session and deletes the session if it became
// empty.
//
// Returns:
//   - The name of the session conn left, or ErrNotInSession
func (r *Registry[C]) Leave(conn C) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.member[conn]
	if !ok {
		return "", ErrNotInSession
	}

	delete(r.member, conn)
	if rm, ok := r.rooms[name]; ok {
		delete(rm.members, conn)
		if len(rm.members) == 0 {
			delete(r.rooms, name)
		}
	}

	return name, nil
}

// SessionOf returns the session conn belongs to, if any.
func (r *Registry[C]) SessionOf(conn C) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.member[conn]
	return name, ok
}

// MembersOf returns the members of the named session in ascending order, or
// nil if the session does not exist.
func (r *Registry[C]) MembersOf(name string) []C {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}

	members := lo.Keys(rm.members)
	slices.Sort(members)
	return members
}

// Names returns every session name in ascending order.
func (r *Registry[C]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.rooms)
	slices.Sort(names)
	return names
}

// Exists reports whether a session called name exists.
func (r *Registry[C]) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[name]
	return ok
}

// Len returns the number of sessions.
func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

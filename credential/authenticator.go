package credential

import (
	"context"
	"errors"
	"fmt"
)

// OnlineFunc reports whether id is already bound to a live connection.
type OnlineFunc func(id string) bool

// Authenticator decides LOGIN attempts against a Store.
type Authenticator struct {
	store Store
}

// NewAuthenticator returns an Authenticator reading from store.
func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate checks a login attempt. The checks run in a fixed order: an
// unknown id fails first, then an id that is already online fails even if the
// secret is also wrong, and only then is the secret compared.
//
// Parameters:
//   - ctx: Context bounding the store lookup
//   - id: The client identifier from the LOGIN record
//   - secret: The secret from the LOGIN record
//   - online: Reports whether id already has a live connection
//
// Returns:
//   - nil if the client may log in
//   - ErrUnknownUser, ErrAlreadyLoggedIn or ErrWrongSecret, or a wrapped
//     store error
func (a *Authenticator) Authenticate(ctx context.Context, id, secret string, online OnlineFunc) error {
	if !isToken(id) {
		return ErrUnknownUser
	}

	rec, err := a.store.Lookup(ctx, id)
	if errors.Is(err, ErrUnknownUser) {
		return ErrUnknownUser
	}

	if err != nil {
		return fmt.Errorf("authenticate %s: %w", id, err)
	}

	if online != nil && online(id) {
		return ErrAlreadyLoggedIn
	}

	if !rec.Matches(secret) {
		return ErrWrongSecret
	}

	return nil
}

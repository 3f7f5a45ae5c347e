//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Package credential answers whether a client may log in. Secrets live in a
// pluggable Store (built-in roster, YAML file, SQLite); lookups can be cached
// in memory or in Redis.
package credential

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrWrongSecret     = errors.New("wrong secret")
	ErrAlreadyLoggedIn = errors.New("already logged in")
)

// Record is the stored credential of one client. Secret is either the
// plaintext secret or a bcrypt hash of it.
type Record struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// Matches reports whether secret is the one this record was created with.
func (r Record) Matches(secret string) bool {
	if isBcryptHash(r.Secret) {
		return bcrypt.CompareHashAndPassword([]byte(r.Secret), []byte(secret)) == nil
	}

	return subtle.ConstantTimeCompare([]byte(r.Secret), []byte(secret)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// Store is a read-only lookup table from client identifier to credential.
type Store interface {
	// Lookup returns the credential stored for id.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - id: The client identifier
	//
	// Returns:
	//   - The stored record
	//   - ErrUnknownUser if id has no credential, or a backend error
	Lookup(ctx context.Context, id string) (Record, error)

	// Close releases resources held by the store.
	Close() error
}

// isToken reports whether s can travel as the source field of a record.
func isToken(s string) bool {
	return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
}

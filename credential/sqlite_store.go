package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned by AddUser when the identifier is already stored.
var ErrUserExists = errors.New("user already exists")

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	"username" TEXT NOT NULL PRIMARY KEY,
	"hashed_password" TEXT NOT NULL
);`

// SQLiteStore keeps credentials in a SQLite database with bcrypt-hashed
// secrets. Users are provisioned out of band (AddUser, Import); the chat
// protocol itself never writes to it.
type SQLiteStore struct {
	db   *sql.DB
	cost int
}

// OpenSQLite opens (creating if needed) the database at path and makes sure
// the users table exists.
//
// Parameters:
//   - ctx: Context for the schema statement
//   - path: Database file path, or ":memory:"
//
// Returns:
//   - The store, or an error if the database cannot be opened or migrated
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	return &SQLiteStore{db: db, cost: bcrypt.DefaultCost}, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, id string) (Record, error) {
	var hashed string
	err := s.db.QueryRowContext(ctx,
		`SELECT hashed_password FROM users WHERE username = ?`, id).Scan(&hashed)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrUnknownUser
	}

	if err != nil {
		return Record{}, fmt.Errorf("lookup %s: %w", id, err)
	}

	return Record{ID: id, Secret: hashed}, nil
}

// AddUser stores a new client. A secret that is already a bcrypt hash is
// stored as is; anything else is hashed first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - id: Client identifier; must not contain whitespace
//   - secret: Plaintext secret or bcrypt hash
//
// Returns:
//   - ErrUserExists if id is taken, or a hashing/database error
func (s *SQLiteStore) AddUser(ctx context.Context, id, secret string) error {
	if !isToken(id) {
		return fmt.Errorf("add user: invalid client id %q", id)
	}

	hashed := secret
	if !isBcryptHash(secret) {
		b, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
		if err != nil {
			return fmt.Errorf("hash secret for %s: %w", id, err)
		}

		hashed = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, hashed_password) VALUES (?, ?) ON CONFLICT(username) DO NOTHING`,
		id, hashed)
	if err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s: %w", id, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrUserExists)
	}

	return nil
}

// Import adds every user of roster that the database does not know yet.
//
// Returns:
//   - The number of users added
func (s *SQLiteStore) Import(ctx context.Context, roster *MapStore) (int, error) {
	added := 0
	for _, id := range roster.IDs() {
		err := s.AddUser(ctx, id, roster.secrets[id])
		if errors.Is(err, ErrUserExists) {
			continue
		}

		if err != nil {
			return added, err
		}

		added++
	}

	return added, nil
}

// Count returns the number of stored users.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}

	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

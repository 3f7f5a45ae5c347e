package credential

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// MapStore is an in-memory Store built once at startup. It is safe for
// concurrent use because it is never mutated after construction.
type MapStore struct {
	secrets map[string]string
}

// NewMapStore copies secrets into a new MapStore.
func NewMapStore(secrets map[string]string) *MapStore {
	m := make(map[string]string, len(secrets))
	for id, secret := range secrets {
		m[id] = secret
	}

	return &MapStore{secrets: m}
}

// DefaultRoster is the built-in list of clients allowed to log in when no
// other credential source is configured.
func DefaultRoster() map[string]string {
	return map[string]string{
		"sadman":   "ahmed",
		"eliano":   "anile",
		"chris":    "pua",
		"username": "password",
		"hamid":    "timorabadi",
		"john":     "smith",
	}
}

// Lookup implements Store.
func (s *MapStore) Lookup(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	secret, ok := s.secrets[id]
	if !ok {
		return Record{}, ErrUnknownUser
	}

	return Record{ID: id, Secret: secret}, nil
}

// IDs returns the known identifiers in ascending order.
func (s *MapStore) IDs() []string {
	ids := lo.Keys(s.secrets)
	sort.Strings(ids)
	return ids
}

// Len returns the number of known identifiers.
func (s *MapStore) Len() int {
	return len(s.secrets)
}

// Close implements Store.
func (s *MapStore) Close() error {
	return nil
}

// rosterFile is the on-disk layout read by LoadFile:
//
//	users:
//	  alice: pw1
//	  bob: $2a$10$...
type rosterFile struct {
	Users map[string]string `yaml:"users"`
}

// LoadFile reads a YAML roster into a MapStore. Secrets may be plaintext or
// bcrypt hashes.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - The populated store, or an error if the file is unreadable, malformed,
//     or lists no users
func LoadFile(path string) (*MapStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var f rosterFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	if len(f.Users) == 0 {
		return nil, fmt.Errorf("roster %s lists no users", path)
	}

	for id := range f.Users {
		if id == "" || !isToken(id) {
			return nil, fmt.Errorf("roster %s: invalid client id %q", path, id)
		}
	}

	return NewMapStore(f.Users), nil
}

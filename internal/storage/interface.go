package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key, secret, role, or registration does not
// exist in the backing store.
var ErrNotFound = errors.New("not found")

// AuthInfo describes the token obtained from a role-based login.
type AuthInfo struct {
	Renewable     bool
	LeaseDuration int // seconds
}

// SecretStore is the secret-engine side of the system: a versioned KV engine
// holding sensitive payloads, plus the policy and role constructs of its
// access-control model. Paths are relative to the engine mount,
// "{type}/{secretId}".
type SecretStore interface {
	// Login exchanges role credentials for a client token and installs it
	// on the underlying client.
	Login(ctx context.Context, roleID, secretID string) (*AuthInfo, error)

	// RenewSelf renews the client's own token for increment seconds.
	RenewSelf(ctx context.Context, increment int) error

	// Mount returns the engine mount name secrets are stored under.
	Mount() string

	ReadSecret(ctx context.Context, path string) (map[string]any, error)
	WriteSecret(ctx context.Context, path string, data map[string]any) error
	DeleteSecret(ctx context.Context, path string) error

	// WritePolicy creates or overwrites a named access policy.
	WritePolicy(ctx context.Context, name, rules string) error
	DeletePolicy(ctx context.Context, name string) error

	// RolePolicies returns the policy names attached to a consumer's
	// auth role; ErrNotFound when the role does not exist.
	RolePolicies(ctx context.Context, role string) ([]string, error)
	SetRolePolicies(ctx context.Context, role string, policies []string) error
}

// KVEntry is one key/value pair from a catalog prefix listing.
type KVEntry struct {
	Key   string
	Value []byte
}

// Catalog is the non-sensitive side of the system: a distributed KV store
// holding JSON-serialized type definitions, secret metadata, and consumer
// registrations.
type Catalog interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]KVEntry, error)
}

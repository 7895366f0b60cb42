package vault

import (
	"context"
	"time"

	"github.com/srosati/passphrasex/crypto"
)

// Credential is one stored login. The site is plaintext by design; the
// username and password fields are sealed under the owner's identity. The
// id is the deterministic keyed hash of (site, username plaintext), so
// any device holding the same seed reproduces it without server state.
type Credential struct {
	ID       string                `json:"id"`
	UserID   string                `json:"user_id"`
	Site     string                `json:"site"`
	Username crypto.EncryptedValue `json:"username"`
	Password crypto.EncryptedValue `json:"password"`
}

// PlainCredential is a decrypted credential as returned to callers.
type PlainCredential struct {
	Site     string
	Username string
	Password string
}

// DeviceRecord is the locally persisted device state: the password
// verification hash, its salt, and the wrapped private key. The private
// key blob is opaque until unwrapped by the symmetric guard.
type DeviceRecord struct {
	DeviceID            string
	PublicKey           string
	PasswordHash        []byte
	PasswordSalt        []byte
	EncryptedPrivateKey []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LocalStore is the local persisted-state collaborator. Implementations
// must treat corrupt or missing state as an error wrapping
// ErrStorageUnavailable, never a crash.
type LocalStore interface {
	// SaveDevice persists the device record and clears any existing
	// credential snapshot in a single transaction (all-or-nothing).
	SaveDevice(ctx context.Context, rec DeviceRecord) error
	// LoadDevice returns the persisted record, or nil if none exists.
	LoadDevice(ctx context.Context) (*DeviceRecord, error)

	ReplaceCredentials(ctx context.Context, creds []Credential) error
	UpsertCredential(ctx context.Context, cred Credential) error
	DeleteCredential(ctx context.Context, id string) error
	ListCredentials(ctx context.Context) ([]Credential, error)
	SetLastSyncedAt(ctx context.Context, at time.Time) error
}

// ListFilter narrows a remote credential listing. Zero value lists
// everything for the identity.
type ListFilter struct {
	Site     string
	Username string
}

// RemoteStore is the authoritative credential store collaborator. All
// calls are keyed by the caller's public key; the store enforces that
// only the owning identity reads or mutates its credentials.
// Implementations report unreachability as an error wrapping
// ErrRemoteUnavailable.
type RemoteStore interface {
	CreateIdentity(ctx context.Context, publicKey string) error
	ListCredentials(ctx context.Context, publicKey string, filter ListFilter) ([]Credential, error)
	AddCredential(ctx context.Context, publicKey string, cred Credential) error
	UpdateCredentialPassword(ctx context.Context, publicKey, credentialID string, password crypto.EncryptedValue) error
	DeleteCredential(ctx context.Context, publicKey, credentialID string) error
}

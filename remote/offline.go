package remote

import (
	"context"
	"fmt"

	"github.com/srosati/passphrasex/crypto"
	"github.com/srosati/passphrasex/vault"
)

// Offline is a vault.RemoteStore for sessions that could not reach the
// store. Every call fails with vault.ErrRemoteUnavailable, which makes
// writes abort cleanly while cache reads keep working.
type Offline struct{}

func (Offline) CreateIdentity(ctx context.Context, publicKey string) error {
	return offlineErr()
}

func (Offline) ListCredentials(ctx context.Context, publicKey string, filter vault.ListFilter) ([]vault.Credential, error) {
	return nil, offlineErr()
}

func (Offline) AddCredential(ctx context.Context, publicKey string, cred vault.Credential) error {
	return offlineErr()
}

func (Offline) UpdateCredentialPassword(ctx context.Context, publicKey, credentialID string, password crypto.EncryptedValue) error {
	return offlineErr()
}

func (Offline) DeleteCredential(ctx context.Context, publicKey, credentialID string) error {
	return offlineErr()
}

func offlineErr() error {
	return fmt.Errorf("%w: offline", vault.ErrRemoteUnavailable)
}

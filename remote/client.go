// Package remote implements the remote credential store client over NATS
// request/reply. The store is authoritative for the user's credentials;
// every call is keyed by the caller's public key. Transport failures are
// reported as vault.ErrRemoteUnavailable so the vault can apply its
// cache-fallback policy for reads and abort writes.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/srosati/passphrasex/crypto"
	"github.com/srosati/passphrasex/vault"
)

// Options configures the store connection.
type Options struct {
	URL             string
	CredentialsFile string
	Timeout         time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int
}

// Client is a vault.RemoteStore over a NATS connection.
type Client struct {
	conn    *nats.Conn
	timeout time.Duration
}

// Dial connects to the store.
func Dial(opts Options) (*Client, error) {
	natsOpts := []nats.Option{
		nats.Name("passphrasex-client"),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Remote store disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Remote store reconnected")
		}),
	}

	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err == nil {
			natsOpts = append(natsOpts, nats.UserCredentials(opts.CredentialsFile))
		}
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrRemoteUnavailable, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close closes the connection.
func (c *Client) Close() {
	c.conn.Close()
}

// CreateIdentity registers a public key with the store.
func (c *Client) CreateIdentity(ctx context.Context, publicKey string) error {
	_, err := c.call(ctx, subjectIdentityCreate, request{PublicKey: publicKey})
	return err
}

// ListCredentials fetches the credential set for an identity, optionally
// narrowed by site and username.
func (c *Client) ListCredentials(ctx context.Context, publicKey string, filter vault.ListFilter) ([]vault.Credential, error) {
	resp, err := c.call(ctx, subjectCredentialsList, request{
		PublicKey: publicKey,
		Site:      filter.Site,
		Username:  filter.Username,
	})
	if err != nil {
		return nil, err
	}
	return resp.Credentials, nil
}

// AddCredential submits a new credential.
func (c *Client) AddCredential(ctx context.Context, publicKey string, cred vault.Credential) error {
	_, err := c.call(ctx, subjectCredentialsAdd, request{
		PublicKey:  publicKey,
		Credential: &cred,
	})
	return err
}

// UpdateCredentialPassword replaces the password field of a credential.
func (c *Client) UpdateCredentialPassword(ctx context.Context, publicKey, credentialID string, password crypto.EncryptedValue) error {
	_, err := c.call(ctx, subjectCredentialsUpdate, request{
		PublicKey:    publicKey,
		CredentialID: credentialID,
		Password:     &password,
	})
	return err
}

// DeleteCredential removes a credential.
func (c *Client) DeleteCredential(ctx context.Context, publicKey, credentialID string) error {
	_, err := c.call(ctx, subjectCredentialsDelete, request{
		PublicKey:    publicKey,
		CredentialID: credentialID,
	})
	return err
}

// call performs one request/reply exchange and maps failures onto the
// vault's error taxonomy.
func (c *Client) call(ctx context.Context, subject string, req request) (*response, error) {
	req.RequestID = uuid.NewString()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vault.ErrRemoteUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed reply: %v", vault.ErrRemoteUnavailable, err)
	}

	if !resp.OK {
		return nil, storeError(resp)
	}
	return &resp, nil
}

// storeError maps a store-level error reply onto the vault taxonomy.
func storeError(resp response) error {
	var err error
	switch resp.ErrorCode {
	case codeNotFound:
		err = vault.ErrCredentialNotFound
	case codeExists:
		err = vault.ErrCredentialExists
	case codeIdentityExists:
		err = vault.ErrIdentityExists
	default:
		err = errors.New("remote store error")
	}

	if resp.Error != "" {
		return fmt.Errorf("%w: %s", err, resp.Error)
	}
	return err
}

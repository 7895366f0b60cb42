// Package vault orchestrates the credential vault: a {Locked, Unlocked}
// session owning the identity key pair and the local credential cache,
// coordinating the cryptographic core, the local store and the remote
// credential store. The remote store is authoritative when reachable; the
// local cache is a best-effort offline fallback, never silently preferred
// over a reachable remote.
package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/srosati/passphrasex/crypto"
)

// Vault is the session object for one identity. All operations are
// serialized under its lock: the private key and the cache are owned
// exclusively by one Vault at a time.
type Vault struct {
	mu     sync.Mutex
	local  LocalStore
	remote RemoteStore

	keys  *crypto.KeyPair
	cache *cache
}

// New creates a locked vault over the given collaborators.
func New(local LocalStore, remote RemoteStore) *Vault {
	return &Vault{
		local:  local,
		remote: remote,
		cache:  newCache(),
	}
}

// Unlocked reports whether the vault currently holds key material.
func (v *Vault) Unlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keys != nil
}

// Status reports whether a device record exists locally and whether the
// session is unlocked.
func (v *Vault) Status(ctx context.Context) (registered, unlocked bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.local.LoadDevice(ctx)
	if err != nil {
		return false, false, err
	}
	return rec != nil, v.keys != nil, nil
}

// Lock drops the key material and cached credentials, returning the vault
// to the locked state.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys != nil {
		v.keys.Zero()
		v.keys = nil
	}
	v.cache = newCache()
}

// Register creates a brand new identity: generates a seed phrase, derives
// the key pair, wraps the private key under the device password, registers
// the public key with the remote store, and persists the device record.
// All-or-nothing: the local record is written in one transaction only
// after the remote registration succeeds, so a failure at any step leaves
// no persisted state. Success leaves the vault unlocked.
//
// The returned phrase is shown to the user exactly once.
func (v *Vault) Register(ctx context.Context, devicePassword string) (crypto.SeedPhrase, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	phrase, err := crypto.GenerateSeedPhrase()
	if err != nil {
		return crypto.SeedPhrase{}, fmt.Errorf("register: %w", err)
	}
	keys, err := crypto.DeriveKeyPair(phrase)
	if err != nil {
		return crypto.SeedPhrase{}, fmt.Errorf("register: %w", err)
	}

	rec, err := wrapIdentity(keys, devicePassword)
	if err != nil {
		return crypto.SeedPhrase{}, fmt.Errorf("register: %w", err)
	}

	if err := v.remote.CreateIdentity(ctx, keys.PublicKey()); err != nil {
		return crypto.SeedPhrase{}, fmt.Errorf("register: %w", err)
	}

	if err := v.local.SaveDevice(ctx, rec); err != nil {
		return crypto.SeedPhrase{}, fmt.Errorf("register: %w", err)
	}

	v.keys = keys
	v.cache = newCache()
	log.Info().Str("device_id", rec.DeviceID).Msg("Registered new identity")
	return phrase, nil
}

// Authenticate is the lost-device recovery path: it re-derives the
// identity from the seed phrase alone, re-wraps it under the device
// password, persists the record, and then syncs the cache from the remote
// store. Seed validation failure is fatal; a sync failure is downgraded
// to a warning, leaving an empty cache rather than aborting.
func (v *Vault) Authenticate(ctx context.Context, phrase, devicePassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	seed, err := crypto.NewSeedPhrase(phrase)
	if err != nil {
		return err
	}
	keys, err := crypto.DeriveKeyPair(seed)
	if err != nil {
		return err
	}

	rec, err := wrapIdentity(keys, devicePassword)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := v.local.SaveDevice(ctx, rec); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	v.keys = keys
	v.cache = newCache()

	if err := v.syncLocked(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial sync failed, starting with empty cache")
	}
	return nil
}

// Unlock opens an existing local session offline: verifies the device
// password against the persisted hash, unwraps the private key, and loads
// the cached credentials from disk. No remote call is made. A wrong
// password mutates nothing.
func (v *Vault) Unlock(ctx context.Context, devicePassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.local.LoadDevice(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: no device record", ErrStorageUnavailable)
	}

	hash := crypto.PasswordHash{Hash: rec.PasswordHash, Salt: rec.PasswordSalt}
	if !hash.Verify(devicePassword) {
		return ErrIncorrectPassword
	}

	skBytes, err := crypto.DecryptAtRest(rec.PasswordHash, rec.EncryptedPrivateKey)
	if err != nil {
		return err
	}
	if len(skBytes) != 32 {
		return crypto.ErrCorruptKeyStore
	}

	var sk [32]byte
	copy(sk[:], skBytes)
	keys, err := crypto.KeyPairFromPrivateKey(sk)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	creds, err := v.local.ListCredentials(ctx)
	if err != nil {
		return err
	}

	v.keys = keys
	v.cache = newCache()
	v.cache.rebuild(creds)
	log.Debug().Int("credentials", len(creds)).Msg("Vault unlocked")
	return nil
}

// Sync fetches the full remote credential set, rebuilds the cache
// wholesale and persists the snapshot. On remote failure the existing
// cache is left intact and the error is returned to the caller.
func (v *Vault) Sync(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return ErrVaultLocked
	}
	return v.syncLocked(ctx)
}

func (v *Vault) syncLocked(ctx context.Context) error {
	creds, err := v.remote.ListCredentials(ctx, v.keys.PublicKey(), ListFilter{})
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	v.cache.rebuild(creds)
	if err := v.local.ReplaceCredentials(ctx, creds); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := v.local.SetLastSyncedAt(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to record sync time")
	}
	log.Debug().Int("credentials", len(creds)).Msg("Cache rebuilt from remote")
	return nil
}

// Add encrypts and stores a new credential. The remote write must be
// confirmed before the cache or local snapshot is touched, so the local
// state is never ahead of the remote store.
func (v *Vault) Add(ctx context.Context, site, username, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return ErrVaultLocked
	}

	id := v.keys.CredentialID(site, username)
	if _, exists := v.cache.get(site, id); exists {
		return ErrCredentialExists
	}

	encUsername, err := v.keys.Encrypt(username)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	encPassword, err := v.keys.Encrypt(password)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	cred := Credential{
		ID:       id,
		UserID:   v.keys.PublicKey(),
		Site:     site,
		Username: encUsername,
		Password: encPassword,
	}

	if err := v.remote.AddCredential(ctx, cred.UserID, cred); err != nil {
		return fmt.Errorf("add: %w", err)
	}

	v.cache.put(cred)
	if err := v.local.UpsertCredential(ctx, cred); err != nil {
		// The remote accepted the write; the snapshot catches up on the
		// next sync.
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// Get returns the decrypted credential for (site, username) from the
// local cache. Reads never trigger an implicit remote sync.
func (v *Vault) Get(site, username string) (PlainCredential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return PlainCredential{}, ErrVaultLocked
	}

	id := v.keys.CredentialID(site, username)
	cred, ok := v.cache.get(site, id)
	if !ok {
		return PlainCredential{}, ErrCredentialNotFound
	}
	return v.decrypt(cred)
}

// GetSite returns all decrypted credentials stored for a site.
func (v *Vault) GetSite(site string) ([]PlainCredential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return nil, ErrVaultLocked
	}

	creds := v.cache.bySite(site)
	out := make([]PlainCredential, 0, len(creds))
	for _, cred := range creds {
		plain, err := v.decrypt(cred)
		if err != nil {
			return nil, err
		}
		out = append(out, plain)
	}
	return out, nil
}

// Edit replaces the password of an existing credential. The remote update
// is confirmed before the cached entry is overwritten in place.
func (v *Vault) Edit(ctx context.Context, site, username, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return ErrVaultLocked
	}

	id := v.keys.CredentialID(site, username)
	cred, ok := v.cache.get(site, id)
	if !ok {
		return ErrCredentialNotFound
	}

	encPassword, err := v.keys.Encrypt(newPassword)
	if err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	if err := v.remote.UpdateCredentialPassword(ctx, v.keys.PublicKey(), id, encPassword); err != nil {
		return fmt.Errorf("edit: %w", err)
	}

	cred.Password = encPassword
	v.cache.put(cred)
	if err := v.local.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("edit: %w", err)
	}
	return nil
}

// Delete removes a credential. The cache entry is only dropped after the
// remote confirms the deletion.
func (v *Vault) Delete(ctx context.Context, site, username string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keys == nil {
		return ErrVaultLocked
	}

	id := v.keys.CredentialID(site, username)
	if _, ok := v.cache.get(site, id); !ok {
		return ErrCredentialNotFound
	}

	if err := v.remote.DeleteCredential(ctx, v.keys.PublicKey(), id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	v.cache.remove(site, id)
	if err := v.local.DeleteCredential(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (v *Vault) decrypt(cred Credential) (PlainCredential, error) {
	username, err := v.keys.Decrypt(cred.Username)
	if err != nil {
		return PlainCredential{}, err
	}
	password, err := v.keys.Decrypt(cred.Password)
	if err != nil {
		return PlainCredential{}, err
	}
	return PlainCredential{Site: cred.Site, Username: username, Password: password}, nil
}

// wrapIdentity builds a fresh device record for keys under the device
// password: new salt, new hash, private key wrapped under the hash.
func wrapIdentity(keys *crypto.KeyPair, devicePassword string) (DeviceRecord, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return DeviceRecord{}, err
	}
	hash := crypto.HashPassword(devicePassword, salt)

	wrapped, err := crypto.EncryptAtRest(hash.Hash, keys.PrivateKeyBytes())
	if err != nil {
		return DeviceRecord{}, err
	}

	now := time.Now()
	return DeviceRecord{
		DeviceID:            uuid.NewString(),
		PublicKey:           keys.PublicKey(),
		PasswordHash:        hash.Hash,
		PasswordSalt:        hash.Salt,
		EncryptedPrivateKey: wrapped,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

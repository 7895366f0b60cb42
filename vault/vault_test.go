package vault_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srosati/passphrasex/crypto"
	"github.com/srosati/passphrasex/vault"
	"github.com/srosati/passphrasex/vault/storage"
)

// fakeRemote is an in-memory RemoteStore. Setting down simulates an
// unreachable store: every call fails with ErrRemoteUnavailable.
type fakeRemote struct {
	down        bool
	identities  map[string]bool
	credentials map[string]map[string]vault.Credential // public key -> id -> credential
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		identities:  make(map[string]bool),
		credentials: make(map[string]map[string]vault.Credential),
	}
}

func (r *fakeRemote) CreateIdentity(_ context.Context, publicKey string) error {
	if r.down {
		return fmt.Errorf("%w: store offline", vault.ErrRemoteUnavailable)
	}
	if r.identities[publicKey] {
		return vault.ErrIdentityExists
	}
	r.identities[publicKey] = true
	r.credentials[publicKey] = make(map[string]vault.Credential)
	return nil
}

func (r *fakeRemote) ListCredentials(_ context.Context, publicKey string, filter vault.ListFilter) ([]vault.Credential, error) {
	if r.down {
		return nil, fmt.Errorf("%w: store offline", vault.ErrRemoteUnavailable)
	}
	var out []vault.Credential
	for _, cred := range r.credentials[publicKey] {
		if filter.Site != "" && cred.Site != filter.Site {
			continue
		}
		out = append(out, cred)
	}
	return out, nil
}

func (r *fakeRemote) AddCredential(_ context.Context, publicKey string, cred vault.Credential) error {
	if r.down {
		return fmt.Errorf("%w: store offline", vault.ErrRemoteUnavailable)
	}
	creds := r.credentials[publicKey]
	if creds == nil {
		creds = make(map[string]vault.Credential)
		r.credentials[publicKey] = creds
	}
	if _, ok := creds[cred.ID]; ok {
		return vault.ErrCredentialExists
	}
	creds[cred.ID] = cred
	return nil
}

func (r *fakeRemote) UpdateCredentialPassword(_ context.Context, publicKey, credentialID string, password crypto.EncryptedValue) error {
	if r.down {
		return fmt.Errorf("%w: store offline", vault.ErrRemoteUnavailable)
	}
	cred, ok := r.credentials[publicKey][credentialID]
	if !ok {
		return vault.ErrCredentialNotFound
	}
	cred.Password = password
	r.credentials[publicKey][credentialID] = cred
	return nil
}

func (r *fakeRemote) DeleteCredential(_ context.Context, publicKey, credentialID string) error {
	if r.down {
		return fmt.Errorf("%w: store offline", vault.ErrRemoteUnavailable)
	}
	if _, ok := r.credentials[publicKey][credentialID]; !ok {
		return vault.ErrCredentialNotFound
	}
	delete(r.credentials[publicKey], credentialID)
	return nil
}

func testVault(t *testing.T) (*vault.Vault, *fakeRemote, *storage.Store) {
	t.Helper()

	local, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	remote := newFakeRemote()
	return vault.New(local, remote), remote, local
}

func registeredVault(t *testing.T) (*vault.Vault, *fakeRemote, *storage.Store, crypto.SeedPhrase) {
	t.Helper()

	v, remote, local := testVault(t)
	phrase, err := v.Register(context.Background(), "hunter2")
	if err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	return v, remote, local, phrase
}

func TestRegister_Unlocks(t *testing.T) {
	v, remote, _, phrase := registeredVault(t)

	if !v.Unlocked() {
		t.Fatal("Register should leave the vault unlocked")
	}
	if phrase.Phrase() == "" {
		t.Fatal("Register returned an empty seed phrase")
	}
	if len(remote.identities) != 1 {
		t.Fatalf("Expected 1 remote identity, got %d", len(remote.identities))
	}
}

func TestRegister_RemoteFailureLeavesNoState(t *testing.T) {
	v, remote, local := testVault(t)
	remote.down = true

	_, err := v.Register(context.Background(), "hunter2")
	if !errors.Is(err, vault.ErrRemoteUnavailable) {
		t.Fatalf("Expected ErrRemoteUnavailable, got %v", err)
	}
	if v.Unlocked() {
		t.Fatal("Failed register must not unlock the vault")
	}

	rec, err := local.LoadDevice(context.Background())
	if err != nil {
		t.Fatalf("Failed to load device record: %v", err)
	}
	if rec != nil {
		t.Fatal("Failed register must not persist a device record")
	}
}

func TestUnlock_CorrectAndWrongPassword(t *testing.T) {
	v, _, local, _ := registeredVault(t)
	ctx := context.Background()
	v.Lock()

	before, err := local.LoadDevice(ctx)
	if err != nil {
		t.Fatalf("Failed to load device record: %v", err)
	}

	if err := v.Unlock(ctx, "wrong"); !errors.Is(err, vault.ErrIncorrectPassword) {
		t.Fatalf("Expected ErrIncorrectPassword, got %v", err)
	}
	if v.Unlocked() {
		t.Fatal("Wrong password must not unlock the vault")
	}

	after, err := local.LoadDevice(ctx)
	if err != nil {
		t.Fatalf("Failed to reload device record: %v", err)
	}
	if after.DeviceID != before.DeviceID || string(after.EncryptedPrivateKey) != string(before.EncryptedPrivateKey) {
		t.Fatal("Wrong password mutated persisted state")
	}

	if err := v.Unlock(ctx, "hunter2"); err != nil {
		t.Fatalf("Failed to unlock with the correct password: %v", err)
	}
	if !v.Unlocked() {
		t.Fatal("Vault should be unlocked")
	}
}

func TestUnlock_NoDeviceRecord(t *testing.T) {
	v, _, _ := testVault(t)

	err := v.Unlock(context.Background(), "hunter2")
	if !errors.Is(err, vault.ErrStorageUnavailable) {
		t.Fatalf("Expected ErrStorageUnavailable, got %v", err)
	}
}

func TestAddGet_RoundTrip(t *testing.T) {
	v, _, _, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}

	plain, err := v.Get("example.com", "alice")
	if err != nil {
		t.Fatalf("Failed to get credential: %v", err)
	}
	if plain.Username != "alice" || plain.Password != "s3cret" {
		t.Fatalf("Round trip mismatch: %+v", plain)
	}
}

func TestAdd_Duplicate(t *testing.T) {
	v, _, _, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}
	err := v.Add(ctx, "example.com", "alice", "another")
	if !errors.Is(err, vault.ErrCredentialExists) {
		t.Fatalf("Expected ErrCredentialExists, got %v", err)
	}
}

func TestAdd_RemoteFailureKeepsCacheClean(t *testing.T) {
	v, remote, _, _ := registeredVault(t)
	ctx := context.Background()
	remote.down = true

	err := v.Add(ctx, "example.com", "alice", "s3cret")
	if !errors.Is(err, vault.ErrRemoteUnavailable) {
		t.Fatalf("Expected ErrRemoteUnavailable, got %v", err)
	}

	// Local cache must never be ahead of the remote store
	if _, err := v.Get("example.com", "alice"); !errors.Is(err, vault.ErrCredentialNotFound) {
		t.Fatalf("Expected ErrCredentialNotFound after failed add, got %v", err)
	}
}

func TestDelete_ThenGet(t *testing.T) {
	v, _, _, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}
	if err := v.Delete(ctx, "example.com", "alice"); err != nil {
		t.Fatalf("Failed to delete credential: %v", err)
	}

	if _, err := v.Get("example.com", "alice"); !errors.Is(err, vault.ErrCredentialNotFound) {
		t.Fatalf("Expected ErrCredentialNotFound after delete, got %v", err)
	}

	if err := v.Delete(ctx, "example.com", "alice"); !errors.Is(err, vault.ErrCredentialNotFound) {
		t.Fatalf("Expected ErrCredentialNotFound for absent credential, got %v", err)
	}
}

func TestEdit_ReplacesPassword(t *testing.T) {
	v, _, _, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "old-pass"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}
	if err := v.Edit(ctx, "example.com", "alice", "new-pass"); err != nil {
		t.Fatalf("Failed to edit credential: %v", err)
	}

	plain, err := v.Get("example.com", "alice")
	if err != nil {
		t.Fatalf("Failed to get credential: %v", err)
	}
	if plain.Password != "new-pass" {
		t.Fatalf("Expected edited password, got %q", plain.Password)
	}

	if err := v.Edit(ctx, "missing.com", "alice", "x"); !errors.Is(err, vault.ErrCredentialNotFound) {
		t.Fatalf("Expected ErrCredentialNotFound for absent site, got %v", err)
	}
}

func TestSync_RemoteFailureKeepsCache(t *testing.T) {
	v, remote, _, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}

	remote.down = true
	if err := v.Sync(ctx); !errors.Is(err, vault.ErrRemoteUnavailable) {
		t.Fatalf("Expected ErrRemoteUnavailable, got %v", err)
	}

	// The pre-failure cache still serves reads
	plain, err := v.Get("example.com", "alice")
	if err != nil {
		t.Fatalf("Cache lost after failed sync: %v", err)
	}
	if plain.Password != "s3cret" {
		t.Fatalf("Cache content changed after failed sync: %+v", plain)
	}
}

func TestSync_RebuildsFromRemote(t *testing.T) {
	v, remote, _, phrase := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}

	// A second device recovers the identity from the phrase and sees the
	// credential after its initial sync.
	local2, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open second store: %v", err)
	}
	defer local2.Close()

	v2 := vault.New(local2, remote)
	if err := v2.Authenticate(ctx, phrase.Phrase(), "other-device-pass"); err != nil {
		t.Fatalf("Failed to authenticate second device: %v", err)
	}

	plain, err := v2.Get("example.com", "alice")
	if err != nil {
		t.Fatalf("Second device missing synced credential: %v", err)
	}
	if plain.Password != "s3cret" {
		t.Fatalf("Synced credential mismatch: %+v", plain)
	}
}

func TestAuthenticate_InvalidPhrase(t *testing.T) {
	v, _, _ := testVault(t)

	err := v.Authenticate(context.Background(), "not a real mnemonic", "hunter2")
	if !errors.Is(err, crypto.ErrInvalidSeedPhrase) {
		t.Fatalf("Expected ErrInvalidSeedPhrase, got %v", err)
	}
}

func TestAuthenticate_SyncFailureNonFatal(t *testing.T) {
	v, remote, _, phrase := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}

	local2, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open second store: %v", err)
	}
	defer local2.Close()

	remote.down = true
	v2 := vault.New(local2, remote)
	if err := v2.Authenticate(ctx, phrase.Phrase(), "pass"); err != nil {
		t.Fatalf("Authenticate should tolerate a failed sync, got %v", err)
	}
	if !v2.Unlocked() {
		t.Fatal("Authenticate should leave the vault unlocked")
	}

	// Cache starts empty until a sync succeeds
	if _, err := v2.Get("example.com", "alice"); !errors.Is(err, vault.ErrCredentialNotFound) {
		t.Fatalf("Expected empty cache, got %v", err)
	}
}

func TestLockedVault_Guards(t *testing.T) {
	v, _, _ := testVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "x"); !errors.Is(err, vault.ErrVaultLocked) {
		t.Fatalf("Expected ErrVaultLocked from Add, got %v", err)
	}
	if _, err := v.Get("example.com", "alice"); !errors.Is(err, vault.ErrVaultLocked) {
		t.Fatalf("Expected ErrVaultLocked from Get, got %v", err)
	}
	if err := v.Sync(ctx); !errors.Is(err, vault.ErrVaultLocked) {
		t.Fatalf("Expected ErrVaultLocked from Sync, got %v", err)
	}
}

func TestOfflineUnlock_ServesPersistedCache(t *testing.T) {
	v, remote, local, _ := registeredVault(t)
	ctx := context.Background()

	if err := v.Add(ctx, "example.com", "alice", "s3cret"); err != nil {
		t.Fatalf("Failed to add credential: %v", err)
	}
	v.Lock()

	// Remote goes away; a fresh session over the same local store still
	// unlocks and reads from the persisted snapshot.
	remote.down = true
	v2 := vault.New(local, remote)
	if err := v2.Unlock(ctx, "hunter2"); err != nil {
		t.Fatalf("Offline unlock failed: %v", err)
	}

	plain, err := v2.Get("example.com", "alice")
	if err != nil {
		t.Fatalf("Failed to read persisted credential offline: %v", err)
	}
	if plain.Password != "s3cret" {
		t.Fatalf("Persisted credential mismatch: %+v", plain)
	}
}

package vault

import "errors"

var (
	// ErrVaultLocked indicates an operation that needs key material was
	// called before a successful Register, Authenticate or Unlock.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrIncorrectPassword indicates the device password failed
	// verification. Fatal to the unlock attempt, retryable by the user.
	ErrIncorrectPassword = errors.New("incorrect device password")

	// ErrStorageUnavailable indicates the local persisted state is missing
	// or unreadable. Surfaced distinctly from password errors so callers
	// can tell "wrong password" apart from "broken install".
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrRemoteUnavailable indicates the remote credential store could not
	// be reached. Aborts writes; reads fall back to the local cache.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrCredentialNotFound is the expected, recoverable miss on
	// get/edit/delete.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists guards add against silent overwrite.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrIdentityExists indicates the public key is already registered
	// with the remote store.
	ErrIdentityExists = errors.New("identity already registered")
)

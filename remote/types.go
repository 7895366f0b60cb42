package remote

import (
	"github.com/srosati/passphrasex/crypto"
	"github.com/srosati/passphrasex/vault"
)

// Subjects of the remote credential store's request/reply contract.
const (
	subjectIdentityCreate    = "passphrasex.identity.create"
	subjectCredentialsList   = "passphrasex.credentials.list"
	subjectCredentialsAdd    = "passphrasex.credentials.add"
	subjectCredentialsUpdate = "passphrasex.credentials.update"
	subjectCredentialsDelete = "passphrasex.credentials.delete"
)

// Error codes the store replies with.
const (
	codeNotFound       = "not_found"
	codeExists         = "exists"
	codeIdentityExists = "identity_exists"
)

// request is the JSON envelope for every store call. The store enforces
// that only the identity named by PublicKey reads or mutates its rows.
type request struct {
	RequestID    string                 `json:"request_id"`
	PublicKey    string                 `json:"public_key"`
	Credential   *vault.Credential      `json:"credential,omitempty"`
	CredentialID string                 `json:"credential_id,omitempty"`
	Password     *crypto.EncryptedValue `json:"password,omitempty"`
	Site         string                 `json:"site,omitempty"`
	Username     string                 `json:"username,omitempty"`
}

// response is the JSON envelope for every store reply.
type response struct {
	OK          bool               `json:"ok"`
	ErrorCode   string             `json:"error_code,omitempty"`
	Error       string             `json:"error,omitempty"`
	Credentials []vault.Credential `json:"credentials,omitempty"`
}

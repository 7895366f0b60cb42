package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// bip32MasterHMACKey is the fixed HMAC key for root key derivation.
// The derivation path is just the root: the left half of
// HMAC-SHA512("Bitcoin seed", seed) is the private key.
var bip32MasterHMACKey = []byte("Bitcoin seed")

// KeyPair is the user's durable identity: an X25519 key pair derived
// deterministically from their seed phrase. The public key is the remote
// store's primary key for the user's credentials. The private key is held
// in memory only for the lifetime of an unlocked session.
type KeyPair struct {
	privateKey [32]byte
	publicKey  [32]byte
}

// DeriveKeyPair derives the identity key pair from a seed phrase.
// Determinism is a hard invariant: the same phrase always reproduces the
// same key pair bit-for-bit, since it is the sole re-authentication
// mechanism.
func DeriveKeyPair(seed SeedPhrase) (*KeyPair, error) {
	seedBytes, err := seed.seed()
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha512.New, bip32MasterHMACKey)
	mac.Write(seedBytes)
	sum := mac.Sum(nil)

	var sk [32]byte
	copy(sk[:], sum[:32])
	return KeyPairFromPrivateKey(sk)
}

// KeyPairFromPrivateKey reconstructs a key pair from an already-recovered
// private key, bypassing mnemonic validation. Used after unlocking local
// storage.
func KeyPairFromPrivateKey(sk [32]byte) (*KeyPair, error) {
	pub, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	kp := &KeyPair{privateKey: sk}
	copy(kp.publicKey[:], pub)
	return kp, nil
}

// PrivateKeyBytes returns a copy of the raw private key for at-rest
// wrapping. Callers must never persist it in plaintext.
func (kp *KeyPair) PrivateKeyBytes() []byte {
	out := make([]byte, 32)
	copy(out, kp.privateKey[:])
	return out
}

// PublicKeyBytes returns a copy of the raw public key.
func (kp *KeyPair) PublicKeyBytes() []byte {
	out := make([]byte, 32)
	copy(out, kp.publicKey[:])
	return out
}

// PublicKey returns the base64url-encoded public key, the user id used
// everywhere outside this package.
func (kp *KeyPair) PublicKey() string {
	return base64.URLEncoding.EncodeToString(kp.publicKey[:])
}

// Zero wipes the private key material. The key pair is unusable afterwards.
func (kp *KeyPair) Zero() {
	for i := range kp.privateKey {
		kp.privateKey[i] = 0
	}
}

// PublicKeyFromBase64 decodes a base64url public key as produced by
// PublicKey.
func PublicKeyFromBase64(pk string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

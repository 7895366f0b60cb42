package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// boxKeyInfo domain-separates the credential box key from any other use
// of the identity's X25519 shared secret.
var boxKeyInfo = []byte("passphrasex.credential-box.v1")

// EncryptedValue is the universal wire/storage representation of an
// encrypted field: base64url ciphertext plus the 24-byte nonce it was
// sealed under.
type EncryptedValue struct {
	Cipher string `json:"cipher" cbor:"cipher"`
	Nonce  string `json:"nonce" cbor:"nonce"`
}

// boxAEAD builds the self-addressed authenticated encryption context for
// a (private, public) pair: the X25519 shared secret of the two halves of
// the identity, stretched through HKDF-SHA256 into an XChaCha20-Poly1305
// key.
func boxAEAD(privateKey, publicKey []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(privateKey, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, boxKeyInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive box key: %w", err)
	}

	return chacha20poly1305.NewX(key)
}

// seal encrypts plaintext under the box for (privateKey, publicKey) with a
// freshly generated nonce. Nonce freshness is enforced here, not by caller
// discipline: every call reads a new nonce from the CSPRNG.
func seal(privateKey, publicKey []byte, plaintext string) (EncryptedValue, error) {
	aead, err := boxAEAD(privateKey, publicKey)
	if err != nil {
		return EncryptedValue{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedValue{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return EncryptedValue{
		Cipher: base64.URLEncoding.EncodeToString(ciphertext),
		Nonce:  base64.URLEncoding.EncodeToString(nonce),
	}, nil
}

// open decrypts a sealed value. Authentication failure is reported as
// ErrDecryptionFailed and must never be coerced into empty data.
func open(privateKey, publicKey []byte, value EncryptedValue) (string, error) {
	aead, err := boxAEAD(privateKey, publicKey)
	if err != nil {
		return "", err
	}

	nonce, err := base64.URLEncoding.DecodeString(value.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return "", ErrDecryptionFailed
	}
	ciphertext, err := base64.URLEncoding.DecodeString(value.Cipher)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// Encrypt seals a credential field under the identity's own key pair.
func (kp *KeyPair) Encrypt(plaintext string) (EncryptedValue, error) {
	return seal(kp.privateKey[:], kp.publicKey[:], plaintext)
}

// Decrypt opens a credential field sealed with Encrypt.
func (kp *KeyPair) Decrypt(value EncryptedValue) (string, error) {
	return open(kp.privateKey[:], kp.publicKey[:], value)
}

// CredentialID derives the deterministic lookup id for a (site, username)
// pair: BLAKE2b-256 keyed by the public key over site || username. The
// same identity always produces the same id for the same pair, so lookup
// needs no server-assigned counter, while distinct identities produce
// distinct ids for identical pairs.
//
// The key is the public half on purpose: anyone holding the public key
// can reproduce the id, which discloses nothing about field contents.
func (kp *KeyPair) CredentialID(site, username string) string {
	h, err := blake2b.New256(kp.publicKey[:])
	if err != nil {
		// blake2b only rejects keys longer than 64 bytes.
		panic(fmt.Sprintf("credential id hash: %v", err))
	}
	h.Write([]byte(site))
	h.Write([]byte(username))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verificationKeyPair is the fixed, publicly-known key pair tokens are
// boxed against. Signing boxes a message between the signer's private key
// and this public key; anyone can open it with the zero secret and the
// signer's public key.
func verificationKeyPair() (secret, public []byte) {
	secret = make([]byte, 32)
	public, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		panic(fmt.Sprintf("verification key derivation: %v", err))
	}
	return secret, public
}

// Sign produces a self-authenticating token over message: a box sealed
// between the signer's private key and the fixed verification key.
func (kp *KeyPair) Sign(message string) (EncryptedValue, error) {
	_, verifyPub := verificationKeyPair()
	return seal(kp.privateKey[:], verifyPub, message)
}

// Verify opens a token produced by Sign against the claimed signer public
// key and returns the signed message. Failure means the token was not
// produced by the holder of that public key.
func Verify(publicKey []byte, token EncryptedValue) (string, error) {
	verifySecret, _ := verificationKeyPair()
	message, err := open(verifySecret, publicKey, token)
	if err != nil {
		return "", ErrInvalidSignature
	}
	return message, nil
}

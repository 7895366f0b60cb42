package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for the device password hash. Memory-hard on
// purpose: this hash doubles as the key material wrapping the private key
// at rest.
const (
	argon2idTime    = 3
	argon2idMemory  = 64 * 1024 // 64 MiB
	argon2idThreads = 4
	argon2idKeyLen  = chacha20poly1305.KeySize
)

const saltSize = 16

// PasswordHash is the Argon2id hash of the device password plus the salt
// it was computed under. Used only for local verification; never
// transmitted.
type PasswordHash struct {
	Hash []byte
	Salt []byte
}

// GenerateSalt generates a fresh random salt. Called once at registration;
// the salt is persisted alongside the hash.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// HashPassword computes the memory-hard hash of the device password.
func HashPassword(password string, salt []byte) PasswordHash {
	return PasswordHash{
		Hash: argon2.IDKey([]byte(password), salt, argon2idTime, argon2idMemory, argon2idThreads, argon2idKeyLen),
		Salt: salt,
	}
}

// Verify recomputes the hash for password and compares in constant time.
func (h PasswordHash) Verify(password string) bool {
	computed := argon2.IDKey([]byte(password), h.Salt, argon2idTime, argon2idMemory, argon2idThreads, argon2idKeyLen)
	return subtle.ConstantTimeCompare(computed, h.Hash) == 1
}

// EncryptAtRest wraps plaintext for local storage under key material
// derived from the password hash. The output is nonce || ciphertext.
// The primitive is AEAD so tampering is detected at unwrap, not returned
// as garbage.
func EncryptAtRest(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// DecryptAtRest unwraps a blob produced by EncryptAtRest. Any failure,
// wrong key material or a corrupted blob, is ErrCorruptKeyStore.
func DecryptAtRest(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(blob) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, ErrCorruptKeyStore
	}

	nonce := blob[:chacha20poly1305.NonceSizeX]
	ciphertext := blob[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorruptKeyStore
	}
	return plaintext, nil
}

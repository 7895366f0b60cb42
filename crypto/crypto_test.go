package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

const testPhrase = "legal winner thank year wave sausage worth useful legal winner thank year wave sausage worth useful legal winner thank year wave sausage worth title"

// testKeyPair derives a key pair from the fixed test phrase
func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()

	seed, err := NewSeedPhrase(testPhrase)
	if err != nil {
		t.Fatalf("Failed to parse test phrase: %v", err)
	}
	kp, err := DeriveKeyPair(seed)
	if err != nil {
		t.Fatalf("Failed to derive key pair: %v", err)
	}
	return kp
}

func TestGenerateSeedPhrase_Valid(t *testing.T) {
	phrase, err := GenerateSeedPhrase()
	if err != nil {
		t.Fatalf("Failed to generate seed phrase: %v", err)
	}

	// A generated phrase must round-trip through validation
	if _, err := NewSeedPhrase(phrase.Phrase()); err != nil {
		t.Fatalf("Generated phrase failed validation: %v", err)
	}
}

func TestNewSeedPhrase_Invalid(t *testing.T) {
	_, err := NewSeedPhrase("definitely not a valid mnemonic sentence at all")
	if !errors.Is(err, ErrInvalidSeedPhrase) {
		t.Fatalf("Expected ErrInvalidSeedPhrase, got %v", err)
	}
}

func TestDeriveKeyPair_Deterministic(t *testing.T) {
	first := testKeyPair(t)
	second := testKeyPair(t)

	if !bytes.Equal(first.PrivateKeyBytes(), second.PrivateKeyBytes()) {
		t.Fatal("Private keys differ across derivations of the same phrase")
	}
	if first.PublicKey() != second.PublicKey() {
		t.Fatal("Public keys differ across derivations of the same phrase")
	}
}

func TestDeriveKeyPair_DistinctPhrases(t *testing.T) {
	first := testKeyPair(t)

	phrase, err := GenerateSeedPhrase()
	if err != nil {
		t.Fatalf("Failed to generate seed phrase: %v", err)
	}
	seed, err := NewSeedPhrase(phrase.Phrase())
	if err != nil {
		t.Fatalf("Failed to validate generated phrase: %v", err)
	}
	second, err := DeriveKeyPair(seed)
	if err != nil {
		t.Fatalf("Failed to derive key pair: %v", err)
	}

	if first.PublicKey() == second.PublicKey() {
		t.Fatal("Distinct phrases produced the same identity")
	}
}

func TestKeyPairFromPrivateKey_MatchesDerivation(t *testing.T) {
	derived := testKeyPair(t)

	var sk [32]byte
	copy(sk[:], derived.PrivateKeyBytes())
	restored, err := KeyPairFromPrivateKey(sk)
	if err != nil {
		t.Fatalf("Failed to restore key pair: %v", err)
	}

	if restored.PublicKey() != derived.PublicKey() {
		t.Fatal("Restored key pair does not match derivation")
	}
}

func TestEncrypt_RoundTrip(t *testing.T) {
	kp := testKeyPair(t)

	value, err := kp.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	plaintext, err := kp.Decrypt(value)
	if err != nil {
		t.Fatalf("Failed to decrypt: %v", err)
	}
	if plaintext != "hunter2" {
		t.Fatalf("Round trip mismatch: got %q", plaintext)
	}
}

func TestEncrypt_FreshNonces(t *testing.T) {
	kp := testKeyPair(t)

	first, err := kp.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	second, err := kp.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if first.Nonce == second.Nonce {
		t.Fatal("Two encryptions reused a nonce")
	}
	if first.Cipher == second.Cipher {
		t.Fatal("Two encryptions produced identical ciphertext")
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	kp := testKeyPair(t)

	value, err := kp.Encrypt("secret")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	raw, err := base64.URLEncoding.DecodeString(value.Cipher)
	if err != nil {
		t.Fatalf("Failed to decode ciphertext: %v", err)
	}
	raw[0] ^= 0x01
	tampered := value
	tampered.Cipher = base64.URLEncoding.EncodeToString(raw)
	if _, err := kp.Decrypt(tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Expected ErrDecryptionFailed for tampered ciphertext, got %v", err)
	}

	garbled := value
	garbled.Nonce = "not base64!"
	if _, err := kp.Decrypt(garbled); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Expected ErrDecryptionFailed for corrupt nonce, got %v", err)
	}
}

func TestCredentialID_Deterministic(t *testing.T) {
	kp := testKeyPair(t)

	first := kp.CredentialID("example.com", "alice")
	second := kp.CredentialID("example.com", "alice")
	if first != second {
		t.Fatal("Credential id is not deterministic")
	}

	if kp.CredentialID("example.com", "bob") == first {
		t.Fatal("Different usernames produced the same credential id")
	}
	if kp.CredentialID("example.org", "alice") == first {
		t.Fatal("Different sites produced the same credential id")
	}
}

func TestCredentialID_DistinctIdentities(t *testing.T) {
	first := testKeyPair(t)

	phrase, err := GenerateSeedPhrase()
	if err != nil {
		t.Fatalf("Failed to generate seed phrase: %v", err)
	}
	seed, _ := NewSeedPhrase(phrase.Phrase())
	second, err := DeriveKeyPair(seed)
	if err != nil {
		t.Fatalf("Failed to derive key pair: %v", err)
	}

	if first.CredentialID("example.com", "alice") == second.CredentialID("example.com", "alice") {
		t.Fatal("Two identities produced the same credential id for the same site/user")
	}
}

func TestSign_Verify(t *testing.T) {
	kp := testKeyPair(t)

	token, err := kp.Sign("challenge-123")
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	message, err := Verify(kp.PublicKeyBytes(), token)
	if err != nil {
		t.Fatalf("Failed to verify: %v", err)
	}
	if message != "challenge-123" {
		t.Fatalf("Verified message mismatch: got %q", message)
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	kp := testKeyPair(t)

	token, err := kp.Sign("challenge-123")
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	phrase, _ := GenerateSeedPhrase()
	seed, _ := NewSeedPhrase(phrase.Phrase())
	other, err := DeriveKeyPair(seed)
	if err != nil {
		t.Fatalf("Failed to derive key pair: %v", err)
	}

	if _, err := Verify(other.PublicKeyBytes(), token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Expected ErrInvalidSignature, got %v", err)
	}
}

func TestHashPassword_Verify(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("Failed to generate salt: %v", err)
	}

	hash := HashPassword("hunter2", salt)
	if !hash.Verify("hunter2") {
		t.Fatal("Correct password failed verification")
	}
	if hash.Verify("wrong") {
		t.Fatal("Wrong password passed verification")
	}
}

func TestAtRest_RoundTrip(t *testing.T) {
	salt, _ := GenerateSalt()
	hash := HashPassword("hunter2", salt)

	plaintext := []byte("32 bytes of private key material")
	blob, err := EncryptAtRest(hash.Hash, plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt at rest: %v", err)
	}

	recovered, err := DecryptAtRest(hash.Hash, blob)
	if err != nil {
		t.Fatalf("Failed to decrypt at rest: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatal("At-rest round trip mismatch")
	}
}

func TestAtRest_TamperDetected(t *testing.T) {
	salt, _ := GenerateSalt()
	hash := HashPassword("hunter2", salt)

	blob, err := EncryptAtRest(hash.Hash, []byte("key material"))
	if err != nil {
		t.Fatalf("Failed to encrypt at rest: %v", err)
	}

	blob[len(blob)-1] ^= 0x01
	if _, err := DecryptAtRest(hash.Hash, blob); !errors.Is(err, ErrCorruptKeyStore) {
		t.Fatalf("Expected ErrCorruptKeyStore for tampered blob, got %v", err)
	}

	wrongKey := HashPassword("different", salt)
	blob[len(blob)-1] ^= 0x01
	if _, err := DecryptAtRest(wrongKey.Hash, blob); !errors.Is(err, ErrCorruptKeyStore) {
		t.Fatalf("Expected ErrCorruptKeyStore for wrong key, got %v", err)
	}

	if _, err := DecryptAtRest(hash.Hash, []byte("short")); !errors.Is(err, ErrCorruptKeyStore) {
		t.Fatalf("Expected ErrCorruptKeyStore for truncated blob, got %v", err)
	}
}

package crypto

import "errors"

var (
	// ErrInvalidSeedPhrase indicates the mnemonic failed wordlist or
	// checksum validation. Fatal to the calling operation.
	ErrInvalidSeedPhrase = errors.New("invalid seed phrase")

	// ErrDecryptionFailed indicates AEAD authentication failed: tampered
	// ciphertext, wrong key, or corrupted nonce.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidSignature indicates a token could not be opened against
	// the claimed public key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCorruptKeyStore indicates the at-rest private key wrap could not
	// be opened. Distinct from a wrong password, which is caught by the
	// password hash check before the wrap is touched.
	ErrCorruptKeyStore = errors.New("corrupt or wrong key store")
)

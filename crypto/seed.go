// Package crypto implements the cryptographic core of the vault: the
// deterministic identity derived from a BIP-39 seed phrase, per-field
// authenticated encryption under that identity, deterministic credential
// id derivation, and the symmetric guard protecting key material at rest.
package crypto

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// seedEntropyBits produces a 24-word mnemonic.
const seedEntropyBits = 256

// SeedPhrase is a validated BIP-39 mnemonic sentence. It is the only way
// to reconstruct the user's identity; there is no escrow.
type SeedPhrase struct {
	phrase string
}

// GenerateSeedPhrase creates a fresh random mnemonic from a CSPRNG.
// The phrase must be shown to the user exactly once; losing it is
// unrecoverable.
func GenerateSeedPhrase() (SeedPhrase, error) {
	entropy, err := bip39.NewEntropy(seedEntropyBits)
	if err != nil {
		return SeedPhrase{}, fmt.Errorf("failed to generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return SeedPhrase{}, fmt.Errorf("failed to build mnemonic: %w", err)
	}
	return SeedPhrase{phrase: phrase}, nil
}

// NewSeedPhrase validates a user-supplied mnemonic. There is no partial
// validity: either the whole sentence passes wordlist and checksum
// validation or ErrInvalidSeedPhrase is returned.
func NewSeedPhrase(phrase string) (SeedPhrase, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return SeedPhrase{}, ErrInvalidSeedPhrase
	}
	return SeedPhrase{phrase: phrase}, nil
}

// Phrase returns the mnemonic sentence.
func (s SeedPhrase) Phrase() string {
	return s.phrase
}

// seed stretches the mnemonic into the BIP-39 seed value. The passphrase
// component is fixed empty; changing it would change every derived key.
func (s SeedPhrase) seed() ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(s.phrase, "")
	if err != nil {
		return nil, ErrInvalidSeedPhrase
	}
	return seed, nil
}

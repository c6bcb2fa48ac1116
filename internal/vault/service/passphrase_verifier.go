package service

import (
	"bytes"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/capvault/internal/errors"
)

// PassphraseVerifier hashes the vault passphrase with Argon2id. The hash is stored in the
// keyring so Unlock can tell a wrong passphrase apart from a damaged wrapped key.
type PassphraseVerifier struct {
	hasher *pwdhash.PasswordHasher
}

// NewPassphraseVerifier creates a verifier using the Moderate policy.
func NewPassphraseVerifier() *PassphraseVerifier {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyModerate),
	)
	if err != nil {
		// This should never happen with valid policy
		panic(err)
	}
	return &PassphraseVerifier{hasher: hasher}
}

// NewInteractivePassphraseVerifier creates a verifier using the cheaper Interactive policy.
func NewInteractivePassphraseVerifier() *PassphraseVerifier {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyInteractive),
	)
	if err != nil {
		panic(err)
	}
	return &PassphraseVerifier{hasher: hasher}
}

// Hash returns the encoded Argon2id hash of passphrase. pwdhash wipes the slice it is
// given, so it hashes a copy and passphrase stays usable by the caller.
func (v *PassphraseVerifier) Hash(passphrase []byte) (string, error) {
	hash, err := v.hasher.Hash(bytes.Clone(passphrase))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash passphrase")
	}
	return hash, nil
}

// Verify performs a constant-time comparison of passphrase against hash. Like Hash it
// leaves passphrase untouched.
func (v *PassphraseVerifier) Verify(passphrase []byte, hash string) bool {
	ok, err := v.hasher.Verify(bytes.Clone(passphrase), hash)
	if err != nil {
		return false
	}
	return ok
}

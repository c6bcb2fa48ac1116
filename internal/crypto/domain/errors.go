package domain

import (
	"github.com/allisson/capvault/internal/errors"
)

// Cryptographic primitive errors. Callers in the vault translate these into the
// vault taxonomy (corrupt record, wrong passphrase); the raw cause is never shown
// to the user.
var (
	// ErrUnsupportedAlgorithm indicates the requested AEAD is unknown.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates a DEK that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrDecryptionFailed indicates authentication failed: wrong key, tampered ciphertext,
	// tag, nonce or associated data. The specific cause is not disclosed.
	ErrDecryptionFailed = errors.Wrap(errors.ErrIntegrity, "decryption failed")

	// ErrInvalidPublicKey indicates a recipient string that is not an age X25519 key.
	ErrInvalidPublicKey = errors.Wrap(errors.ErrInvalidInput, "invalid public key")

	// ErrUnwrapFailed indicates a wrapped key could not be opened with the given secret.
	ErrUnwrapFailed = errors.Wrap(errors.ErrUnauthorized, "unable to unwrap key")
)

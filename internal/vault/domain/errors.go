package domain

import (
	"github.com/allisson/capvault/internal/errors"
)

// Vault and key manager errors. None of them is retried automatically: each one needs a
// user action (init, unlock, re-enter a credential) and carries a sentinel the HTTP layer
// and the assistant map to an actionable message.
var (
	// ErrLocked indicates the private key is not in memory.
	ErrLocked = errors.Wrap(errors.ErrLocked, "vault is locked")

	// ErrKeyMissing indicates no keyring exists yet; run init.
	ErrKeyMissing = errors.Wrap(errors.ErrNotFound, "vault keypair missing")

	// ErrCorrupt indicates a credential record failed authentication. Only that credential
	// is affected; its provider is flagged for re-entry.
	ErrCorrupt = errors.Wrap(errors.ErrIntegrity, "credential record is corrupt")

	// ErrEncryptionFailure indicates envelope encryption could not complete.
	ErrEncryptionFailure = errors.New("credential encryption failed")

	// ErrWrongPassphrase indicates the passphrase does not match the keyring.
	ErrWrongPassphrase = errors.Wrap(errors.ErrUnauthorized, "wrong passphrase")

	// ErrKeyRingCorrupt indicates the passphrase verified but the wrapped private key does
	// not open. This is unrecoverable without a backup.
	ErrKeyRingCorrupt = errors.Wrap(errors.ErrIntegrity, "keyring is corrupt")

	// ErrKeyRingExists indicates init was called on an initialized vault.
	ErrKeyRingExists = errors.Wrap(errors.ErrConflict, "keyring already exists")

	// ErrUnlockThrottled indicates too many unlock attempts in the current window.
	ErrUnlockThrottled = errors.Wrap(errors.ErrTooManyRequests, "too many unlock attempts")

	// ErrCredentialNotFound indicates no record is stored for the provider.
	ErrCredentialNotFound = errors.Wrap(errors.ErrNotFound, "credential not found")

	// ErrSessionClosed indicates a credential session was used after it ended.
	ErrSessionClosed = errors.New("credential session closed")

	// ErrInvalidProviderID indicates a provider id that cannot be used as a record key.
	ErrInvalidProviderID = errors.Wrap(errors.ErrInvalidInput, "invalid provider id")

	// ErrEmptyPassphrase indicates an empty passphrase was supplied.
	ErrEmptyPassphrase = errors.Wrap(errors.ErrInvalidInput, "passphrase must not be empty")
	// ErrEmptyCredential indicates an attempt to store an empty credential.
	ErrEmptyCredential = errors.Wrap(errors.ErrInvalidInput, "credential must not be empty")
)

var (
	// ErrKeyUnavailable indicates the key service wrapping the private key cannot be reached.
	ErrKeyUnavailable = errors.Wrap(errors.ErrUnavailable, "key service unavailable")
	// ErrWrapModeMismatch indicates the keyring was wrapped with another mode than configured.
	ErrWrapModeMismatch = errors.Wrap(errors.ErrInvalidInput, "keyring wrap mode does not match configuration")
)

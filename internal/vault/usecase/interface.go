// Package usecase implements the vault key manager and the credential vault.
//
// The KeyManager owns the asymmetric keypair: it initializes, unlocks, locks and rotates
// it, and keeps the private key in protected memory while unlocked. The VaultUseCase
// encrypts provider credentials to the public key and decrypts them, with the private
// key, into request-scoped CredentialSessions.
package usecase

import (
	"context"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Store persists the keyring and credential records.
type Store interface {
	// GetKeyRing returns the live keyring or ErrKeyMissing.
	GetKeyRing(ctx context.Context) (*vaultDomain.KeyRing, error)
	// CreateKeyRing stores the first keyring or fails with ErrKeyRingExists.
	CreateKeyRing(ctx context.Context, keyRing *vaultDomain.KeyRing) error
	// GetRecord returns the record of providerID, ErrCredentialNotFound or ErrCorrupt.
	GetRecord(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error)
	// ListRecords returns every record sorted by provider. Unreadable records come back
	// with only ProviderID set.
	ListRecords(ctx context.Context) ([]*vaultDomain.CredentialRecord, error)
	// SaveRecord replaces the record of record.ProviderID.
	SaveRecord(ctx context.Context, record *vaultDomain.CredentialRecord) error
	// DeleteRecord removes the record of providerID or fails with ErrCredentialNotFound.
	DeleteRecord(ctx context.Context, providerID string) error
	// Publish atomically replaces the keyring and the complete record set.
	Publish(ctx context.Context, keyRing *vaultDomain.KeyRing, records []*vaultDomain.CredentialRecord) error
}

// PassphraseVerifier hashes and verifies the vault passphrase.
type PassphraseVerifier interface {
	Hash(passphrase []byte) (string, error)
	Verify(passphrase []byte, hash string) bool
}

// KeyManager manages the lifecycle of the vault keypair.
type KeyManager interface {
	// Init creates the keypair on first run and leaves the vault unlocked.
	Init(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error)
	// Unlock loads the private key into protected memory.
	Unlock(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error)
	// Lock purges the private key from memory. It is idempotent.
	Lock()
	// Rotate replaces the keypair and re-encrypts every record under the new public key.
	// An empty newPassphrase keeps the current one.
	Rotate(ctx context.Context, passphrase, newPassphrase []byte) (*cryptoDomain.KeyPair, error)
	// State reports the current lifecycle state.
	State() vaultDomain.KeyState
	// KeyPair returns the public half of the live keyring.
	KeyPair(ctx context.Context) (*cryptoDomain.KeyPair, error)
}

// VaultUseCase encrypts, stores and decrypts provider credentials.
type VaultUseCase interface {
	// Encrypt seals plaintext for providerID without persisting it. It only needs the
	// public key, so it works while the vault is locked.
	Encrypt(ctx context.Context, providerID string, plaintext []byte) (*vaultDomain.CredentialRecord, error)
	// Decrypt opens record into a new CredentialSession. The caller must Close it.
	Decrypt(ctx context.Context, record *vaultDomain.CredentialRecord) (*vaultDomain.CredentialSession, error)
	// Store encrypts and persists plaintext for providerID, replacing any previous record.
	// plaintext is zeroed before Store returns.
	Store(ctx context.Context, providerID string, plaintext []byte) (*vaultDomain.CredentialInfo, error)
	// Delete removes the credential of providerID.
	Delete(ctx context.Context, providerID string) error
	// List returns metadata of every stored credential.
	List(ctx context.Context) ([]vaultDomain.CredentialInfo, error)
	// Get returns the encrypted record of providerID.
	Get(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error)
	// WithCredential decrypts the credential of providerID and lends the session to fn.
	// The session is closed on every exit path, including panics and cancellation of ctx.
	WithCredential(ctx context.Context, providerID string, fn func(ctx context.Context, session *vaultDomain.CredentialSession) error) error
	// NeedsReentry lists providers whose stored credential failed verification.
	NeedsReentry() []string
	// LiveSessions returns the number of credential sessions not yet closed.
	LiveSessions() int
}

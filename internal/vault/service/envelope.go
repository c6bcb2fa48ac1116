// Package service implements envelope encryption of credential records.
package service

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"

	"github.com/allisson/capvault/internal/clock"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	cryptoService "github.com/allisson/capvault/internal/crypto/service"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Envelope seals credentials under a fresh DEK per record and seals the DEK to the
// keyring public key.
type Envelope struct {
	aeadManager cryptoService.AEADManager
	sealer      cryptoService.Sealer
	algorithm   cryptoDomain.Algorithm
	clock       clock.Clock
}

// NewEnvelope creates an Envelope that encrypts new records with algorithm.
func NewEnvelope(
	aeadManager cryptoService.AEADManager,
	sealer cryptoService.Sealer,
	algorithm cryptoDomain.Algorithm,
	clk clock.Clock,
) *Envelope {
	return &Envelope{aeadManager: aeadManager, sealer: sealer, algorithm: algorithm, clock: clk}
}

// Encrypt builds a new record for providerID at version. plaintext is not modified.
func (e *Envelope) Encrypt(
	providerID string,
	version int,
	plaintext []byte,
	keyPair cryptoDomain.KeyPair,
) (*vaultDomain.CredentialRecord, error) {
	dek := make([]byte, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(dek)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrEncryptionFailure, err)
	}

	record := &vaultDomain.CredentialRecord{
		ID:         uuid.Must(uuid.NewV7()),
		ProviderID: providerID,
		Algorithm:  e.algorithm,
		KeyID:      keyPair.KeyID,
		Version:    version,
		CreatedAt:  e.clock.Now().UTC(),
	}

	cipher, err := e.aeadManager.CreateCipher(dek, e.algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrEncryptionFailure, err)
	}

	sealed, nonce, err := cipher.Encrypt(plaintext, record.AAD())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrEncryptionFailure, err)
	}
	split := len(sealed) - cipher.Overhead()
	record.Ciphertext = sealed[:split:split]
	record.Tag = sealed[split:]
	record.Nonce = nonce

	record.WrappedKey, err = e.sealer.Seal(dek, keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrEncryptionFailure, err)
	}

	return record, nil
}

// Decrypt opens record with privateKey. Every failure, whatever the tampered field, is
// reported as ErrCorrupt; no partial plaintext is ever returned.
func (e *Envelope) Decrypt(record *vaultDomain.CredentialRecord, privateKey []byte) ([]byte, error) {
	if len(record.Tag) != cryptoDomain.TagSize {
		return nil, fmt.Errorf("%w: bad tag length", vaultDomain.ErrCorrupt)
	}
	alg, err := cryptoDomain.ParseAlgorithm(string(record.Algorithm))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrCorrupt, err)
	}

	dek, err := e.sealer.Open(record.WrappedKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wrapped key", vaultDomain.ErrCorrupt)
	}
	defer cryptoDomain.Zero(dek)

	cipher, err := e.aeadManager.CreateCipher(dek, alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vaultDomain.ErrCorrupt, err)
	}

	sealed := make([]byte, 0, len(record.Ciphertext)+len(record.Tag))
	sealed = append(sealed, record.Ciphertext...)
	sealed = append(sealed, record.Tag...)

	plaintext, err := cipher.Decrypt(sealed, record.Nonce, record.AAD())
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", vaultDomain.ErrCorrupt)
	}
	return plaintext, nil
}

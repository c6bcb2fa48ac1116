package domain

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
)

var providerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// aadPrefix versions the associated data layout.
const aadPrefix = "capvault/credential/v1"

// CredentialRecord is one envelope-encrypted provider credential. No field ever holds
// plaintext: the payload is sealed under a per-record DEK and the DEK is sealed to the
// keyring public key identified by KeyID.
type CredentialRecord struct {
	ID         uuid.UUID
	ProviderID string
	Algorithm  cryptoDomain.Algorithm
	KeyID      string
	Version    int
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
	CreatedAt  time.Time
}

// AAD returns the canonical metadata bound into the AEAD tag. Changing any of these
// fields makes the record fail authentication.
func (r *CredentialRecord) AAD() []byte {
	b := make([]byte, 0, 96)
	b = append(b, aadPrefix...)
	for _, field := range []string{string(r.Algorithm), r.ProviderID, r.KeyID, strconv.Itoa(r.Version)} {
		b = append(b, 0)
		b = append(b, field...)
	}
	return b
}

// Info returns the record metadata, safe to list and log.
func (r *CredentialRecord) Info() CredentialInfo {
	return CredentialInfo{
		ProviderID: r.ProviderID,
		Algorithm:  r.Algorithm,
		KeyID:      r.KeyID,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
	}
}

// CredentialInfo is record metadata without any encrypted material.
type CredentialInfo struct {
	ProviderID   string                 `json:"provider_id"`
	Algorithm    cryptoDomain.Algorithm `json:"algorithm"`
	KeyID        string                 `json:"key_id"`
	Version      int                    `json:"version"`
	CreatedAt    time.Time              `json:"created_at"`
	NeedsReentry bool                   `json:"needs_reentry"`
}

// ValidateProviderID checks that id is usable as a record key and file name.
func ValidateProviderID(id string) error {
	if !providerIDPattern.MatchString(id) {
		return ErrInvalidProviderID
	}
	return nil
}

package dto

import (
	"time"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// KeyStateResponse reports the key manager state after unlock or lock.
type KeyStateResponse struct {
	State     string `json:"state"`
	KeyID     string `json:"key_id,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// MapKeyState maps the key manager state and keypair to a response.
func MapKeyState(state vaultDomain.KeyState, keyPair *cryptoDomain.KeyPair) KeyStateResponse {
	response := KeyStateResponse{State: state.String()}
	if keyPair != nil {
		response.KeyID = keyPair.KeyID
		response.PublicKey = keyPair.PublicKey
	}
	return response
}

// CredentialResponse is the metadata of one stored credential. It never carries the
// credential itself.
type CredentialResponse struct {
	ProviderID   string    `json:"provider_id"`
	Algorithm    string    `json:"algorithm"`
	KeyID        string    `json:"key_id"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	NeedsReentry bool      `json:"needs_reentry"`
}

// MapCredentialInfo maps credential metadata to a response.
func MapCredentialInfo(info vaultDomain.CredentialInfo) CredentialResponse {
	return CredentialResponse{
		ProviderID:   info.ProviderID,
		Algorithm:    string(info.Algorithm),
		KeyID:        info.KeyID,
		Version:      info.Version,
		CreatedAt:    info.CreatedAt,
		NeedsReentry: info.NeedsReentry,
	}
}

// ListCredentialsResponse lists stored credentials.
type ListCredentialsResponse struct {
	Data []CredentialResponse `json:"data"`
}

// MapCredentialInfos maps a credential list to a response.
func MapCredentialInfos(infos []vaultDomain.CredentialInfo) ListCredentialsResponse {
	data := make([]CredentialResponse, 0, len(infos))
	for _, info := range infos {
		data = append(data, MapCredentialInfo(info))
	}
	return ListCredentialsResponse{Data: data}
}

// Package dto provides data transfer objects for the vault HTTP API.
package dto

import (
	validation "github.com/jellydator/validation"
)

// UnlockRequest carries the vault passphrase, base64 encoded in JSON.
type UnlockRequest struct {
	Passphrase []byte `json:"passphrase"`
}

// Validate checks if the unlock request is valid.
func (r *UnlockRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Passphrase, validation.Required),
	)
}

// StoreCredentialRequest carries a provider credential, base64 encoded in JSON. The
// provider id is taken from the URL.
type StoreCredentialRequest struct {
	Value []byte `json:"value"`
}

// Validate checks if the store credential request is valid.
func (r *StoreCredentialRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Value,
			validation.Required,
			validation.Length(1, 64*1024),
		),
	)
}

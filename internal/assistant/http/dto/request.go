// Package dto provides data transfer objects for the assistant HTTP API.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/capvault/internal/validation"
)

// AskRequest is one user input. Requests that share a ConversationID share the
// conversation state, such as research mode.
type AskRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

// Validate checks if the ask request is valid.
func (r *AskRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Message,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, 32*1024),
		),
		validation.Field(&r.ConversationID,
			validation.Length(0, 128),
			customValidation.Token,
		),
	)
}

// Package domain defines the dispatch contract between the supervisor and capabilities:
// the invocation document, its result and capability health.
package domain

import (
	"time"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Payload is the user input handed to a capability.
type Payload struct {
	Message string            // Free text, or the whole command line for explicit commands
	Args    string            // Command arguments; empty for free text
	Context map[string]string // Conversation context, e.g. research mode
}

// Invocation is one attempt to run a capability. Skills and workers share it; Kind tells
// the capability which contract it is being called under.
type Invocation struct {
	Kind       capabilityDomain.Kind
	Capability string
	Attempt    int
	Payload    Payload

	// Credential is nil unless the capability requires one. It is owned by the dispatch
	// and is closed when the dispatch ends.
	Credential *vaultDomain.CredentialSession
}

// Result is the answer of a successful dispatch.
type Result struct {
	Capability string                `json:"capability"`
	Kind       capabilityDomain.Kind `json:"kind"`
	Text       string                `json:"text"`
	Attempts   int                   `json:"attempts"`
	Duration   time.Duration         `json:"duration"`
}

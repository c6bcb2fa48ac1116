package domain

import (
	"fmt"
	"strings"
	"time"

	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Status summarizes the vault, the stored credentials and the registry.
type Status struct {
	KeyState        string                       `json:"key_state"`
	Initialized     bool                         `json:"initialized"`
	KeyID           string                       `json:"key_id,omitempty"`
	Credentials     []vaultDomain.CredentialInfo `json:"credentials"`
	NeedsReentry    []string                     `json:"needs_reentry"`
	LiveSessions    int                          `json:"live_sessions"`
	Capabilities    int                          `json:"capabilities"`
	RegistryVersion uint64                       `json:"registry_version"`
	RegistryLoaded  time.Time                    `json:"registry_loaded_at"`
	RoutingVersion  uint64                       `json:"routing_version"`
	DefaultTarget   string                       `json:"default_capability,omitempty"`
}

// Render formats the status for a terminal.
func (s *Status) Render() string {
	var b strings.Builder

	switch {
	case !s.Initialized:
		b.WriteString("Vault: not initialized (run capvault init)\n")
	default:
		fmt.Fprintf(&b, "Vault: %s (key %s)\n", s.KeyState, s.KeyID)
	}

	fmt.Fprintf(&b, "Credentials: %d stored", len(s.Credentials))
	if len(s.Credentials) > 0 {
		providers := make([]string, len(s.Credentials))
		for i, c := range s.Credentials {
			providers[i] = c.ProviderID
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(providers, ", "))
	}
	b.WriteString("\n")
	if len(s.NeedsReentry) > 0 {
		fmt.Fprintf(&b, "Needs re-entry: %s\n", strings.Join(s.NeedsReentry, ", "))
	}

	fmt.Fprintf(&b, "Capabilities: %d (registry v%d)\n", s.Capabilities, s.RegistryVersion)
	if s.DefaultTarget != "" {
		fmt.Fprintf(&b, "Default capability: %s\n", s.DefaultTarget)
	}
	return b.String()
}

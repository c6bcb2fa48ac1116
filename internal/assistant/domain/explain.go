package domain

import (
	"errors"
	"fmt"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	routerDomain "github.com/allisson/capvault/internal/router/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Explain turns an error into a message that tells the user what to do next. It never
// includes credential material: none of the errors it receives carry any.
func Explain(err error) string {
	var unknown *routerDomain.UnknownCommandError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return fmt.Sprintf("Unknown command /%s. Type /help for the list of commands.", unknown.Command)
	case errors.Is(err, vaultDomain.ErrLocked):
		return "The vault is locked. Unlock it with your passphrase and try again."
	case errors.Is(err, vaultDomain.ErrKeyMissing):
		return "The vault has no keypair yet. Run `capvault init` first."
	case errors.Is(err, vaultDomain.ErrKeyRingCorrupt):
		return "The vault keyring is corrupt and cannot be opened. Restore the vault directory from a backup."
	case errors.Is(err, vaultDomain.ErrWrongPassphrase):
		return "Wrong passphrase."
	case errors.Is(err, vaultDomain.ErrUnlockThrottled):
		return "Too many unlock attempts. Wait a minute before trying again."
	case errors.Is(err, vaultDomain.ErrKeyUnavailable):
		return "The key service that protects the vault cannot be reached. Check KMS_KEY_URI and connectivity."
	case errors.Is(err, vaultDomain.ErrCorrupt):
		return "A stored credential failed verification and was flagged for re-entry. " +
			"Run /status to see which one, then store it again with `capvault set-credential`."
	case errors.Is(err, vaultDomain.ErrCredentialNotFound):
		return "This capability needs a credential that is not stored yet. " +
			"Add it with `capvault set-credential <provider>`."
	case errors.Is(err, capabilityDomain.ErrCapabilityNotFound):
		return "That capability is not registered. Type /help for the available commands."
	case errors.Is(err, routerDomain.ErrNoDefaultRoute):
		return "No default capability is configured. Set DEFAULT_CAPABILITY or add a default rule to the routing table."
	case errors.Is(err, orchestratorDomain.ErrTimeout):
		return "The capability did not answer in time. Try again later."
	case errors.Is(err, orchestratorDomain.ErrUnsupportedTarget):
		return "The capability is misconfigured: its invocation target is not supported."
	case errors.Is(err, orchestratorDomain.ErrPermanentFailure):
		return fmt.Sprintf("The capability failed: %v", err)
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}

package domain

import (
	"github.com/allisson/capvault/internal/errors"
)

// Capability registry errors.
var (
	// ErrCapabilityNotFound indicates no capability is registered under the name or alias.
	ErrCapabilityNotFound = errors.Wrap(errors.ErrNotFound, "capability not found")

	// ErrInvalidManifest indicates a manifest that does not parse or validate. The
	// previously active set stays in place.
	ErrInvalidManifest = errors.Wrap(errors.ErrInvalidInput, "invalid capability manifest")

	// ErrDuplicateCapability indicates two descriptors claim the same name or alias.
	ErrDuplicateCapability = errors.Wrap(errors.ErrConflict, "duplicate capability name")
)

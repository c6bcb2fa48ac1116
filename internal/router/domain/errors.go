package domain

import (
	"fmt"

	"github.com/allisson/capvault/internal/errors"
)

// Router errors.
var (
	// ErrUnknownCommand indicates an explicit command no rule or capability answers to.
	// It is rendered as help text, never as an internal error.
	ErrUnknownCommand = errors.Wrap(errors.ErrNotFound, "unknown command")

	// ErrNoDefaultRoute indicates free text arrived and no default capability is configured.
	ErrNoDefaultRoute = errors.Wrap(errors.ErrNotFound, "no default capability configured")

	// ErrInvalidRoutingTable indicates a routing table that does not parse or validate.
	// The previously active table stays in place.
	ErrInvalidRoutingTable = errors.Wrap(errors.ErrInvalidInput, "invalid routing table")
)

// UnknownCommandError names the command that did not resolve.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %s%s", CommandPrefix, e.Command)
}

// Unwrap makes errors.Is(err, ErrUnknownCommand) hold.
func (e *UnknownCommandError) Unwrap() error {
	return ErrUnknownCommand
}

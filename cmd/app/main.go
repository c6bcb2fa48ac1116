// Package main provides the entry point for the capvault CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// Build-time variables set via ldflags
var version = "dev"

// Exit codes.
const (
	exitFailure        = 1
	exitKeyRingCorrupt = 3
)

func main() {
	cmd := &cli.Command{
		Name:     "capvault",
		Usage:    "Local assistant that routes requests to capabilities and keeps their credentials encrypted",
		Version:  version,
		Commands: getCommands(version),
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, assistantDomain.Explain(err))
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, vaultDomain.ErrKeyRingCorrupt) {
		return exitKeyRingCorrupt
	}
	return exitFailure
}

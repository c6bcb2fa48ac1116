package main

import (
	"github.com/urfave/cli/v3"

	"github.com/allisson/capvault/internal/app"
	"github.com/allisson/capvault/internal/config"
)

func getCommands(version string) []*cli.Command {
	cmds := []*cli.Command{}
	cmds = append(cmds, getSystemCommands(version)...)
	cmds = append(cmds, getVaultCommands()...)
	cmds = append(cmds, getAssistantCommands()...)
	return cmds
}

// newContainer loads and validates the configuration.
func newContainer() (*app.Container, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.NewContainer(cfg), nil
}

var formatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Value:   "text",
	Usage:   "Output format: 'text' or 'json'",
}

package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/capvault/cmd/app/commands"
	"github.com/allisson/capvault/internal/database"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "serve",
			Usage: "Start the local HTTP API",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				return commands.RunServer(ctx, container, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations for VAULT_STORE=sql",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				cfg := container.Config()
				return commands.RunMigrations(container.Logger(), database.Config{
					Driver:             cfg.DBDriver,
					ConnectionString:   cfg.DBConnectionString,
					MaxOpenConnections: cfg.DBMaxOpenConnections,
					MaxIdleConnections: cfg.DBMaxIdleConnections,
					ConnMaxLifetime:    cfg.DBConnMaxLifetime,
				})
			},
		},
		{
			Name:  "capabilities",
			Usage: "Load the capability manifest and list every capability",
			Flags: []cli.Flag{formatFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCapabilities(
					ctx,
					container.Registry(),
					commands.DefaultIO(),
					cmd.String("format"),
				)
			},
		},
	}
}

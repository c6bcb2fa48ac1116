package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/allisson/capvault/cmd/app/commands"
)

var errMissingProvider = errors.New("a provider id is required, e.g. `capvault set-credential openai`")

func getVaultCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "Create the vault keypair and protect it with a passphrase",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				keyManager, err := container.KeyManager()
				if err != nil {
					return err
				}
				return commands.RunInit(ctx, keyManager, container.Logger(), commands.DefaultIO())
			},
		},
		{
			Name:  "unlock-check",
			Usage: "Verify the vault passphrase",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				keyManager, err := container.KeyManager()
				if err != nil {
					return err
				}
				return commands.RunUnlockCheck(ctx, keyManager, container.Logger(), commands.DefaultIO())
			},
		},
		{
			Name:      "set-credential",
			Usage:     "Encrypt and store the credential of a provider (read without echo)",
			ArgsUsage: "<provider>",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				providerID := cmd.Args().First()
				if providerID == "" {
					return errMissingProvider
				}
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				vaultUseCase, err := container.VaultUseCase()
				if err != nil {
					return err
				}
				return commands.RunSetCredential(ctx, vaultUseCase, container.Logger(), commands.DefaultIO(), providerID)
			},
		},
		{
			Name:      "delete-credential",
			Usage:     "Delete the stored credential of a provider",
			ArgsUsage: "<provider>",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				providerID := cmd.Args().First()
				if providerID == "" {
					return errMissingProvider
				}
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				vaultUseCase, err := container.VaultUseCase()
				if err != nil {
					return err
				}
				return commands.RunDeleteCredential(ctx, vaultUseCase, container.Logger(), commands.DefaultIO(), providerID)
			},
		},
		{
			Name:  "list-credentials",
			Usage: "List stored credentials (metadata only)",
			Flags: []cli.Flag{formatFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				vaultUseCase, err := container.VaultUseCase()
				if err != nil {
					return err
				}
				return commands.RunListCredentials(ctx, vaultUseCase, commands.DefaultIO(), cmd.String("format"))
			},
		},
		{
			Name:  "rotate-key",
			Usage: "Replace the vault keypair and re-encrypt every credential",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "new-passphrase",
					Usage: "Also change the vault passphrase",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				keyManager, err := container.KeyManager()
				if err != nil {
					return err
				}
				return commands.RunRotateKey(
					ctx,
					keyManager,
					container.Logger(),
					commands.DefaultIO(),
					cmd.Bool("new-passphrase"),
				)
			},
		},
	}
}

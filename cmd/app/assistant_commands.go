package main

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/allisson/capvault/cmd/app/commands"
)

var errMissingMessage = errors.New("a message is required, e.g. `capvault ask /web kubernetes release`")

var skipUnlockFlag = &cli.BoolFlag{
	Name:  "no-unlock",
	Usage: "Do not ask for the vault passphrase; capabilities needing a credential will fail",
}

func getAssistantCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ask",
			Usage:     "Answer one message or /command and exit",
			ArgsUsage: "<message>",
			Flags:     []cli.Flag{skipUnlockFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				message := strings.Join(cmd.Args().Slice(), " ")
				if strings.TrimSpace(message) == "" {
					return errMissingMessage
				}
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				assistant, err := commands.PrepareAssistant(ctx, container, commands.DefaultIO(), cmd.Bool("no-unlock"))
				if err != nil {
					return err
				}
				return commands.RunAsk(ctx, assistant, container.Logger(), commands.DefaultIO(), message)
			},
		},
		{
			Name:  "repl",
			Usage: "Start an interactive session",
			Flags: []cli.Flag{skipUnlockFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				container, err := newContainer()
				if err != nil {
					return err
				}
				defer func() { _ = container.Shutdown(ctx) }()

				assistant, err := commands.PrepareAssistant(ctx, container, commands.DefaultIO(), cmd.Bool("no-unlock"))
				if err != nil {
					return err
				}
				return commands.RunREPL(ctx, assistant, container.Logger(), commands.DefaultIO())
			},
		},
	}
}

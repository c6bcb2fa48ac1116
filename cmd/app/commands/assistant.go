package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/allisson/capvault/internal/app"
	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
	assistantUseCase "github.com/allisson/capvault/internal/assistant/usecase"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

const replPrompt = "> "

// PrepareAssistant loads capabilities and the routing table and, unless skipUnlock is
// set, asks for the passphrase of an initialized vault.
func PrepareAssistant(
	ctx context.Context,
	container *app.Container,
	io IOTuple,
	skipUnlock bool,
) (assistantUseCase.Assistant, error) {
	if err := loadCapabilities(ctx, container); err != nil {
		return nil, err
	}
	if !skipUnlock {
		keyManager, err := container.KeyManager()
		if err != nil {
			return nil, err
		}
		if err := unlockIfInitialized(ctx, keyManager, io); err != nil {
			return nil, err
		}
	}
	return container.Assistant()
}

// RunAsk answers one message, a /command or free text, and prints the reply.
func RunAsk(
	ctx context.Context,
	assistant assistantUseCase.Assistant,
	logger *slog.Logger,
	io IOTuple,
	message string,
) error {
	reply, err := assistant.Handle(ctx, &assistantDomain.Conversation{}, message)
	if err != nil {
		return err
	}

	logger.Debug("ask answered",
		slog.String("kind", string(reply.Kind)),
		slog.String("capability", reply.Capability),
	)
	_, _ = fmt.Fprintln(io.Writer, reply.Text)
	return nil
}

// RunREPL reads lines until EOF, /quit or /exit and answers each one within a single
// conversation. Errors are explained and the loop continues, except for a corrupt
// keyring, which ends the session.
func RunREPL(
	ctx context.Context,
	assistant assistantUseCase.Assistant,
	logger *slog.Logger,
	io IOTuple,
) error {
	conv := &assistantDomain.Conversation{}
	scanner := bufio.NewScanner(io.Reader)
	scanner.Buffer(make([]byte, 0, 4096), maxSecretLength)

	_, _ = fmt.Fprintln(io.Writer, "capvault ready. Type /help for commands, /quit to leave.")
	for {
		_, _ = fmt.Fprint(io.Writer, replPrompt)
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(io.Writer)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply, err := assistant.Handle(ctx, conv, line)
		if err != nil {
			if errors.Is(err, vaultDomain.ErrKeyRingCorrupt) {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("repl request failed", slog.Any("error", err))
			_, _ = fmt.Fprintln(io.Writer, assistantDomain.Explain(err))
			continue
		}
		_, _ = fmt.Fprintln(io.Writer, reply.Text)
	}
}

package commands

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
	assistantMocks "github.com/allisson/capvault/internal/assistant/usecase/mocks"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

func TestRunAsk(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("success", func(t *testing.T) {
		assistant := &assistantMocks.MockAssistant{}
		assistant.On("Handle", ctx, mock.AnythingOfType("*domain.Conversation"), "/web kubernetes").
			Return(&assistantDomain.Reply{
				Kind:       assistantDomain.ReplyCapability,
				Text:       "Kubernetes 1.36 was released.",
				Capability: "web-search",
			}, nil)
		io, out := testIO("")

		require.NoError(t, RunAsk(ctx, assistant, logger, io, "/web kubernetes"))

		assert.Equal(t, "Kubernetes 1.36 was released.\n", out.String())
		assistant.AssertExpectations(t)
	})

	t.Run("error is returned", func(t *testing.T) {
		assistant := &assistantMocks.MockAssistant{}
		assistant.On("Handle", ctx, mock.Anything, "hello").Return(nil, vaultDomain.ErrLocked)
		io, out := testIO("")

		assert.ErrorIs(t, RunAsk(ctx, assistant, logger, io, "hello"), vaultDomain.ErrLocked)
		assert.Empty(t, out.String())
	})
}

func TestRunREPL(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("conversation", func(t *testing.T) {
		assistant := &assistantMocks.MockAssistant{}
		var convs []*assistantDomain.Conversation
		assistant.On("Handle", ctx, mock.Anything, "/research on").
			Run(func(args mock.Arguments) {
				convs = append(convs, args.Get(1).(*assistantDomain.Conversation))
			}).
			Return(&assistantDomain.Reply{Kind: assistantDomain.ReplyBuiltin, Text: "Research mode on."}, nil)
		assistant.On("Handle", ctx, mock.Anything, "what is new").
			Run(func(args mock.Arguments) {
				convs = append(convs, args.Get(1).(*assistantDomain.Conversation))
			}).
			Return(nil, vaultDomain.ErrLocked)
		io, out := testIO("/research on\n\n   \nwhat is new\n/quit\nnever read\n")

		require.NoError(t, RunREPL(ctx, assistant, logger, io))

		assert.Contains(t, out.String(), "Research mode on.")
		assert.Contains(t, out.String(), "The vault is locked.")
		require.Len(t, convs, 2)
		assert.Same(t, convs[0], convs[1], "one conversation per session")
		assistant.AssertNumberOfCalls(t, "Handle", 2)
	})

	t.Run("eof ends the session", func(t *testing.T) {
		assistant := &assistantMocks.MockAssistant{}
		io, out := testIO("")

		require.NoError(t, RunREPL(ctx, assistant, logger, io))
		assert.Contains(t, out.String(), replPrompt)
	})

	t.Run("corrupt keyring ends the session", func(t *testing.T) {
		assistant := &assistantMocks.MockAssistant{}
		assistant.On("Handle", ctx, mock.Anything, "/status").Return(nil, vaultDomain.ErrKeyRingCorrupt)
		io, _ := testIO("/status\nhello\n")

		err := RunREPL(ctx, assistant, logger, io)

		assert.ErrorIs(t, err, vaultDomain.ErrKeyRingCorrupt)
		assistant.AssertNumberOfCalls(t, "Handle", 1)
	})

	t.Run("cancelled context ends the session", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assistant := &assistantMocks.MockAssistant{}
		assistant.On("Handle", cctx, mock.Anything, "hello").Return(nil, errors.New("dispatch aborted"))
		io, _ := testIO("hello\nagain\n")

		assert.ErrorIs(t, RunREPL(cctx, assistant, logger, io), context.Canceled)
		assistant.AssertNumberOfCalls(t, "Handle", 1)
	})
}

package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	capabilityMocks "github.com/allisson/capvault/internal/capability/usecase/mocks"
)

func TestRunCapabilities(t *testing.T) {
	ctx := context.Background()
	set, err := capabilityDomain.NewSet(1, "capabilities.yaml", time.Now(), []capabilityDomain.Descriptor{
		{
			Name:               "web-search",
			Kind:               capabilityDomain.KindSkill,
			InvocationTarget:   "exec://skills/web_search",
			RequiresCredential: true,
		},
		{
			Name:             "chat-default",
			Kind:             capabilityDomain.KindWorker,
			InvocationTarget: "builtin:echo",
		},
	})
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		registry := &capabilityMocks.MockRegistry{}
		registry.On("Refresh", ctx).Return(set, nil)
		io, out := testIO("")

		require.NoError(t, RunCapabilities(ctx, registry, io, "text"))

		assert.Equal(t,
			"chat-default\tworker\tbuiltin:echo\tcredential: -\n"+
				"web-search\tskill\texec://skills/web_search\tcredential: web-search\n",
			out.String(),
		)
	})

	t.Run("json", func(t *testing.T) {
		registry := &capabilityMocks.MockRegistry{}
		registry.On("Refresh", ctx).Return(set, nil)
		io, out := testIO("")

		require.NoError(t, RunCapabilities(ctx, registry, io, "json"))

		var decoded []capabilityDomain.Descriptor
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, "chat-default", decoded[0].Name)
	})

	t.Run("empty", func(t *testing.T) {
		empty, err := capabilityDomain.NewSet(1, "capabilities.yaml", time.Now(), nil)
		require.NoError(t, err)
		registry := &capabilityMocks.MockRegistry{}
		registry.On("Refresh", ctx).Return(empty, nil)
		io, out := testIO("")

		require.NoError(t, RunCapabilities(ctx, registry, io, "text"))
		assert.Equal(t, "No capabilities registered in capabilities.yaml.\n", out.String())
	})

	t.Run("invalid manifest", func(t *testing.T) {
		registry := &capabilityMocks.MockRegistry{}
		registry.On("Refresh", ctx).Return(nil, capabilityDomain.ErrInvalidManifest)
		io, _ := testIO("")

		assert.ErrorIs(t, RunCapabilities(ctx, registry, io, "text"), capabilityDomain.ErrInvalidManifest)
	})
}

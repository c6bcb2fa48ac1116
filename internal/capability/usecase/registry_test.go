package usecase

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	capabilityRepository "github.com/allisson/capvault/internal/capability/repository"
	"github.com/allisson/capvault/internal/clock"
	apperrors "github.com/allisson/capvault/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const manifestV1 = `capabilities:
  - name: web-search
    kind: skill
    invocation_target: https://127.0.0.1:9000/web
    requires_credential: true
    credential_provider_id: provider-a
    aliases: [web]
  - name: chat-default
    kind: worker
    invocation_target: builtin:echo
`

const manifestV2 = `capabilities:
  - name: chat-default
    kind: worker
    invocation_target: builtin:echo
  - name: research
    kind: worker
    invocation_target: exec:///opt/capvault/workers/research
`

func newTestRegistry(t *testing.T, content string) (Registry, string, *clock.FakeClock) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	clk := clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(capabilityRepository.NewManifestLoader(path), clk, logger, time.Second), path, clk
}

func TestRegistry_Refresh(t *testing.T) {
	ctx := context.Background()
	reg, path, _ := newTestRegistry(t, manifestV1)

	assert.Equal(t, uint64(0), reg.Version())
	assert.Empty(t, reg.List())
	_, err := reg.Lookup("web-search")
	assert.ErrorIs(t, err, capabilityDomain.ErrCapabilityNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	set, err := reg.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), set.Version())
	assert.Equal(t, uint64(1), reg.Version())
	assert.Len(t, reg.List(), 2)

	d, err := reg.Lookup("web")
	require.NoError(t, err)
	assert.Equal(t, "web-search", d.Name)
	assert.Equal(t, "provider-a", d.ProviderID())

	require.NoError(t, os.WriteFile(path, []byte(manifestV2), 0o600))
	_, err = reg.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reg.Version())

	_, err = reg.Lookup("web-search")
	assert.ErrorIs(t, err, capabilityDomain.ErrCapabilityNotFound)
	_, err = reg.Lookup("research")
	assert.NoError(t, err)
}

func TestRegistry_RefreshFailureKeepsActiveSet(t *testing.T) {
	ctx := context.Background()
	reg, path, _ := newTestRegistry(t, manifestV1)
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "unparsable", content: "capabilities: [", wantErr: capabilityDomain.ErrInvalidManifest},
		{
			name:    "invalid descriptor",
			content: "capabilities:\n  - name: x\n    kind: robot\n    invocation_target: builtin:x\n",
			wantErr: capabilityDomain.ErrInvalidManifest,
		},
		{
			name:    "duplicate",
			content: manifestV2 + "  - name: research\n    kind: skill\n    invocation_target: builtin:x\n",
			wantErr: capabilityDomain.ErrDuplicateCapability,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := reg.Refresh(ctx)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, uint64(1), reg.Version())
			_, err = reg.Lookup("web-search")
			assert.NoError(t, err)
		})
	}
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	ctx := context.Background()
	reg, path, _ := newTestRegistry(t, manifestV1)
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	snapshot := reg.Snapshot()
	require.NoError(t, os.WriteFile(path, []byte(manifestV2), 0o600))
	_, err = reg.Refresh(ctx)
	require.NoError(t, err)

	// A lookup in flight against the old set completes against the old set.
	d, ok := snapshot.Lookup("web-search")
	assert.True(t, ok)
	assert.Equal(t, "web-search", d.Name)
	assert.Equal(t, uint64(1), snapshot.Version())
	assert.Equal(t, uint64(2), reg.Snapshot().Version())
}

func TestRegistry_ConcurrentLookupsDuringRefresh(t *testing.T) {
	ctx := context.Background()
	reg, path, _ := newTestRegistry(t, manifestV1)
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Every set ever published contains chat-default.
				set := reg.Snapshot()
				_, ok := set.Lookup("chat-default")
				assert.True(t, ok)
				assert.Len(t, set.List(), set.Len())
			}
		})
	}

	for i := range 20 {
		content := manifestV1
		if i%2 == 0 {
			content = manifestV2
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := reg.Refresh(ctx)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(21), reg.Version())
}

func TestRegistry_MissingManifest(t *testing.T) {
	reg, _, _ := newTestRegistry(t, "")

	set, err := reg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, uint64(1), reg.Version())
}

func TestRegistry_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg, path, clk := newTestRegistry(t, manifestV1)
	_, err := reg.Refresh(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(manifestV2), 0o600))
	clk.WaitForTimers(1)
	clk.Advance(time.Second)

	assert.Eventually(t, func() bool {
		_, err := reg.Lookup("research")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

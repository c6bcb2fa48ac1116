package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/capvault/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	clock  *clock.FakeClock
	calls  atomic.Int32
	cancel context.CancelFunc
	done   chan error
}

func startWatcher(t *testing.T, path string, reload func(ctx context.Context) error) *harness {
	t.Helper()
	h := &harness{
		clock: clock.Fake(time.Unix(0, 0)),
		done:  make(chan error, 1),
	}
	wrapped := func(ctx context.Context) error {
		h.calls.Add(1)
		if reload != nil {
			return reload(ctx)
		}
		return nil
	}
	w := New(path, time.Second, h.clock, slog.New(slog.NewTextHandler(io.Discard, nil)), wrapped)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(h.stop)

	// Give fsnotify time to register the watch before the test writes.
	time.Sleep(50 * time.Millisecond)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

// settle fires the debounce timer armed by the last event.
func (h *harness) settle() {
	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
}

func TestWatcher_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capabilities: []\n"), 0o600))

	h := startWatcher(t, path, nil)

	require.NoError(t, os.WriteFile(path, []byte("capabilities: [{}]\n"), 0o600))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	// Replacing the file by rename, as editors and config tools do, is seen too.
	tmp := filepath.Join(dir, "capabilities.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("capabilities: []\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_FileCreatedLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")

	h := startWatcher(t, path, nil)

	require.NoError(t, os.WriteFile(path, []byte("default: chat-default\n"), 0o600))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DirectoryIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	h := startWatcher(t, dir, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.yaml"), []byte("x: 1"), 0o600))
	assert.Never(t, func() bool { return h.clock.PendingCount() > 0 }, 200*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "workers.yml"), []byte("capabilities: []"), 0o600))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_KeepsRunningAfterReloadError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	var failures atomic.Int32
	h := startWatcher(t, path, func(context.Context) error {
		if failures.Add(1) == 1 {
			return errors.New("invalid manifest")
		}
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("bad"), 0o600))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("good"), 0o600))
	h.settle()
	assert.Eventually(t, func() bool { return h.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 0, clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)), func(context.Context) error {
		return nil
	})
	assert.Equal(t, DefaultDebounce, w.debounce)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "capabilities.yaml")
	w := New(path, 0, clock.Real(), slog.New(slog.NewTextHandler(io.Discard, nil)), func(context.Context) error {
		return nil
	})

	err := w.Run(context.Background())
	assert.ErrorIs(t, err, ErrWatcherFailed)
}

package usecase

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/allisson/capvault/internal/clock"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	cryptoService "github.com/allisson/capvault/internal/crypto/service"
	vaultRepository "github.com/allisson/capvault/internal/vault/repository"
	vaultService "github.com/allisson/capvault/internal/vault/service"
)

const (
	testPassphrase = "correct horse battery staple"
	testWorkFactor = 10
	testIdle       = 15 * time.Minute

	timeoutForTest = 2 * time.Second
	tickForTest    = 5 * time.Millisecond
)

type testVault struct {
	km       *KeyManagerService
	vault    VaultUseCase
	store    Store
	clock    *clock.FakeClock
	root     string
	envelope *vaultService.Envelope
}

type testVaultOptions struct {
	store       Store
	idle        time.Duration
	unlockBurst int
	hook        func(stage vaultRepository.PublishStage) error
}

func newTestVault(t *testing.T, opts testVaultOptions) *testVault {
	t.Helper()

	root := filepath.Join(t.TempDir(), "vault")
	store := opts.store
	if store == nil {
		var fileOpts []vaultRepository.FileStoreOption
		if opts.hook != nil {
			fileOpts = append(fileOpts, vaultRepository.WithPublishHook(opts.hook))
		}
		fileStore, err := vaultRepository.NewFileStore(root, fileOpts...)
		require.NoError(t, err)
		store = fileStore
	}

	idle := opts.idle
	if idle == 0 {
		idle = testIdle
	}
	burst := opts.unlockBurst
	if burst == 0 {
		burst = 100
	}

	clk := clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	envelope := vaultService.NewEnvelope(
		cryptoService.NewAEADManager(),
		cryptoService.NewAgeSealer(),
		cryptoDomain.AESGCM,
		clk,
	)
	km := NewKeyManager(
		store,
		cryptoService.NewPassphraseKeyWrapper(testWorkFactor),
		cryptoService.NewAgeSealer(),
		envelope,
		vaultService.NewInteractivePassphraseVerifier(),
		clk,
		logger,
		KeyManagerConfig{IdleTimeout: idle, UnlockRatePerMinute: 60, UnlockBurst: burst},
	)

	return &testVault{
		km:       km,
		vault:    NewVaultUseCase(km, store, envelope, logger),
		store:    store,
		clock:    clk,
		root:     root,
		envelope: envelope,
	}
}

// newInitializedVault returns an unlocked vault holding the given credentials.
func newInitializedVault(t *testing.T, opts testVaultOptions, credentials map[string]string) *testVault {
	t.Helper()
	tv := newTestVault(t, opts)
	_, err := tv.km.Init(t.Context(), []byte(testPassphrase))
	require.NoError(t, err)
	for provider, credential := range credentials {
		_, err := tv.vault.Store(t.Context(), provider, []byte(credential))
		require.NoError(t, err)
	}
	return tv
}

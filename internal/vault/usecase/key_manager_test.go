package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultRepository "github.com/allisson/capvault/internal/vault/repository"
)

func TestKeyManager_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("creates keyring and leaves vault unlocked", func(t *testing.T) {
		tv := newTestVault(t, testVaultOptions{})
		assert.Equal(t, vaultDomain.Locked, tv.km.State())

		keyPair, err := tv.km.Init(ctx, []byte(testPassphrase))
		require.NoError(t, err)
		assert.Len(t, keyPair.KeyID, 16)
		assert.Equal(t, vaultDomain.Unlocked, tv.km.State())

		keyRing, err := tv.store.GetKeyRing(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, keyRing.Generation)
		assert.Equal(t, keyPair.PublicKey, keyRing.PublicKey)
		assert.NotContains(t, string(keyRing.WrappedPrivateKey), "AGE-SECRET-KEY")
	})

	t.Run("refuses second init", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)

		_, err := tv.km.Init(ctx, []byte(testPassphrase))
		assert.ErrorIs(t, err, vaultDomain.ErrKeyRingExists)
	})

	t.Run("refuses empty passphrase", func(t *testing.T) {
		tv := newTestVault(t, testVaultOptions{})

		_, err := tv.km.Init(ctx, nil)
		assert.ErrorIs(t, err, vaultDomain.ErrEmptyPassphrase)
	})
}

func TestKeyManager_Unlock(t *testing.T) {
	ctx := context.Background()

	t.Run("missing keyring", func(t *testing.T) {
		tv := newTestVault(t, testVaultOptions{})

		_, err := tv.km.Unlock(ctx, []byte(testPassphrase))
		assert.ErrorIs(t, err, vaultDomain.ErrKeyMissing)
		assert.Equal(t, vaultDomain.Locked, tv.km.State())
	})

	t.Run("correct passphrase", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)
		tv.km.Lock()
		require.Equal(t, vaultDomain.Locked, tv.km.State())

		passphrase := []byte(testPassphrase)
		keyPair, err := tv.km.Unlock(ctx, passphrase)
		require.NoError(t, err)
		assert.NotEmpty(t, keyPair.PublicKey)
		assert.Equal(t, vaultDomain.Unlocked, tv.km.State())
		assert.Equal(t, testPassphrase, string(passphrase), "unlock must not consume the caller's passphrase")
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)
		tv.km.Lock()

		_, err := tv.km.Unlock(ctx, []byte("wrong"))
		assert.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
		assert.Equal(t, vaultDomain.Locked, tv.km.State())

		_, err = tv.km.Unlock(ctx, nil)
		assert.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
	})

	t.Run("damaged wrapped key", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)
		tv.km.Lock()

		keyRing, err := tv.store.GetKeyRing(ctx)
		require.NoError(t, err)
		keyRing.WrappedPrivateKey[len(keyRing.WrappedPrivateKey)-1] ^= 0x01
		keyRing.Generation++
		require.NoError(t, tv.store.Publish(ctx, keyRing, nil))

		_, err = tv.km.Unlock(ctx, []byte(testPassphrase))
		assert.ErrorIs(t, err, vaultDomain.ErrKeyRingCorrupt)
		assert.Equal(t, vaultDomain.Locked, tv.km.State())
	})

	t.Run("wrong passphrase keeps an unlocked vault unlocked", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)

		_, err := tv.km.Unlock(ctx, []byte("wrong"))
		assert.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
		assert.Equal(t, vaultDomain.Unlocked, tv.km.State())
	})

	t.Run("throttled", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{unlockBurst: 2}, nil)
		tv.km.Lock()

		for range 2 {
			_, err := tv.km.Unlock(ctx, []byte("wrong"))
			require.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
		}
		_, err := tv.km.Unlock(ctx, []byte(testPassphrase))
		assert.ErrorIs(t, err, vaultDomain.ErrUnlockThrottled)
		assert.Equal(t, vaultDomain.Locked, tv.km.State())
	})
}

func TestKeyManager_Lock(t *testing.T) {
	ctx := context.Background()
	tv := newInitializedVault(t, testVaultOptions{}, map[string]string{"provider-a": "sk-locked-away"})

	tv.km.Lock()
	tv.km.Lock()
	assert.Equal(t, vaultDomain.Locked, tv.km.State())

	record, err := tv.vault.Get(ctx, "provider-a")
	require.NoError(t, err)
	_, err = tv.vault.Decrypt(ctx, record)
	assert.ErrorIs(t, err, vaultDomain.ErrLocked)
}

func TestKeyManager_IdleTimeout(t *testing.T) {
	ctx := context.Background()
	tv := newInitializedVault(t, testVaultOptions{idle: time.Minute}, map[string]string{"provider-a": "sk-idle"})

	tv.clock.Advance(50 * time.Second)
	assert.Equal(t, vaultDomain.Unlocked, tv.km.State())

	// A successful decrypt re-arms the timer.
	record, err := tv.vault.Get(ctx, "provider-a")
	require.NoError(t, err)
	session, err := tv.vault.Decrypt(ctx, record)
	require.NoError(t, err)
	require.NoError(t, session.Close())

	tv.clock.Advance(50 * time.Second)
	assert.Equal(t, vaultDomain.Unlocked, tv.km.State())

	tv.clock.Advance(11 * time.Second)
	assert.Equal(t, vaultDomain.Locked, tv.km.State())

	_, err = tv.vault.Decrypt(ctx, record)
	assert.ErrorIs(t, err, vaultDomain.ErrLocked)
}

func TestKeyManager_Rotate(t *testing.T) {
	ctx := context.Background()
	credentials := map[string]string{
		"provider-a": "sk-aaaaaaaaaaaaaaaaaaaa",
		"provider-b": "sk-bbbbbbbbbbbbbbbbbbbb",
	}

	t.Run("requires unlock", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)
		tv.km.Lock()

		_, err := tv.km.Rotate(ctx, []byte(testPassphrase), nil)
		assert.ErrorIs(t, err, vaultDomain.ErrLocked)
	})

	t.Run("requires passphrase", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)

		_, err := tv.km.Rotate(ctx, []byte("wrong"), nil)
		assert.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
	})

	t.Run("re-encrypts every record", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, credentials)
		before, err := tv.km.KeyPair(ctx)
		require.NoError(t, err)

		after, err := tv.km.Rotate(ctx, []byte(testPassphrase), nil)
		require.NoError(t, err)
		assert.NotEqual(t, before.KeyID, after.KeyID)

		for provider, want := range credentials {
			record, err := tv.vault.Get(ctx, provider)
			require.NoError(t, err)
			assert.Equal(t, after.KeyID, record.KeyID)
			assert.Equal(t, 2, record.Version)
			assertDecryptsTo(t, tv, record, want)
		}

		// The new key survives a lock/unlock cycle.
		tv.km.Lock()
		_, err = tv.km.Unlock(ctx, []byte(testPassphrase))
		require.NoError(t, err)
		record, err := tv.vault.Get(ctx, "provider-a")
		require.NoError(t, err)
		assertDecryptsTo(t, tv, record, credentials["provider-a"])
	})

	t.Run("changes passphrase", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, credentials)

		_, err := tv.km.Rotate(ctx, []byte(testPassphrase), []byte("new passphrase"))
		require.NoError(t, err)

		tv.km.Lock()
		_, err = tv.km.Unlock(ctx, []byte(testPassphrase))
		assert.ErrorIs(t, err, vaultDomain.ErrWrongPassphrase)
		_, err = tv.km.Unlock(ctx, []byte("new passphrase"))
		assert.NoError(t, err)
	})

	t.Run("corrupt record is left for re-entry", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, credentials)
		before, err := tv.km.KeyPair(ctx)
		require.NoError(t, err)
		corruptRecord(t, tv.store, "provider-b")

		after, err := tv.km.Rotate(ctx, []byte(testPassphrase), nil)
		require.NoError(t, err)
		assert.NotEqual(t, before.KeyID, after.KeyID)

		record, err := tv.vault.Get(ctx, "provider-a")
		require.NoError(t, err)
		assert.Equal(t, after.KeyID, record.KeyID)
		assertDecryptsTo(t, tv, record, credentials["provider-a"])

		stale, err := tv.vault.Get(ctx, "provider-b")
		require.NoError(t, err)
		assert.Equal(t, before.KeyID, stale.KeyID)
		assert.Equal(t, 1, stale.Version)

		infos, err := tv.vault.List(ctx)
		require.NoError(t, err)
		for _, info := range infos {
			assert.Equal(t, info.ProviderID == "provider-b", info.NeedsReentry, info.ProviderID)
		}
		assert.Equal(t, []string{"provider-b"}, tv.vault.NeedsReentry())

		_, err = tv.vault.Decrypt(ctx, stale)
		assert.ErrorIs(t, err, vaultDomain.ErrCorrupt)

		_, err = tv.vault.Store(ctx, "provider-b", []byte("sk-cccccccccccccccccccc"))
		require.NoError(t, err)
		assert.Empty(t, tv.vault.NeedsReentry())
	})

	t.Run("passphrase survives rotation", func(t *testing.T) {
		tv := newInitializedVault(t, testVaultOptions{}, nil)
		passphrase := []byte(testPassphrase)

		_, err := tv.km.Rotate(ctx, passphrase, nil)
		require.NoError(t, err)
		assert.Equal(t, testPassphrase, string(passphrase))

		keyRing, err := tv.store.GetKeyRing(ctx)
		require.NoError(t, err)
		assert.True(t, tv.km.verifier.Verify([]byte(testPassphrase), keyRing.PassphraseHash))
		assert.False(t, tv.km.verifier.Verify(make([]byte, len(testPassphrase)), keyRing.PassphraseHash))
	})
}

func TestKeyManager_RotateCrash(t *testing.T) {
	errCrash := errors.New("simulated crash")
	credentials := map[string]string{
		"provider-a": "sk-aaaaaaaaaaaaaaaaaaaa",
		"provider-b": "sk-bbbbbbbbbbbbbbbbbbbb",
	}

	tests := []struct {
		name    string
		stage   vaultRepository.PublishStage
		wantNew bool
	}{
		{name: "before swap leaves old state", stage: vaultRepository.StageBeforeSwap, wantNew: false},
		{name: "after swap leaves new state", stage: vaultRepository.StageAfterSwap, wantNew: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			crash := false
			tv := newInitializedVault(t, testVaultOptions{hook: func(stage vaultRepository.PublishStage) error {
				if crash && stage == tt.stage {
					return errCrash
				}
				return nil
			}}, credentials)
			before, err := tv.km.KeyPair(ctx)
			require.NoError(t, err)

			crash = true
			_, err = tv.km.Rotate(ctx, []byte(testPassphrase), nil)
			require.ErrorIs(t, err, errCrash)

			// Restart: a fresh process over the same directory.
			restarted := newTestVault(t, testVaultOptions{store: reopenFileStore(t, tv.root)})
			keyPair, err := restarted.km.Unlock(ctx, []byte(testPassphrase))
			require.NoError(t, err)

			if tt.wantNew {
				assert.NotEqual(t, before.KeyID, keyPair.KeyID)
			} else {
				assert.Equal(t, before.KeyID, keyPair.KeyID)
			}

			infos, err := restarted.vault.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, len(credentials))
			for _, info := range infos {
				assert.Equal(t, keyPair.KeyID, info.KeyID, "records must match the live keyring")
				assert.False(t, info.NeedsReentry)

				record, err := restarted.vault.Get(ctx, info.ProviderID)
				require.NoError(t, err)
				assertDecryptsTo(t, restarted, record, credentials[info.ProviderID])
			}
		})
	}
}

func assertDecryptsTo(t *testing.T, tv *testVault, record *vaultDomain.CredentialRecord, want string) {
	t.Helper()
	session, err := tv.vault.Decrypt(context.Background(), record)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()
	require.NoError(t, session.Use(func(credential []byte) error {
		assert.Equal(t, want, string(credential))
		return nil
	}))
}

// corruptRecord flips a ciphertext bit of the stored record; it still decodes but fails
// authentication.
func corruptRecord(t *testing.T, store Store, providerID string) {
	t.Helper()
	ctx := context.Background()
	record, err := store.GetRecord(ctx, providerID)
	require.NoError(t, err)
	record.Ciphertext[0] ^= 0x01
	require.NoError(t, store.SaveRecord(ctx, record))
}

func reopenFileStore(t *testing.T, root string) Store {
	t.Helper()
	store, err := vaultRepository.NewFileStore(root)
	require.NoError(t, err)
	return store
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/allisson/capvault/internal/clock"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	cryptoService "github.com/allisson/capvault/internal/crypto/service"
	"github.com/allisson/capvault/internal/secret"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultService "github.com/allisson/capvault/internal/vault/service"
)

// KeyManagerConfig holds the key manager tunables.
type KeyManagerConfig struct {
	// IdleTimeout locks the vault after this long without private key use. Zero disables it.
	IdleTimeout time.Duration
	// UnlockRatePerMinute and UnlockBurst throttle Unlock attempts.
	UnlockRatePerMinute float64
	UnlockBurst         int
}

// KeyManagerService implements KeyManager. Its RWMutex also guards the record set: the
// vault takes it shared to encrypt and decrypt, and exclusively to store, delete and
// rotate.
type KeyManagerService struct {
	mu         sync.RWMutex
	store      Store
	wrapper    cryptoService.KeyWrapper
	sealer     cryptoService.Sealer
	envelope   *vaultService.Envelope
	verifier   PassphraseVerifier
	limiter    *rate.Limiter
	clock      clock.Clock
	logger     *slog.Logger
	idle       time.Duration
	state      atomic.Int32
	privateKey *secret.Buffer
	keyRing    *vaultDomain.KeyRing

	idleMu    sync.Mutex
	idleTimer clock.Timer
	idleSeq   uint64
}

// NewKeyManager creates a locked key manager.
func NewKeyManager(
	store Store,
	wrapper cryptoService.KeyWrapper,
	sealer cryptoService.Sealer,
	envelope *vaultService.Envelope,
	verifier PassphraseVerifier,
	clk clock.Clock,
	logger *slog.Logger,
	cfg KeyManagerConfig,
) *KeyManagerService {
	perMinute := cfg.UnlockRatePerMinute
	if perMinute <= 0 {
		perMinute = 5
	}
	burst := cfg.UnlockBurst
	if burst <= 0 {
		burst = 1
	}
	km := &KeyManagerService{
		store:    store,
		wrapper:  wrapper,
		sealer:   sealer,
		envelope: envelope,
		verifier: verifier,
		limiter:  rate.NewLimiter(rate.Limit(perMinute/60), burst),
		clock:    clk,
		logger:   logger,
		idle:     cfg.IdleTimeout,
	}
	km.state.Store(int32(vaultDomain.Locked))
	return km
}

// State reports the current lifecycle state.
func (km *KeyManagerService) State() vaultDomain.KeyState {
	return vaultDomain.KeyState(km.state.Load())
}

// KeyPair returns the public half of the live keyring.
func (km *KeyManagerService) KeyPair(ctx context.Context) (*cryptoDomain.KeyPair, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	keyRing, err := km.keyRingLocked(ctx)
	if err != nil {
		return nil, err
	}
	keyPair := keyRing.KeyPair()
	return &keyPair, nil
}

// Init generates the keypair, wraps the private key and publishes generation 1.
func (km *KeyManagerService) Init(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error) {
	if len(passphrase) == 0 {
		return nil, vaultDomain.ErrEmptyPassphrase
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if _, err := km.store.GetKeyRing(ctx); err == nil {
		return nil, vaultDomain.ErrKeyRingExists
	} else if !errors.Is(err, vaultDomain.ErrKeyMissing) {
		return nil, err
	}

	keyRing, privateKey, err := km.newKeyRing(ctx, 1, passphrase)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(privateKey)

	if err := km.store.CreateKeyRing(ctx, keyRing); err != nil {
		return nil, err
	}
	if err := km.holdLocked(keyRing, privateKey); err != nil {
		return nil, err
	}

	km.logger.Info("vault initialized",
		slog.String("key_id", keyRing.KeyID),
		slog.String("wrap_mode", keyRing.WrapMode),
	)
	keyPair := keyRing.KeyPair()
	return &keyPair, nil
}

// Unlock verifies passphrase, unwraps the private key and holds it in protected memory
// until Lock or the idle timeout.
func (km *KeyManagerService) Unlock(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error) {
	if !km.limiter.Allow() {
		km.logger.Warn("unlock throttled")
		return nil, vaultDomain.ErrUnlockThrottled
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	previous := km.State()
	km.state.Store(int32(vaultDomain.Unlocking))

	keyRing, privateKey, err := km.openKeyRing(ctx, passphrase)
	if err != nil {
		km.state.Store(int32(previous))
		km.logger.Warn("unlock failed", slog.Any("error", err))
		return nil, err
	}
	defer cryptoDomain.Zero(privateKey)

	if err := km.holdLocked(keyRing, privateKey); err != nil {
		km.state.Store(int32(previous))
		return nil, err
	}

	km.logger.Info("vault unlocked", slog.String("key_id", keyRing.KeyID))
	keyPair := keyRing.KeyPair()
	return &keyPair, nil
}

// Lock zeroes and releases the private key. It is idempotent.
func (km *KeyManagerService) Lock() {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.lockLocked() {
		km.logger.Info("vault locked")
	}
}

// Rotate generates a new keypair, re-encrypts every record to it with a fresh DEK and
// an incremented version, and publishes keyring and records in one atomic step. The
// previous state stays live if anything fails. A record that fails verification does
// not block rotation: it is carried over unchanged and stays flagged for re-entry.
func (km *KeyManagerService) Rotate(
	ctx context.Context,
	passphrase, newPassphrase []byte,
) (*cryptoDomain.KeyPair, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.State() != vaultDomain.Unlocked {
		return nil, vaultDomain.ErrLocked
	}
	current, err := km.keyRingLocked(ctx)
	if err != nil {
		return nil, err
	}
	if !km.verifier.Verify(passphrase, current.PassphraseHash) {
		return nil, vaultDomain.ErrWrongPassphrase
	}
	if len(newPassphrase) == 0 {
		newPassphrase = passphrase
	}

	records, err := km.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	next, privateKey, err := km.newKeyRing(ctx, current.Generation+1, newPassphrase)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(privateKey)

	rotated := make([]*vaultDomain.CredentialRecord, 0, len(records))
	var stale []string
	nextKeyPair := next.KeyPair()
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var reencrypted *vaultDomain.CredentialRecord
		err := km.withIdentityLocked(func(identity []byte) error {
			plaintext, err := km.envelope.Decrypt(record, identity)
			if err != nil {
				return fmt.Errorf("%w: provider %s", err, record.ProviderID)
			}
			defer cryptoDomain.Zero(plaintext)
			reencrypted, err = km.envelope.Encrypt(record.ProviderID, record.Version+1, plaintext, nextKeyPair)
			return err
		})
		switch {
		case err == nil:
			rotated = append(rotated, reencrypted)
		case errors.Is(err, vaultDomain.ErrCorrupt):
			// Kept as is under the old key id, so it keeps being reported for re-entry.
			stale = append(stale, record.ProviderID)
			rotated = append(rotated, record)
		default:
			return nil, err
		}
	}

	if err := km.store.Publish(ctx, next, rotated); err != nil {
		return nil, err
	}
	if err := km.holdLocked(next, privateKey); err != nil {
		// The new generation is live but its key could not be held; force a fresh unlock.
		km.lockLocked()
		return nil, err
	}

	km.logger.Info("vault key rotated",
		slog.String("previous_key_id", current.KeyID),
		slog.String("key_id", next.KeyID),
		slog.Int("generation", next.Generation),
		slog.Int("records", len(rotated)-len(stale)),
	)
	if len(stale) > 0 {
		km.logger.Warn("credentials left for re-entry during rotation", slog.Any("providers", stale))
	}
	return &nextKeyPair, nil
}

// openKeyRing loads the keyring and unwraps its private key. Callers hold mu.
func (km *KeyManagerService) openKeyRing(
	ctx context.Context,
	passphrase []byte,
) (*vaultDomain.KeyRing, []byte, error) {
	keyRing, err := km.store.GetKeyRing(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !keyRing.Consistent() {
		return nil, nil, vaultDomain.ErrKeyRingCorrupt
	}
	if keyRing.WrapMode != km.wrapper.Mode() {
		return nil, nil, fmt.Errorf("%w: keyring uses %s, configured %s",
			vaultDomain.ErrWrapModeMismatch, keyRing.WrapMode, km.wrapper.Mode())
	}
	if len(passphrase) == 0 || !km.verifier.Verify(passphrase, keyRing.PassphraseHash) {
		return nil, nil, vaultDomain.ErrWrongPassphrase
	}

	privateKey, err := km.wrapper.Unwrap(ctx, keyRing.WrappedPrivateKey, passphrase)
	if err != nil {
		if keyRing.WrapMode == cryptoService.WrapModeKMS && !errors.Is(err, cryptoDomain.ErrUnwrapFailed) {
			return nil, nil, fmt.Errorf("%w: %v", vaultDomain.ErrKeyUnavailable, err)
		}
		return nil, nil, vaultDomain.ErrKeyRingCorrupt
	}

	publicKey, err := cryptoService.PublicKeyOf(privateKey)
	if err != nil || publicKey != keyRing.PublicKey {
		cryptoDomain.Zero(privateKey)
		return nil, nil, vaultDomain.ErrKeyRingCorrupt
	}
	return keyRing, privateKey, nil
}

// newKeyRing generates a keypair and wraps its private key. The caller zeroes the
// returned private key.
func (km *KeyManagerService) newKeyRing(
	ctx context.Context,
	generation int,
	passphrase []byte,
) (*vaultDomain.KeyRing, []byte, error) {
	keyPair, privateKey, err := km.sealer.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	wrapped, err := km.wrapper.Wrap(ctx, privateKey, passphrase)
	if err != nil {
		cryptoDomain.Zero(privateKey)
		return nil, nil, fmt.Errorf("failed to wrap private key: %w", err)
	}
	hash, err := km.verifier.Hash(passphrase)
	if err != nil {
		cryptoDomain.Zero(privateKey)
		return nil, nil, err
	}
	return &vaultDomain.KeyRing{
		KeyID:             keyPair.KeyID,
		Generation:        generation,
		PublicKey:         keyPair.PublicKey,
		WrappedPrivateKey: wrapped,
		WrapMode:          km.wrapper.Mode(),
		PassphraseHash:    hash,
		CreatedAt:         km.clock.Now().UTC(),
	}, privateKey, nil
}

// holdLocked moves a copy of privateKey into protected memory, replacing any key
// already held, and arms the idle timer. Callers hold mu exclusively.
func (km *KeyManagerService) holdLocked(keyRing *vaultDomain.KeyRing, privateKey []byte) error {
	copied := append([]byte(nil), privateKey...)
	buf, err := secret.NewFromBytes(copied)
	if err != nil {
		cryptoDomain.Zero(copied)
		return fmt.Errorf("failed to protect private key: %w", err)
	}
	if km.privateKey != nil {
		_ = km.privateKey.Close()
	}
	km.privateKey = buf
	km.keyRing = keyRing
	km.state.Store(int32(vaultDomain.Unlocked))
	km.touch()
	return nil
}

// lockLocked releases the private key and reports whether one was held.
func (km *KeyManagerService) lockLocked() bool {
	km.stopIdleTimer()
	held := km.privateKey != nil
	if held {
		_ = km.privateKey.Close()
		km.privateKey = nil
	}
	km.state.Store(int32(vaultDomain.Locked))
	return held
}

// keyRingLocked returns the cached keyring, loading it from the store when locked.
func (km *KeyManagerService) keyRingLocked(ctx context.Context) (*vaultDomain.KeyRing, error) {
	if km.keyRing != nil {
		return km.keyRing, nil
	}
	return km.store.GetKeyRing(ctx)
}

// withIdentityLocked lends the private key to fn and re-arms the idle timer. Callers
// hold mu, shared or exclusive.
func (km *KeyManagerService) withIdentityLocked(fn func(identity []byte) error) error {
	if km.State() != vaultDomain.Unlocked || km.privateKey == nil {
		return vaultDomain.ErrLocked
	}
	err := km.privateKey.Use(fn)
	if errors.Is(err, secret.ErrClosed) {
		return vaultDomain.ErrLocked
	}
	km.touch()
	return err
}

// touch re-arms the idle timer.
func (km *KeyManagerService) touch() {
	if km.idle <= 0 {
		return
	}
	km.idleMu.Lock()
	defer km.idleMu.Unlock()

	if km.idleTimer != nil {
		km.idleTimer.Stop()
	}
	km.idleSeq++
	seq := km.idleSeq
	km.idleTimer = km.clock.AfterFunc(km.idle, func() { km.expire(seq) })
}

func (km *KeyManagerService) stopIdleTimer() {
	km.idleMu.Lock()
	defer km.idleMu.Unlock()
	if km.idleTimer != nil {
		km.idleTimer.Stop()
		km.idleTimer = nil
	}
	km.idleSeq++
}

// expire locks the vault if no use happened since the timer identified by seq was armed.
func (km *KeyManagerService) expire(seq uint64) {
	km.idleMu.Lock()
	current := seq == km.idleSeq
	km.idleMu.Unlock()
	if !current {
		return
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	// A use may have re-armed the timer while we waited for mu.
	km.idleMu.Lock()
	current = seq == km.idleSeq
	km.idleMu.Unlock()
	if current && km.lockLocked() {
		km.logger.Info("vault locked after idle timeout", slog.Duration("idle_timeout", km.idle))
	}
}

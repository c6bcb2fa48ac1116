package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	vaultService "github.com/allisson/capvault/internal/vault/service"
)

// vaultUseCase implements VaultUseCase on top of a KeyManagerService.
type vaultUseCase struct {
	km       *KeyManagerService
	store    Store
	envelope *vaultService.Envelope
	logger   *slog.Logger

	flagsMu sync.Mutex
	flagged map[string]struct{}

	live atomic.Int64
}

// Encrypt seals plaintext for providerID at the next version without persisting it.
func (v *vaultUseCase) Encrypt(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialRecord, error) {
	if err := validateCredential(providerID, plaintext); err != nil {
		return nil, err
	}

	v.km.mu.RLock()
	defer v.km.mu.RUnlock()

	return v.encryptLocked(ctx, providerID, plaintext)
}

func (v *vaultUseCase) encryptLocked(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialRecord, error) {
	keyRing, err := v.km.keyRingLocked(ctx)
	if err != nil {
		return nil, err
	}

	version := 1
	existing, err := v.store.GetRecord(ctx, providerID)
	switch {
	case err == nil:
		version = existing.Version + 1
	case errors.Is(err, vaultDomain.ErrCredentialNotFound), errors.Is(err, vaultDomain.ErrCorrupt):
	default:
		return nil, err
	}

	return v.envelope.Encrypt(providerID, version, plaintext, keyRing.KeyPair())
}

// Decrypt opens record with the private key into a new session.
func (v *vaultUseCase) Decrypt(
	ctx context.Context,
	record *vaultDomain.CredentialRecord,
) (*vaultDomain.CredentialSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.km.mu.RLock()
	defer v.km.mu.RUnlock()

	if v.km.State() != vaultDomain.Unlocked {
		return nil, vaultDomain.ErrLocked
	}
	if v.km.keyRing != nil && record.KeyID != v.km.keyRing.KeyID {
		v.flag(record.ProviderID)
		return nil, fmt.Errorf("%w: encrypted under key %q", vaultDomain.ErrCorrupt, record.KeyID)
	}

	var plaintext []byte
	err := v.km.withIdentityLocked(func(identity []byte) error {
		var err error
		plaintext, err = v.envelope.Decrypt(record, identity)
		return err
	})
	if err != nil {
		if errors.Is(err, vaultDomain.ErrCorrupt) {
			v.flag(record.ProviderID)
			v.logger.Warn("credential failed verification",
				slog.String("provider", record.ProviderID),
				slog.String("key_id", record.KeyID),
			)
		}
		return nil, err
	}

	session, err := vaultDomain.NewCredentialSession(record, plaintext, func() { v.live.Add(-1) })
	if err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}
	v.live.Add(1)
	return session, nil
}

// Store encrypts and persists plaintext under the exclusive lock and zeroes plaintext.
func (v *vaultUseCase) Store(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialInfo, error) {
	defer cryptoDomain.Zero(plaintext)
	if err := validateCredential(providerID, plaintext); err != nil {
		return nil, err
	}

	v.km.mu.Lock()
	defer v.km.mu.Unlock()

	record, err := v.encryptLocked(ctx, providerID, plaintext)
	if err != nil {
		return nil, err
	}
	if err := v.store.SaveRecord(ctx, record); err != nil {
		return nil, err
	}
	v.unflag(providerID)

	v.logger.Info("credential stored",
		slog.String("provider", providerID),
		slog.Int("version", record.Version),
		slog.String("key_id", record.KeyID),
	)
	info := record.Info()
	return &info, nil
}

// Delete removes the credential of providerID.
func (v *vaultUseCase) Delete(ctx context.Context, providerID string) error {
	if err := vaultDomain.ValidateProviderID(providerID); err != nil {
		return err
	}

	v.km.mu.Lock()
	defer v.km.mu.Unlock()

	if err := v.store.DeleteRecord(ctx, providerID); err != nil {
		return err
	}
	v.unflag(providerID)
	v.logger.Info("credential deleted", slog.String("provider", providerID))
	return nil
}

// List returns metadata of every stored credential. Unreadable records, and records
// left under a previous key by rotation, are listed with NeedsReentry set.
func (v *vaultUseCase) List(ctx context.Context) ([]vaultDomain.CredentialInfo, error) {
	v.km.mu.RLock()
	records, err := v.store.ListRecords(ctx)
	var currentKeyID string
	if v.km.keyRing != nil {
		currentKeyID = v.km.keyRing.KeyID
	}
	v.km.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	infos := make([]vaultDomain.CredentialInfo, 0, len(records))
	for _, record := range records {
		if len(record.Tag) == 0 || (currentKeyID != "" && record.KeyID != currentKeyID) {
			v.flag(record.ProviderID)
		}
		info := record.Info()
		info.NeedsReentry = v.isFlagged(record.ProviderID)
		infos = append(infos, info)
	}
	return infos, nil
}

// Get returns the encrypted record of providerID.
func (v *vaultUseCase) Get(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	if err := vaultDomain.ValidateProviderID(providerID); err != nil {
		return nil, err
	}

	v.km.mu.RLock()
	defer v.km.mu.RUnlock()

	record, err := v.store.GetRecord(ctx, providerID)
	if errors.Is(err, vaultDomain.ErrCorrupt) {
		v.flag(providerID)
	}
	return record, err
}

// WithCredential decrypts the credential of providerID for the duration of fn. A locked
// vault answers ErrLocked without revealing whether providerID is stored.
func (v *vaultUseCase) WithCredential(
	ctx context.Context,
	providerID string,
	fn func(ctx context.Context, session *vaultDomain.CredentialSession) error,
) error {
	if v.km.State() != vaultDomain.Unlocked {
		return vaultDomain.ErrLocked
	}
	record, err := v.Get(ctx, providerID)
	if err != nil {
		return err
	}
	session, err := v.Decrypt(ctx, record)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	// Cancellation wipes the credential right away, even if fn is still running.
	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	return fn(ctx, session)
}

// NeedsReentry lists, sorted, the providers whose stored credential failed verification.
func (v *vaultUseCase) NeedsReentry() []string {
	v.flagsMu.Lock()
	defer v.flagsMu.Unlock()

	providers := make([]string, 0, len(v.flagged))
	for provider := range v.flagged {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers
}

// LiveSessions returns the number of open credential sessions.
func (v *vaultUseCase) LiveSessions() int {
	return int(v.live.Load())
}

func (v *vaultUseCase) flag(providerID string) {
	v.flagsMu.Lock()
	defer v.flagsMu.Unlock()
	v.flagged[providerID] = struct{}{}
}

func (v *vaultUseCase) unflag(providerID string) {
	v.flagsMu.Lock()
	defer v.flagsMu.Unlock()
	delete(v.flagged, providerID)
}

func (v *vaultUseCase) isFlagged(providerID string) bool {
	v.flagsMu.Lock()
	defer v.flagsMu.Unlock()
	_, ok := v.flagged[providerID]
	return ok
}

func validateCredential(providerID string, plaintext []byte) error {
	if err := vaultDomain.ValidateProviderID(providerID); err != nil {
		return err
	}
	if len(plaintext) == 0 {
		return vaultDomain.ErrEmptyCredential
	}
	return nil
}

// NewVaultUseCase creates a VaultUseCase sharing km's lock and keyring.
func NewVaultUseCase(
	km *KeyManagerService,
	store Store,
	envelope *vaultService.Envelope,
	logger *slog.Logger,
) VaultUseCase {
	return &vaultUseCase{
		km:       km,
		store:    store,
		envelope: envelope,
		logger:   logger,
		flagged:  make(map[string]struct{}),
	}
}

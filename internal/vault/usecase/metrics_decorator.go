package usecase

import (
	"context"
	"time"

	"github.com/allisson/capvault/internal/metrics"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// vaultUseCaseWithMetrics decorates VaultUseCase with metrics instrumentation.
type vaultUseCaseWithMetrics struct {
	next    VaultUseCase
	metrics metrics.BusinessMetrics
}

// NewVaultUseCaseWithMetrics wraps a VaultUseCase with metrics recording.
func NewVaultUseCaseWithMetrics(useCase VaultUseCase, m metrics.BusinessMetrics) VaultUseCase {
	return &vaultUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (v *vaultUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	v.metrics.RecordOperation(ctx, "vault", operation, status)
	v.metrics.RecordDuration(ctx, "vault", operation, time.Since(start), status)
}

// Encrypt records metrics for credential encryption.
func (v *vaultUseCaseWithMetrics) Encrypt(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialRecord, error) {
	start := time.Now()
	record, err := v.next.Encrypt(ctx, providerID, plaintext)
	v.record(ctx, "credential_encrypt", start, err)
	return record, err
}

// Decrypt records metrics for credential decryption.
func (v *vaultUseCaseWithMetrics) Decrypt(
	ctx context.Context,
	record *vaultDomain.CredentialRecord,
) (*vaultDomain.CredentialSession, error) {
	start := time.Now()
	session, err := v.next.Decrypt(ctx, record)
	v.record(ctx, "credential_decrypt", start, err)
	return session, err
}

// Store records metrics for credential storage.
func (v *vaultUseCaseWithMetrics) Store(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialInfo, error) {
	start := time.Now()
	info, err := v.next.Store(ctx, providerID, plaintext)
	v.record(ctx, "credential_store", start, err)
	return info, err
}

// Delete records metrics for credential deletion.
func (v *vaultUseCaseWithMetrics) Delete(ctx context.Context, providerID string) error {
	start := time.Now()
	err := v.next.Delete(ctx, providerID)
	v.record(ctx, "credential_delete", start, err)
	return err
}

// List records metrics for credential listing.
func (v *vaultUseCaseWithMetrics) List(ctx context.Context) ([]vaultDomain.CredentialInfo, error) {
	start := time.Now()
	infos, err := v.next.List(ctx)
	v.record(ctx, "credential_list", start, err)
	return infos, err
}

// Get records metrics for credential record retrieval.
func (v *vaultUseCaseWithMetrics) Get(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	start := time.Now()
	record, err := v.next.Get(ctx, providerID)
	v.record(ctx, "credential_get", start, err)
	return record, err
}

// WithCredential records metrics for scoped credential use, including the time spent in fn.
func (v *vaultUseCaseWithMetrics) WithCredential(
	ctx context.Context,
	providerID string,
	fn func(ctx context.Context, session *vaultDomain.CredentialSession) error,
) error {
	start := time.Now()
	err := v.next.WithCredential(ctx, providerID, fn)
	v.record(ctx, "credential_use", start, err)
	return err
}

func (v *vaultUseCaseWithMetrics) NeedsReentry() []string {
	return v.next.NeedsReentry()
}

func (v *vaultUseCaseWithMetrics) LiveSessions() int {
	return v.next.LiveSessions()
}

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	"github.com/allisson/capvault/internal/vault/usecase"
	usecaseMocks "github.com/allisson/capvault/internal/vault/usecase/mocks"
)

// mockBusinessMetrics is a local mock for metrics.BusinessMetrics to avoid dependency issues.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordAttempts(ctx context.Context, capability string, attempts int) {
	m.Called(ctx, capability, attempts)
}

func expectMetrics(m *mockBusinessMetrics, ctx context.Context, operation, status string) {
	m.On("RecordOperation", ctx, "vault", operation, status).Return().Once()
	m.On("RecordDuration", ctx, "vault", operation, mock.AnythingOfType("time.Duration"), status).
		Return().
		Once()
}

func TestVaultUseCaseWithMetrics(t *testing.T) {
	mockNext := &usecaseMocks.MockVaultUseCase{}
	mockMetrics := &mockBusinessMetrics{}
	uc := usecase.NewVaultUseCaseWithMetrics(mockNext, mockMetrics)

	ctx := context.Background()
	expectedErr := errors.New("error")

	t.Run("Store success", func(t *testing.T) {
		plaintext := []byte("sk-test")
		info := &vaultDomain.CredentialInfo{ProviderID: "provider-a", Version: 1}

		mockNext.On("Store", ctx, "provider-a", plaintext).Return(info, nil).Once()
		expectMetrics(mockMetrics, ctx, "credential_store", "success")

		res, err := uc.Store(ctx, "provider-a", plaintext)
		assert.NoError(t, err)
		assert.Equal(t, info, res)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Store error", func(t *testing.T) {
		plaintext := []byte("sk-test")

		mockNext.On("Store", ctx, "provider-a", plaintext).Return(nil, expectedErr).Once()
		expectMetrics(mockMetrics, ctx, "credential_store", "error")

		res, err := uc.Store(ctx, "provider-a", plaintext)
		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, res)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Decrypt error", func(t *testing.T) {
		record := &vaultDomain.CredentialRecord{ProviderID: "provider-a"}

		mockNext.On("Decrypt", ctx, record).Return(nil, vaultDomain.ErrLocked).Once()
		expectMetrics(mockMetrics, ctx, "credential_decrypt", "error")

		session, err := uc.Decrypt(ctx, record)
		assert.ErrorIs(t, err, vaultDomain.ErrLocked)
		assert.Nil(t, session)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Delete success", func(t *testing.T) {
		mockNext.On("Delete", ctx, "provider-a").Return(nil).Once()
		expectMetrics(mockMetrics, ctx, "credential_delete", "success")

		assert.NoError(t, uc.Delete(ctx, "provider-a"))
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("List success", func(t *testing.T) {
		infos := []vaultDomain.CredentialInfo{{ProviderID: "provider-a"}}

		mockNext.On("List", ctx).Return(infos, nil).Once()
		expectMetrics(mockMetrics, ctx, "credential_list", "success")

		res, err := uc.List(ctx)
		assert.NoError(t, err)
		assert.Equal(t, infos, res)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Get error", func(t *testing.T) {
		mockNext.On("Get", ctx, "missing").Return(nil, vaultDomain.ErrCredentialNotFound).Once()
		expectMetrics(mockMetrics, ctx, "credential_get", "error")

		res, err := uc.Get(ctx, "missing")
		assert.ErrorIs(t, err, vaultDomain.ErrCredentialNotFound)
		assert.Nil(t, res)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("WithCredential error", func(t *testing.T) {
		mockNext.On("WithCredential", ctx, "provider-a", mock.Anything).Return(nil, expectedErr).Once()
		expectMetrics(mockMetrics, ctx, "credential_use", "error")

		err := uc.WithCredential(ctx, "provider-a", func(context.Context, *vaultDomain.CredentialSession) error {
			return nil
		})
		assert.ErrorIs(t, err, expectedErr)
		mockNext.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("passthrough", func(t *testing.T) {
		mockNext.On("NeedsReentry").Return([]string{"provider-b"}).Once()
		mockNext.On("LiveSessions").Return(2).Once()

		assert.Equal(t, []string{"provider-b"}, uc.NeedsReentry())
		assert.Equal(t, 2, uc.LiveSessions())
		mockNext.AssertExpectations(t)
		mockMetrics.AssertNotCalled(t, "RecordOperation", mock.Anything, "vault", "needs_reentry", mock.Anything)
	})
}

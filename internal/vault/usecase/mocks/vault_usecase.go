// Package mocks provides mock implementations of the vault use cases for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// MockVaultUseCase is a mock implementation of VaultUseCase for testing.
type MockVaultUseCase struct {
	mock.Mock
}

// Encrypt mocks the Encrypt method of VaultUseCase.
func (m *MockVaultUseCase) Encrypt(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialRecord, error) {
	args := m.Called(ctx, providerID, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vaultDomain.CredentialRecord), args.Error(1)
}

// Decrypt mocks the Decrypt method of VaultUseCase.
func (m *MockVaultUseCase) Decrypt(
	ctx context.Context,
	record *vaultDomain.CredentialRecord,
) (*vaultDomain.CredentialSession, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vaultDomain.CredentialSession), args.Error(1)
}

// Store mocks the Store method of VaultUseCase.
func (m *MockVaultUseCase) Store(
	ctx context.Context,
	providerID string,
	plaintext []byte,
) (*vaultDomain.CredentialInfo, error) {
	args := m.Called(ctx, providerID, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vaultDomain.CredentialInfo), args.Error(1)
}

// Delete mocks the Delete method of VaultUseCase.
func (m *MockVaultUseCase) Delete(ctx context.Context, providerID string) error {
	args := m.Called(ctx, providerID)
	return args.Error(0)
}

// List mocks the List method of VaultUseCase.
func (m *MockVaultUseCase) List(ctx context.Context) ([]vaultDomain.CredentialInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vaultDomain.CredentialInfo), args.Error(1)
}

// Get mocks the Get method of VaultUseCase.
func (m *MockVaultUseCase) Get(ctx context.Context, providerID string) (*vaultDomain.CredentialRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vaultDomain.CredentialRecord), args.Error(1)
}

// WithCredential mocks the WithCredential method of VaultUseCase. When the first return
// value is a *CredentialSession, fn is invoked with it and the session is closed after.
func (m *MockVaultUseCase) WithCredential(
	ctx context.Context,
	providerID string,
	fn func(ctx context.Context, session *vaultDomain.CredentialSession) error,
) error {
	args := m.Called(ctx, providerID, fn)
	if session, ok := args.Get(0).(*vaultDomain.CredentialSession); ok {
		defer func() { _ = session.Close() }()
		return fn(ctx, session)
	}
	return args.Error(1)
}

// NeedsReentry mocks the NeedsReentry method of VaultUseCase.
func (m *MockVaultUseCase) NeedsReentry() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

// LiveSessions mocks the LiveSessions method of VaultUseCase.
func (m *MockVaultUseCase) LiveSessions() int {
	args := m.Called()
	return args.Int(0)
}

// MockKeyManager is a mock implementation of KeyManager for testing.
type MockKeyManager struct {
	mock.Mock
}

// Init mocks the Init method of KeyManager.
func (m *MockKeyManager) Init(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error) {
	args := m.Called(ctx, passphrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KeyPair), args.Error(1)
}

// Unlock mocks the Unlock method of KeyManager.
func (m *MockKeyManager) Unlock(ctx context.Context, passphrase []byte) (*cryptoDomain.KeyPair, error) {
	args := m.Called(ctx, passphrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KeyPair), args.Error(1)
}

// Lock mocks the Lock method of KeyManager.
func (m *MockKeyManager) Lock() {
	m.Called()
}

// Rotate mocks the Rotate method of KeyManager.
func (m *MockKeyManager) Rotate(ctx context.Context, passphrase, newPassphrase []byte) (*cryptoDomain.KeyPair, error) {
	args := m.Called(ctx, passphrase, newPassphrase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KeyPair), args.Error(1)
}

// State mocks the State method of KeyManager.
func (m *MockKeyManager) State() vaultDomain.KeyState {
	args := m.Called()
	return args.Get(0).(vaultDomain.KeyState)
}

// KeyPair mocks the KeyPair method of KeyManager.
func (m *MockKeyManager) KeyPair(ctx context.Context) (*cryptoDomain.KeyPair, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cryptoDomain.KeyPair), args.Error(1)
}

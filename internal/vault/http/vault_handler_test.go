package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	"github.com/allisson/capvault/internal/vault/http/dto"
	"github.com/allisson/capvault/internal/vault/usecase/mocks"
)

func setupTestHandler(t *testing.T) (*VaultHandler, *mocks.MockKeyManager, *mocks.MockVaultUseCase) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	keyManager := &mocks.MockKeyManager{}
	vaultUseCase := &mocks.MockVaultUseCase{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Cleanup(func() {
		keyManager.AssertExpectations(t)
		vaultUseCase.AssertExpectations(t)
	})
	return NewVaultHandler(keyManager, vaultUseCase, logger), keyManager, vaultUseCase
}

func createTestContext(method, url string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewBuffer(raw)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, url, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func bytesEqual(want string) any {
	return mock.MatchedBy(func(b []byte) bool { return string(b) == want })
}

func TestVaultHandler_UnlockHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, keyManager, _ := setupTestHandler(t)

		keyManager.On("Unlock", mock.Anything, bytesEqual("correct horse")).
			Return(&cryptoDomain.KeyPair{KeyID: "0123456789abcdef", PublicKey: "age1test"}, nil).Once()
		keyManager.On("State").Return(vaultDomain.Unlocked).Once()

		c, w := createTestContext(http.MethodPost, "/v1/unlock", dto.UnlockRequest{Passphrase: []byte("correct horse")})
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.KeyStateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "unlocked", response.State)
		assert.Equal(t, "0123456789abcdef", response.KeyID)
		assert.Equal(t, "age1test", response.PublicKey)
	})

	t.Run("Error_WrongPassphrase", func(t *testing.T) {
		handler, keyManager, _ := setupTestHandler(t)

		keyManager.On("Unlock", mock.Anything, mock.Anything).Return(nil, vaultDomain.ErrWrongPassphrase).Once()

		c, w := createTestContext(http.MethodPost, "/v1/unlock", dto.UnlockRequest{Passphrase: []byte("nope")})
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotContains(t, w.Body.String(), "nope")
	})

	t.Run("Error_Throttled", func(t *testing.T) {
		handler, keyManager, _ := setupTestHandler(t)

		keyManager.On("Unlock", mock.Anything, mock.Anything).Return(nil, vaultDomain.ErrUnlockThrottled).Once()

		c, w := createTestContext(http.MethodPost, "/v1/unlock", dto.UnlockRequest{Passphrase: []byte("again")})
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
	})

	t.Run("Error_KeyRingCorrupt", func(t *testing.T) {
		handler, keyManager, _ := setupTestHandler(t)

		keyManager.On("Unlock", mock.Anything, mock.Anything).Return(nil, vaultDomain.ErrKeyRingCorrupt).Once()

		c, w := createTestContext(http.MethodPost, "/v1/unlock", dto.UnlockRequest{Passphrase: []byte("pass")})
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Error_EmptyPassphrase", func(t *testing.T) {
		handler, _, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/unlock", dto.UnlockRequest{})
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_InvalidJSON", func(t *testing.T) {
		handler, _, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPost, "/v1/unlock", "{")
		handler.UnlockHandler(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVaultHandler_LockHandler(t *testing.T) {
	handler, keyManager, _ := setupTestHandler(t)

	keyManager.On("Lock").Return().Once()
	keyManager.On("State").Return(vaultDomain.Locked).Once()

	c, w := createTestContext(http.MethodPost, "/v1/lock", nil)
	handler.LockHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"locked"}`, w.Body.String())
}

func TestVaultHandler_StoreCredentialHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)
		createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		vaultUseCase.On("Store", mock.Anything, "provider-a", bytesEqual("sk-test-1234")).
			Return(&vaultDomain.CredentialInfo{
				ProviderID: "provider-a",
				Algorithm:  cryptoDomain.AESGCM,
				KeyID:      "0123456789abcdef",
				Version:    1,
				CreatedAt:  createdAt,
			}, nil).Once()

		c, w := createTestContext(http.MethodPut, "/v1/credentials/provider-a",
			dto.StoreCredentialRequest{Value: []byte("sk-test-1234")})
		c.Params = gin.Params{{Key: "provider", Value: "provider-a"}}
		handler.StoreCredentialHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "sk-test-1234")

		var response dto.CredentialResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "provider-a", response.ProviderID)
		assert.Equal(t, 1, response.Version)
		assert.Equal(t, createdAt, response.CreatedAt)
	})

	t.Run("Error_InvalidProvider", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)

		vaultUseCase.On("Store", mock.Anything, "Bad Provider", mock.Anything).
			Return(nil, vaultDomain.ErrInvalidProviderID).Once()

		c, w := createTestContext(http.MethodPut, "/v1/credentials/Bad%20Provider",
			dto.StoreCredentialRequest{Value: []byte("x")})
		c.Params = gin.Params{{Key: "provider", Value: "Bad Provider"}}
		handler.StoreCredentialHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Error_EmptyValue", func(t *testing.T) {
		handler, _, _ := setupTestHandler(t)

		c, w := createTestContext(http.MethodPut, "/v1/credentials/provider-a", dto.StoreCredentialRequest{})
		c.Params = gin.Params{{Key: "provider", Value: "provider-a"}}
		handler.StoreCredentialHandler(c)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestVaultHandler_DeleteCredentialHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)

		vaultUseCase.On("Delete", mock.Anything, "provider-a").Return(nil).Once()

		c, w := createTestContext(http.MethodDelete, "/v1/credentials/provider-a", nil)
		c.Params = gin.Params{{Key: "provider", Value: "provider-a"}}
		handler.DeleteCredentialHandler(c)
		c.Writer.WriteHeaderNow()

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)

		vaultUseCase.On("Delete", mock.Anything, "provider-z").Return(vaultDomain.ErrCredentialNotFound).Once()

		c, w := createTestContext(http.MethodDelete, "/v1/credentials/provider-z", nil)
		c.Params = gin.Params{{Key: "provider", Value: "provider-z"}}
		handler.DeleteCredentialHandler(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestVaultHandler_ListCredentialsHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)

		vaultUseCase.On("List", mock.Anything).Return([]vaultDomain.CredentialInfo{
			{ProviderID: "provider-a", Version: 2},
			{ProviderID: "provider-b", Version: 1, NeedsReentry: true},
		}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/credentials", nil)
		handler.ListCredentialsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.ListCredentialsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Len(t, response.Data, 2)
		assert.Equal(t, "provider-a", response.Data[0].ProviderID)
		assert.True(t, response.Data[1].NeedsReentry)
	})

	t.Run("Empty", func(t *testing.T) {
		handler, _, vaultUseCase := setupTestHandler(t)

		vaultUseCase.On("List", mock.Anything).Return([]vaultDomain.CredentialInfo{}, nil).Once()

		c, w := createTestContext(http.MethodGet, "/v1/credentials", nil)
		handler.ListCredentialsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})
}

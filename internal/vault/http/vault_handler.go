// Package http provides HTTP handlers for unlocking the vault and managing stored
// provider credentials. Credential values are accepted but never returned.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	"github.com/allisson/capvault/internal/httputil"
	customValidation "github.com/allisson/capvault/internal/validation"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
	"github.com/allisson/capvault/internal/vault/http/dto"
	vaultUseCase "github.com/allisson/capvault/internal/vault/usecase"
)

// VaultHandler handles HTTP requests for the key manager and the credential vault.
type VaultHandler struct {
	keyManager   vaultUseCase.KeyManager
	vaultUseCase vaultUseCase.VaultUseCase
	logger       *slog.Logger
}

// NewVaultHandler creates a new vault handler with required dependencies.
func NewVaultHandler(
	keyManager vaultUseCase.KeyManager,
	vaultUseCase vaultUseCase.VaultUseCase,
	logger *slog.Logger,
) *VaultHandler {
	return &VaultHandler{
		keyManager:   keyManager,
		vaultUseCase: vaultUseCase,
		logger:       logger,
	}
}

// UnlockHandler loads the private key into protected memory.
// POST /v1/unlock - Returns 200 OK with the key state and key id.
func (h *VaultHandler) UnlockHandler(c *gin.Context) {
	var req dto.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(req.Passphrase)

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	keyPair, err := h.keyManager.Unlock(c.Request.Context(), req.Passphrase)
	if err != nil {
		if errors.Is(err, vaultDomain.ErrUnlockThrottled) {
			c.Header("Retry-After", "60")
		}
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKeyState(h.keyManager.State(), keyPair))
}

// LockHandler purges the private key from memory. Locking a locked vault succeeds.
// POST /v1/lock - Returns 200 OK with the key state.
func (h *VaultHandler) LockHandler(c *gin.Context) {
	h.keyManager.Lock()
	c.JSON(http.StatusOK, dto.MapKeyState(h.keyManager.State(), nil))
}

// StoreCredentialHandler encrypts and stores the credential of a provider, replacing any
// previous one. It only needs the public key, so it works while the vault is locked.
// PUT /v1/credentials/:provider - Returns 200 OK with credential metadata.
func (h *VaultHandler) StoreCredentialHandler(c *gin.Context) {
	providerID := c.Param("provider")

	var req dto.StoreCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	defer cryptoDomain.Zero(req.Value)

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	info, err := h.vaultUseCase.Store(c.Request.Context(), providerID, req.Value)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCredentialInfo(*info))
}

// DeleteCredentialHandler removes the credential of a provider.
// DELETE /v1/credentials/:provider - Returns 204 No Content.
func (h *VaultHandler) DeleteCredentialHandler(c *gin.Context) {
	if err := h.vaultUseCase.Delete(c.Request.Context(), c.Param("provider")); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCredentialsHandler lists stored credential metadata.
// GET /v1/credentials - Returns 200 OK.
func (h *VaultHandler) ListCredentialsHandler(c *gin.Context) {
	infos, err := h.vaultUseCase.List(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapCredentialInfos(infos))
}

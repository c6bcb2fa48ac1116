package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/capvault/internal/errors"
)

func TestHandleErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: apperrors.Wrap(apperrors.ErrNotFound, "credential not found"), wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "conflict", err: apperrors.ErrConflict, wantStatus: http.StatusConflict, wantCode: "conflict"},
		{name: "invalid input", err: apperrors.Wrap(apperrors.ErrInvalidInput, "bad provider"), wantStatus: http.StatusUnprocessableEntity, wantCode: "invalid_input"},
		{name: "unauthorized", err: apperrors.ErrUnauthorized, wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "locked", err: fmt.Errorf("dispatch: %w", apperrors.Wrap(apperrors.ErrLocked, "vault is locked")), wantStatus: http.StatusLocked, wantCode: "vault_locked"},
		{name: "forbidden", err: apperrors.ErrForbidden, wantStatus: http.StatusForbidden, wantCode: "forbidden"},
		{name: "too many requests", err: apperrors.ErrTooManyRequests, wantStatus: http.StatusTooManyRequests, wantCode: "too_many_requests"},
		{name: "integrity", err: apperrors.ErrIntegrity, wantStatus: http.StatusConflict, wantCode: "integrity_error"},
		{name: "unavailable", err: apperrors.ErrUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "unavailable"},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			HandleErrorGin(c, tt.err, logger)

			assert.Equal(t, tt.wantStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.wantCode, response.Error)
			assert.NotContains(t, response.Message, "boom")
		})
	}
}

func TestHandleErrorWithMessageGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/ask", nil)

	HandleErrorWithMessageGin(c, apperrors.ErrLocked, "Unlock the vault first.", nil)

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.JSONEq(t, `{"error":"vault_locked","message":"Unlock the vault first."}`, w.Body.String())
}

func TestHandleErrorGin_NilError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	HandleErrorGin(c, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationErrorGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	HandleValidationErrorGin(c, errors.New("message: cannot be blank."), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"validation_error","message":"message: cannot be blank."}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	HandleBadRequestGin(c, errors.New("unexpected EOF"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// Package http provides HTTP handlers for asking the assistant and reading its status
// and capability health.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
	"github.com/allisson/capvault/internal/assistant/http/dto"
	assistantUseCase "github.com/allisson/capvault/internal/assistant/usecase"
	"github.com/allisson/capvault/internal/httputil"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	orchestratorUseCase "github.com/allisson/capvault/internal/orchestrator/usecase"
	customValidation "github.com/allisson/capvault/internal/validation"
)

// maxConversations bounds the conversations kept for API callers.
const maxConversations = 1024

// AssistantHandler handles HTTP requests for the assistant.
type AssistantHandler struct {
	assistant     assistantUseCase.Assistant
	supervisor    orchestratorUseCase.Supervisor
	conversations *conversations
	logger        *slog.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(
	assistant assistantUseCase.Assistant,
	supervisor orchestratorUseCase.Supervisor,
	logger *slog.Logger,
) *AssistantHandler {
	convs, err := newConversations(maxConversations)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &AssistantHandler{
		assistant:     assistant,
		supervisor:    supervisor,
		conversations: convs,
		logger:        logger,
	}
}

// AskHandler routes one input and returns the reply. Errors carry a message that tells
// the caller what to do next.
// POST /v1/ask - Returns 200 OK with the reply.
func (h *AssistantHandler) AskHandler(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	conv := h.conversations.get(req.ConversationID)
	reply, err := h.assistant.Handle(c.Request.Context(), conv, req.Message)
	if err != nil {
		httputil.HandleErrorWithMessageGin(c, err, assistantDomain.Explain(err), h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapReply(req.ConversationID, reply))
}

// StatusHandler reports vault, credential and registry status.
// GET /v1/status - Returns 200 OK.
func (h *AssistantHandler) StatusHandler(c *gin.Context) {
	status, err := h.assistant.Status(c.Request.Context())
	if err != nil {
		httputil.HandleErrorWithMessageGin(c, err, assistantDomain.Explain(err), h.logger)
		return
	}
	c.JSON(http.StatusOK, status)
}

// HealthHandler probes every capability.
// GET /v1/health - Returns 200 OK unless every capability is unhealthy, then 503.
func (h *AssistantHandler) HealthHandler(c *gin.Context) {
	report, err := h.supervisor.Health(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	statusCode := http.StatusOK
	if report.Status == orchestratorDomain.Unhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, report)
}

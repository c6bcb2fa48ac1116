// Package http provides HTTP handlers for listing and reloading registered capabilities.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	capabilityUseCase "github.com/allisson/capvault/internal/capability/usecase"
	"github.com/allisson/capvault/internal/httputil"
	routerDomain "github.com/allisson/capvault/internal/router/domain"
)

// RoutingTable reloads the routing table, which refers to capabilities by name.
type RoutingTable interface {
	Refresh(ctx context.Context) (*routerDomain.Table, error)
}

// ListCapabilitiesResponse is the active capability set.
type ListCapabilitiesResponse struct {
	Version  uint64                        `json:"version"`
	Source   string                        `json:"source"`
	LoadedAt time.Time                     `json:"loaded_at"`
	Data     []capabilityDomain.Descriptor `json:"data"`
	// RoutingVersion is set by a refresh, which reloads the routing table too.
	RoutingVersion uint64 `json:"routing_version,omitempty"`
}

func mapSet(set *capabilityDomain.Set) ListCapabilitiesResponse {
	data := set.List()
	if data == nil {
		data = []capabilityDomain.Descriptor{}
	}
	return ListCapabilitiesResponse{
		Version:  set.Version(),
		Source:   set.Source(),
		LoadedAt: set.LoadedAt(),
		Data:     data,
	}
}

// CapabilityHandler handles HTTP requests for the capability registry.
type CapabilityHandler struct {
	registry capabilityUseCase.Registry
	routing  RoutingTable
	logger   *slog.Logger
}

// NewCapabilityHandler creates a new capability handler.
func NewCapabilityHandler(
	registry capabilityUseCase.Registry,
	routing RoutingTable,
	logger *slog.Logger,
) *CapabilityHandler {
	return &CapabilityHandler{registry: registry, routing: routing, logger: logger}
}

// ListHandler returns the active capability set.
// GET /v1/capabilities - Returns 200 OK.
func (h *CapabilityHandler) ListHandler(c *gin.Context) {
	c.JSON(http.StatusOK, mapSet(h.registry.Snapshot()))
}

// RefreshHandler rescans the manifest source, then reloads the routing table. An invalid
// manifest or table leaves the active one in place and is reported as invalid input.
// POST /v1/capabilities/refresh - Returns 200 OK with the new set.
func (h *CapabilityHandler) RefreshHandler(c *gin.Context) {
	set, err := h.registry.Refresh(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	table, err := h.routing.Refresh(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	response := mapSet(set)
	response.RoutingVersion = table.Version()
	c.JSON(http.StatusOK, response)
}

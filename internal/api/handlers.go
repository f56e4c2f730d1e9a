package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NikhilSetiya/governance-orchestrator/internal/orchestrator"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// Service is the orchestrator surface the HTTP API exposes
type Service interface {
	Orchestrate(ctx context.Context, req *types.Request) *types.Decision
	Analyze(req *types.Request) types.ComplexityScore
	Capabilities() []string
	Stats() orchestrator.Stats
	Health(ctx context.Context) orchestrator.HealthReport
	InvalidateCache(ctx context.Context, pattern string) (int, error)
	InvalidateTenant(ctx context.Context, tenant string) (int, error)
	ClearCache(ctx context.Context) error
	ResetCircuitBreakers() []string
	ResetCircuitBreaker(name string) bool
}

// Handler serves the orchestration endpoints
type Handler struct {
	service Service
}

// NewHandler creates a new handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Orchestrate handles POST /api/v1/orchestrate
func (h *Handler) Orchestrate(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	SuccessResponse(c, h.service.Orchestrate(c.Request.Context(), req))
}

// Analyze handles POST /api/v1/analyze
func (h *Handler) Analyze(c *gin.Context) {
	req, ok := h.bindRequest(c)
	if !ok {
		return
	}
	SuccessResponse(c, h.service.Analyze(req))
}

func (h *Handler) bindRequest(c *gin.Context) (*types.Request, bool) {
	var body OrchestrateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(body.Message) == "" {
		BadRequestResponse(c, "message is required")
		return nil, false
	}

	tenant := body.TenantID
	if authed, ok := TenantFromContext(c); ok {
		tenant = authed
	}

	return &types.Request{
		ID:      body.ID,
		Message: body.Message,
		Context: types.RequestContext{
			TenantID:        tenant,
			Tool:            body.Tool,
			Clients:         body.Clients,
			Industry:        body.Industry,
			Deadline:        body.Deadline,
			DataSensitivity: body.DataSensitivity,
			Metadata:        body.Metadata,
		},
	}, true
}

// Capabilities handles GET /api/v1/capabilities
func (h *Handler) Capabilities(c *gin.Context) {
	SuccessResponse(c, gin.H{"capabilities": h.service.Capabilities()})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(c *gin.Context) {
	SuccessResponse(c, h.service.Stats())
}

// InvalidateCache handles POST /api/v1/cache/invalidate. Tenant-scoped
// tokens may only invalidate their own tenant.
func (h *Handler) InvalidateCache(c *gin.Context) {
	var body InvalidateCacheRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	var (
		removed int
		err     error
	)
	if authed, ok := TenantFromContext(c); ok {
		if body.Pattern != "" || (body.TenantID != "" && body.TenantID != authed) {
			ErrorResponseFromError(c, errors.NewAuthorizationError("tenant tokens may only invalidate their own tenant"))
			return
		}
		removed, err = h.service.InvalidateTenant(c.Request.Context(), authed)
	} else {
		switch {
		case body.Pattern != "":
			removed, err = h.service.InvalidateCache(c.Request.Context(), body.Pattern)
		case body.TenantID != "":
			removed, err = h.service.InvalidateTenant(c.Request.Context(), body.TenantID)
		default:
			BadRequestResponse(c, "pattern or tenant_id is required")
			return
		}
	}
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"removed": removed})
}

// ClearCache handles DELETE /api/v1/cache
func (h *Handler) ClearCache(c *gin.Context) {
	if _, ok := TenantFromContext(c); ok {
		ErrorResponseFromError(c, errors.NewAuthorizationError("tenant tokens cannot clear the whole cache"))
		return
	}
	if err := h.service.ClearCache(c.Request.Context()); err != nil {
		ErrorResponseFromError(c, err)
		return
	}
	SuccessResponse(c, gin.H{"cleared": true})
}

// ResetBreakers handles POST /api/v1/breakers/reset
func (h *Handler) ResetBreakers(c *gin.Context) {
	var body ResetBreakersRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			BadRequestResponse(c, "Invalid request body: "+err.Error())
			return
		}
	}

	if body.Capability == "" {
		SuccessResponse(c, gin.H{"reset": h.service.ResetCircuitBreakers()})
		return
	}
	if !h.service.ResetCircuitBreaker(body.Capability) {
		ErrorResponseFromError(c, errors.NewNotFoundError("circuit breaker "+body.Capability))
		return
	}
	SuccessResponse(c, gin.H{"reset": []string{body.Capability}})
}

// Health handles GET /health; an unhealthy engine answers 503
func (h *Handler) Health(c *gin.Context) {
	report := h.service.Health(c.Request.Context())
	status := http.StatusOK
	if report.Status == orchestrator.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respond(c, status, report, nil)
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

func respond(c *gin.Context, status int, data interface{}, apiErr *APIError) {
	c.JSON(status, APIResponse{
		Success:   apiErr == nil,
		Data:      data,
		Error:     apiErr,
		RequestID: requestID(c),
		Timestamp: time.Now(),
	})
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, data, nil)
}

// ErrorResponseFromError sends an error response based on the error type
func ErrorResponseFromError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		respond(c, http.StatusInternalServerError, nil, &APIError{
			Code:    "UNKNOWN_ERROR",
			Message: "An unknown error occurred",
		})
		return
	}

	apiErr := &APIError{Code: appErr.Code, Message: appErr.Message}
	if len(appErr.Details) > 0 {
		apiErr.Details = make(map[string]interface{}, len(appErr.Details))
		for k, v := range appErr.Details {
			apiErr.Details[k] = v
		}
	}
	respond(c, StatusForError(appErr.Type), nil, apiErr)
}

// StatusForError maps an error class to an HTTP status
func StatusForError(t errors.ErrorType) int {
	switch t {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case errors.ErrorTypeAuthorization:
		return http.StatusForbidden
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorTypeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, nil, &APIError{Code: "BAD_REQUEST", Message: message})
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c *gin.Context, message string) {
	respond(c, http.StatusUnauthorized, nil, &APIError{Code: "UNAUTHORIZED", Message: message})
}

// NotFoundResponse sends a 404 Not Found response
func NotFoundResponse(c *gin.Context, message string) {
	respond(c, http.StatusNotFound, nil, &APIError{Code: "NOT_FOUND", Message: message})
}

// DTO types for API requests and responses

// OrchestrateRequest is the body of POST /api/v1/orchestrate
type OrchestrateRequest struct {
	ID              string            `json:"id"`
	Message         string            `json:"message" binding:"required"`
	TenantID        string            `json:"tenant_id"`
	Tool            string            `json:"tool"`
	Clients         []string          `json:"clients"`
	Industry        string            `json:"industry"`
	Deadline        *time.Time        `json:"deadline"`
	DataSensitivity []string          `json:"data_sensitivity"`
	Metadata        map[string]string `json:"metadata"`
}

// InvalidateCacheRequest is the body of POST /api/v1/cache/invalidate; one
// of Pattern or TenantID is required
type InvalidateCacheRequest struct {
	Pattern  string `json:"pattern"`
	TenantID string `json:"tenant_id"`
}

// ResetBreakersRequest is the optional body of POST /api/v1/breakers/reset;
// an empty capability resets every breaker
type ResetBreakersRequest struct {
	Capability string `json:"capability"`
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/NikhilSetiya/governance-orchestrator/internal/orchestrator"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/config"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

const testSecret = "test-secret"

// MockService is a mock implementation of Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Orchestrate(ctx context.Context, req *types.Request) *types.Decision {
	args := m.Called(ctx, req)
	return args.Get(0).(*types.Decision)
}

func (m *MockService) Analyze(req *types.Request) types.ComplexityScore {
	args := m.Called(req)
	return args.Get(0).(types.ComplexityScore)
}

func (m *MockService) Capabilities() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockService) Stats() orchestrator.Stats {
	args := m.Called()
	return args.Get(0).(orchestrator.Stats)
}

func (m *MockService) Health(ctx context.Context) orchestrator.HealthReport {
	args := m.Called(ctx)
	return args.Get(0).(orchestrator.HealthReport)
}

func (m *MockService) InvalidateCache(ctx context.Context, pattern string) (int, error) {
	args := m.Called(ctx, pattern)
	return args.Int(0), args.Error(1)
}

func (m *MockService) InvalidateTenant(ctx context.Context, tenant string) (int, error) {
	args := m.Called(ctx, tenant)
	return args.Int(0), args.Error(1)
}

func (m *MockService) ClearCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockService) ResetCircuitBreakers() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockService) ResetCircuitBreaker(name string) bool {
	args := m.Called(name)
	return args.Bool(0)
}

func setupTestRouter(authEnabled bool) (*gin.Engine, *MockService) {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Auth:    config.AuthConfig{Enabled: authEnabled, JWTSecret: testSecret, Issuer: "governance"},
		Metrics: config.MetricsConfig{Enabled: true},
		Server:  config.ServerConfig{AllowedOrigins: []string{"*"}},
	}
	service := &MockService{}
	m := metrics.NewMetrics(metrics.DefaultConfig())
	return NewRouter(cfg, service, m, nil), service
}

func doRequest(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signToken(t *testing.T, tenant, issuer string, expiresIn time.Duration) string {
	t.Helper()
	claims := JWTClaims{
		TenantID: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestOrchestrate(t *testing.T) {
	router, service := setupTestRouter(false)

	service.On("Orchestrate", mock.Anything, mock.MatchedBy(func(req *types.Request) bool {
		return req.Message == "Review this post" && req.Context.TenantID == "acme" && req.Context.Tool == "midjourney"
	})).Return(&types.Decision{
		RequestID:  "orch_1_abc",
		Status:     types.StatusApproved,
		Confidence: 0.9,
	})

	w := doRequest(router, http.MethodPost, "/api/v1/orchestrate", OrchestrateRequest{
		Message:  "Review this post",
		TenantID: "acme",
		Tool:     "midjourney",
	}, "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "approved", data["status"])
	assert.Equal(t, "orch_1_abc", data["request_id"])
	service.AssertExpectations(t)
}

func TestOrchestrate_InvalidBody(t *testing.T) {
	router, service := setupTestRouter(false)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing message", map[string]string{"tenant_id": "acme"}},
		{"blank message", map[string]string{"message": "   "}},
		{"not json", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/v1/orchestrate", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
		})
	}
	service.AssertNotCalled(t, "Orchestrate", mock.Anything, mock.Anything)
}

func TestAuth(t *testing.T) {
	router, service := setupTestRouter(true)
	service.On("Capabilities").Return([]string{"policy"})

	tests := []struct {
		name     string
		token    string
		expected int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"expired token", signToken(t, "acme", "governance", -time.Minute), http.StatusUnauthorized},
		{"wrong issuer", signToken(t, "acme", "someone-else", time.Hour), http.StatusUnauthorized},
		{"valid token", signToken(t, "acme", "governance", time.Hour), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, "/api/v1/capabilities", nil, tt.token)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestAuth_TenantClaimOverridesBody(t *testing.T) {
	router, service := setupTestRouter(true)

	service.On("Orchestrate", mock.Anything, mock.MatchedBy(func(req *types.Request) bool {
		return req.Context.TenantID == "acme"
	})).Return(&types.Decision{Status: types.StatusApproved})

	token := signToken(t, "acme", "governance", time.Hour)
	w := doRequest(router, http.MethodPost, "/api/v1/orchestrate", OrchestrateRequest{
		Message:  "Review this post",
		TenantID: "globex",
	}, token)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestInvalidateCache(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("InvalidateCache", mock.Anything, "decision:*").Return(4, nil)
	service.On("InvalidateTenant", mock.Anything, "acme").Return(2, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{Pattern: "decision:*"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4.0, decode(t, w).Data.(map[string]interface{})["removed"])

	w = doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{TenantID: "acme"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w).Data.(map[string]interface{})["removed"])

	w = doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateCache_ServiceError(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("InvalidateCache", mock.Anything, "[").Return(0, errors.NewValidationError("invalid cache pattern"))

	w := doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{Pattern: "["}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestInvalidateCache_TenantScoped(t *testing.T) {
	router, service := setupTestRouter(true)
	service.On("InvalidateTenant", mock.Anything, "acme").Return(1, nil)
	token := signToken(t, "acme", "governance", time.Hour)

	w := doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{}, token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{Pattern: "decision:*"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/cache/invalidate", InvalidateCacheRequest{TenantID: "globex"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/cache", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	service.AssertNotCalled(t, "ClearCache", mock.Anything)
}

func TestClearCache(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("ClearCache", mock.Anything).Return(nil).Once()

	w := doRequest(router, http.MethodDelete, "/api/v1/cache", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}

func TestResetBreakers(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("ResetCircuitBreakers").Return([]string{"audit", "policy"})
	service.On("ResetCircuitBreaker", "policy").Return(true)
	service.On("ResetCircuitBreaker", "ghost").Return(false)

	w := doRequest(router, http.MethodPost, "/api/v1/breakers/reset", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"audit", "policy"}, decode(t, w).Data.(map[string]interface{})["reset"])

	w = doRequest(router, http.MethodPost, "/api/v1/breakers/reset", ResetBreakersRequest{Capability: "policy"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/breakers/reset", ResetBreakersRequest{Capability: "ghost"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("Stats").Return(orchestrator.Stats{Requests: orchestrator.RequestStats{Total: 7, CacheHits: 2}})

	w := doRequest(router, http.MethodGet, "/api/v1/stats", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	requests := decode(t, w).Data.(map[string]interface{})["requests"].(map[string]interface{})
	assert.Equal(t, 7.0, requests["total"])
}

func TestAnalyze(t *testing.T) {
	router, service := setupTestRouter(false)
	service.On("Analyze", mock.Anything).Return(types.ComplexityScore{Level: types.LevelComplex, Score: 5.5})

	w := doRequest(router, http.MethodPost, "/api/v1/analyze", OrchestrateRequest{Message: "urgent launch"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "complex", decode(t, w).Data.(map[string]interface{})["level"])
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status   string
		expected int
	}{
		{orchestrator.HealthHealthy, http.StatusOK},
		{orchestrator.HealthDegraded, http.StatusOK},
		{orchestrator.HealthUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			router, service := setupTestRouter(true)
			service.On("Health", mock.Anything).Return(orchestrator.HealthReport{Status: tt.status})

			// no token needed
			w := doRequest(router, http.MethodGet, "/health", nil, "")
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(false)

	w := doRequest(router, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoRoute(t *testing.T) {
	router, _ := setupTestRouter(false)

	w := doRequest(router, http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForError(errors.ErrorTypeValidation))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForError(errors.ErrorTypeCircuitOpen))
	assert.Equal(t, http.StatusGatewayTimeout, StatusForError(errors.ErrorTypeTimeout))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.ErrorTypeUnknown))
}

package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/types"
)

// maxResponseBytes bounds how much of a capability response is read
const maxResponseBytes = 1 << 20

// HTTPConfig describes a capability served over HTTP
type HTTPConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url"`
	HealthURL string            `yaml:"health_url"`
	Timeout   time.Duration     `yaml:"timeout"`
	Headers   map[string]string `yaml:"headers"`
}

// HTTPCapability invokes a remote capability by POSTing the input as JSON and
// decoding the output from the response body
type HTTPCapability struct {
	config     HTTPConfig
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPCapability creates an HTTP capability. A nil client gets one with
// the configured timeout.
func NewHTTPCapability(config HTTPConfig, client *http.Client) (*HTTPCapability, error) {
	if config.Name == "" {
		return nil, errors.NewValidationError("http capability name is required")
	}
	if !strings.HasPrefix(config.URL, "http://") && !strings.HasPrefix(config.URL, "https://") {
		return nil, errors.NewValidationError(fmt.Sprintf("http capability %s needs an http(s) url", config.Name))
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &HTTPCapability{
		config:     config,
		httpClient: client,
		logger:     logging.GetLogger(),
	}, nil
}

// Name implements capability.Capability
func (h *HTTPCapability) Name() string {
	return h.config.Name
}

// Invoke implements capability.Capability
func (h *HTTPCapability) Invoke(ctx context.Context, input types.CapabilityInput) (*types.CapabilityOutput, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, errors.NewCapabilityError(h.config.Name, errors.ErrorTypeValidation, "failed to encode capability input").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewCapabilityError(h.config.Name, errors.ErrorTypeValidation, "failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", input.RequestID)
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, h.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, h.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Debug("Capability returned error status",
			"capability", h.config.Name,
			"status", resp.StatusCode,
			"request_id", input.RequestID,
		)
		return nil, StatusError(h.config.Name, resp.StatusCode, body)
	}

	var output types.CapabilityOutput
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &output); err != nil {
			return nil, errors.NewCapabilityError(h.config.Name, errors.ErrorTypeServer, "capability returned invalid JSON").WithCause(err)
		}
	}
	return &output, nil
}

// HealthCheck implements capability.HealthChecker. Capabilities without a
// health URL are assumed healthy.
func (h *HTTPCapability) HealthCheck(ctx context.Context) error {
	if h.config.HealthURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.config.HealthURL, nil)
	if err != nil {
		return errors.NewCapabilityError(h.config.Name, errors.ErrorTypeValidation, "failed to create health request").WithCause(err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return h.transportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return StatusError(h.config.Name, resp.StatusCode, nil)
	}
	return nil
}

func (h *HTTPCapability) transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
		return errors.NewCapabilityError(h.config.Name, errors.ErrorTypeTimeout, "capability request timed out").WithCause(err)
	}
	return errors.NewCapabilityError(h.config.Name, errors.ErrorTypeNetwork, "capability request failed").WithCause(err)
}

// StatusError maps a non-2xx HTTP status onto the error taxonomy
func StatusError(name string, status int, body []byte) *errors.AppError {
	var errorType errors.ErrorType
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		errorType = errors.ErrorTypeValidation
	case status == http.StatusUnauthorized:
		errorType = errors.ErrorTypeAuthentication
	case status == http.StatusForbidden:
		errorType = errors.ErrorTypeAuthorization
	case status == http.StatusNotFound:
		errorType = errors.ErrorTypeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		errorType = errors.ErrorTypeTimeout
	case status == http.StatusTooManyRequests:
		errorType = errors.ErrorTypeRateLimit
	case status >= 500:
		errorType = errors.ErrorTypeServer
	default:
		errorType = errors.ErrorTypeUnknown
	}

	appErr := errors.NewCapabilityError(name, errorType, fmt.Sprintf("capability returned status %d", status)).
		WithDetail("status", fmt.Sprint(status))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 256 {
			msg = msg[:256]
		}
		appErr.WithDetail("body", msg)
	}
	return appErr
}

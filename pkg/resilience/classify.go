package resilience

import (
	"context"
	stderrors "errors"
	"net"
	"regexp"
	"strings"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
)

// classification rules applied to error messages, in order. Phrases match
// anywhere; status codes only as whole words.
var messageRules = []struct {
	kind    errors.ErrorType
	phrases []string
	codes   *regexp.Regexp
}{
	{errors.ErrorTypeTimeout, []string{"timeout", "timed out", "deadline exceeded", "etimedout"}, nil},
	{errors.ErrorTypeRateLimit, []string{"rate limit", "too many requests"}, statusCodes("429")},
	{errors.ErrorTypeNetwork, []string{"network", "econnrefused", "econnreset", "connection refused", "connection reset", "no such host", "enotfound"}, nil},
	{errors.ErrorTypeAuthentication, []string{"unauthorized", "authentication"}, statusCodes("401")},
	{errors.ErrorTypeAuthorization, []string{"forbidden", "authorization", "permission denied"}, statusCodes("403")},
	{errors.ErrorTypeNotFound, []string{"not found"}, statusCodes("404")},
	{errors.ErrorTypeValidation, []string{"validation", "invalid", "bad request"}, statusCodes("400", "422")},
	{errors.ErrorTypeServer, []string{"server error", "internal error", "service unavailable", "bad gateway"}, statusCodes("500", "502", "503", "504")},
}

func statusCodes(codes ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(` + strings.Join(codes, "|") + `)\b`)
}

// Classify returns the failure class of err. A typed AppError wins, then
// well-known Go error values, then message heuristics; anything else is UNKNOWN.
func Classify(err error) errors.ErrorType {
	if err == nil {
		return ""
	}

	if appErr, ok := errors.As(err); ok && appErr.Type != errors.ErrorTypeInternal && appErr.Type != "" {
		return appErr.Type
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrorTypeTimeout
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.ErrorTypeTimeout
		}
		return errors.ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, p := range rule.phrases {
			if strings.Contains(msg, p) {
				return rule.kind
			}
		}
		if rule.codes != nil && rule.codes.MatchString(msg) {
			return rule.kind
		}
	}

	return errors.ErrorTypeUnknown
}

// IsRetryable reports whether err belongs to a retryable class
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSink(t *testing.T) {
	var received atomic.Value
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var msg WebhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			received.Store(msg)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, SeverityWarning, server.Client())
	assert.Equal(t, "webhook", sink.Name())

	// below the threshold
	require.NoError(t, sink.Handle(context.Background(), Event{Type: TypeCacheHit, Severity: SeverityInfo}))
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, sink.Handle(context.Background(), Event{
		Type:       TypeBreakerTransition,
		Severity:   SeverityCritical,
		Capability: "policy",
		Outcome:    "open",
		Tags:       map[string]string{"from": "closed"},
		Timestamp:  time.Unix(1700000000, 0),
	}))
	assert.Equal(t, int32(1), calls.Load())

	msg := received.Load().(WebhookMessage)
	assert.Equal(t, "[CRITICAL] breaker_transition: policy", msg.Text)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	assert.Equal(t, int64(1700000000), msg.Attachments[0].Timestamp)
	assert.Contains(t, msg.Attachments[0].Fields, WebhookField{Title: "from", Value: "closed", Short: true})
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL+"/services/T000/B000/secret", SeverityInfo, server.Client())
	err := sink.Handle(context.Background(), Event{Type: TypeRateLimited, Severity: SeverityWarning})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestMaskWebhookURL(t *testing.T) {
	assert.Equal(t, "https://hooks.slack.com/***", maskWebhookURL("https://hooks.slack.com/services/T/B/x"))
	assert.Equal(t, "***", maskWebhookURL("not a url"))
}

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// WebhookSink posts Slack-compatible alert messages for events at or above
// MinSeverity
type WebhookSink struct {
	url         string
	httpClient  *http.Client
	MinSeverity Severity
}

// WebhookMessage is the Slack incoming-webhook payload
type WebhookMessage struct {
	Text        string              `json:"text"`
	Attachments []WebhookAttachment `json:"attachments,omitempty"`
}

// WebhookAttachment carries the event details
type WebhookAttachment struct {
	Color     string         `json:"color,omitempty"`
	Title     string         `json:"title,omitempty"`
	Fields    []WebhookField `json:"fields,omitempty"`
	Footer    string         `json:"footer,omitempty"`
	Timestamp int64          `json:"ts,omitempty"`
}

// WebhookField is one key/value line of an attachment
type WebhookField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewWebhookSink creates a webhook sink; a nil client gets a 10s timeout
func NewWebhookSink(url string, minSeverity Severity, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, httpClient: client, MinSeverity: minSeverity}
}

// Handle posts the event
func (s *WebhookSink) Handle(ctx context.Context, event Event) error {
	if event.Severity < s.MinSeverity {
		return nil
	}

	payload, err := json.Marshal(buildWebhookMessage(event))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned status %d", maskWebhookURL(s.url), resp.StatusCode)
	}
	return nil
}

// Name returns the name of the sink
func (s *WebhookSink) Name() string {
	return "webhook"
}

func buildWebhookMessage(event Event) WebhookMessage {
	title := string(event.Type)
	if event.Capability != "" {
		title = fmt.Sprintf("%s: %s", event.Type, event.Capability)
	}

	fields := []WebhookField{{Title: "Severity", Value: event.Severity.String(), Short: true}}
	if event.Outcome != "" {
		fields = append(fields, WebhookField{Title: "Outcome", Value: event.Outcome, Short: true})
	}
	if event.RequestID != "" {
		fields = append(fields, WebhookField{Title: "Request", Value: event.RequestID, Short: true})
	}

	keys := make([]string, 0, len(event.Tags))
	for k := range event.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, WebhookField{Title: k, Value: event.Tags[k], Short: true})
	}

	return WebhookMessage{
		Text: fmt.Sprintf("[%s] %s", event.Severity, title),
		Attachments: []WebhookAttachment{{
			Color:     severityColor(event.Severity),
			Title:     title,
			Fields:    fields,
			Footer:    "governance-orchestrator",
			Timestamp: event.Timestamp.Unix(),
		}},
	}
}

func severityColor(s Severity) string {
	switch s {
	case SeverityCritical:
		return "danger"
	case SeverityError, SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

// maskWebhookURL keeps the host and hides the secret path
func maskWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://" + u.Host + "/***"
}

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NikhilSetiya/governance-orchestrator/pkg/errors"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
)

// LogSink writes events to the application logger
type LogSink struct {
	logger *logging.Logger
	// MinSeverity filters out quieter events
	MinSeverity Severity
}

// NewLogSink creates a log sink that skips events below minSeverity
func NewLogSink(minSeverity Severity) *LogSink {
	return &LogSink{logger: logging.GetLogger(), MinSeverity: minSeverity}
}

// Handle logs the event at a level matching its severity
func (s *LogSink) Handle(ctx context.Context, event Event) error {
	if event.Severity < s.MinSeverity {
		return nil
	}

	fields := []interface{}{
		"event_id", event.ID,
		"event_type", string(event.Type),
		"severity", event.Severity.String(),
	}
	if event.RequestID != "" {
		fields = append(fields, "request_id", event.RequestID)
	}
	if event.Capability != "" {
		fields = append(fields, "capability", event.Capability)
	}
	if event.Outcome != "" {
		fields = append(fields, "outcome", event.Outcome)
	}
	if event.LatencyMs > 0 {
		fields = append(fields, "latency_ms", event.LatencyMs)
	}
	for key, value := range event.Tags {
		fields = append(fields, fmt.Sprintf("tag_%s", key), value)
	}

	msg := "Event: " + string(event.Type)
	switch event.Severity {
	case SeverityInfo:
		s.logger.Info(msg, fields...)
	case SeverityWarning:
		s.logger.Warn(msg, fields...)
	case SeverityError:
		s.logger.Error(msg, fields...)
	case SeverityCritical:
		s.logger.Error("CRITICAL "+msg, fields...)
	}
	return nil
}

// Name returns the name of the sink
func (s *LogSink) Name() string {
	return "log"
}

// AuditSink writes every event as one JSON line through zap
type AuditSink struct {
	logger *zap.Logger
}

// NewAuditSink wraps an existing zap logger
func NewAuditSink(logger *zap.Logger) *AuditSink {
	return &AuditSink{logger: logger}
}

// NewFileAuditSink creates an audit sink appending JSON lines to path
func NewFileAuditSink(path string) (*AuditSink, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "logged_at"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.NewInternalError("failed to open audit log").WithCause(err).WithDetail("path", path)
	}
	return NewAuditSink(logger.Named("audit")), nil
}

// Handle writes the event
func (s *AuditSink) Handle(ctx context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", event.Severity.String()),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.Capability != "" {
		fields = append(fields, zap.String("capability", event.Capability))
	}
	if event.Outcome != "" {
		fields = append(fields, zap.String("outcome", event.Outcome))
	}
	if event.LatencyMs > 0 {
		fields = append(fields, zap.Int64("latency_ms", event.LatencyMs))
	}
	if len(event.Tags) > 0 {
		fields = append(fields, zap.Any("tags", event.Tags))
	}

	s.logger.Info(string(event.Type), fields...)
	return nil
}

// Name returns the name of the sink
func (s *AuditSink) Name() string {
	return "audit"
}

// Close flushes buffered audit lines
func (s *AuditSink) Close() error {
	// Sync on stdout/stderr returns EINVAL on some platforms
	_ = s.logger.Sync()
	return nil
}

// Publisher is the subset of *nats.Conn the NATS sink uses
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON to <subject>.<event type>
type NATSSink struct {
	publisher Publisher
	subject   string
	conn      *nats.Conn
}

// NewNATSSink publishes through an existing publisher
func NewNATSSink(publisher Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = "governance.events"
	}
	return &NATSSink{publisher: publisher, subject: subject}
}

// ConnectNATS dials url and returns a sink that owns the connection
func ConnectNATS(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("governance-orchestrator"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.NewNetworkError(fmt.Sprintf("nats connect %s", url)).WithCause(err)
	}

	logging.GetLogger().Info("NATS event sink connected", "url", url, "subject", subject)
	sink := NewNATSSink(nc, subject)
	sink.conn = nc
	return sink, nil
}

// Handle publishes the event
func (s *NATSSink) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := s.subject + "." + string(event.Type)
	if err := s.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Name returns the name of the sink
func (s *NATSSink) Name() string {
	return "nats"
}

// Close drains the owned connection, if any
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// MetricsSink turns resilience events into prometheus counters
type MetricsSink struct {
	metrics *metrics.Metrics
}

// NewMetricsSink creates a metrics sink
func NewMetricsSink(m *metrics.Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Handle records the event
func (s *MetricsSink) Handle(ctx context.Context, event Event) error {
	switch event.Type {
	case TypeBreakerTransition:
		s.metrics.RecordBreakerTransition(event.Capability, event.Outcome)
	case TypeRetryScheduled:
		s.metrics.RecordRetry(event.Capability)
	case TypeRateLimited:
		s.metrics.RecordRateLimitRejection(event.Capability)
	}
	return nil
}

// Name returns the name of the sink
func (s *MetricsSink) Name() string {
	return "metrics"
}

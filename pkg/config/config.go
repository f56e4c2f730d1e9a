package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Redis         RedisConfig         `json:"redis"`
	Orchestration OrchestrationConfig `json:"orchestration"`
	Resilience    ResilienceConfig    `json:"resilience"`
	Cache         CacheConfig         `json:"cache"`
	Events        EventsConfig        `json:"events"`
	Auth          AuthConfig          `json:"auth"`
	Tracing       TracingConfig       `json:"tracing"`
	Metrics       MetricsConfig       `json:"metrics"`
	Logging       LoggingConfig       `json:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// RedisConfig contains the distributed cache tier connection configuration
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// OrchestrationConfig contains analyzer, workflow and coordinator settings
type OrchestrationConfig struct {
	MaxConcurrentAgents int     `json:"max_concurrent_agents"`
	ParallelExecution   bool    `json:"parallel_execution"`
	EnterpriseThreshold float64 `json:"enterprise_threshold"`
	ComplexThreshold    float64 `json:"complex_threshold"`
	ModerateThreshold   float64 `json:"moderate_threshold"`
	PolicyCapability    string  `json:"policy_capability"`
	TemplatesFile       string  `json:"templates_file"`
	WatchTemplates      bool    `json:"watch_templates"`
	CapabilitiesFile    string  `json:"capabilities_file"`
	HistorySize         int     `json:"history_size"`
	StatsSchedule       string  `json:"stats_schedule"`
}

// ResilienceConfig contains breaker, retry and rate limiter defaults
type ResilienceConfig struct {
	FailureThreshold   int            `json:"failure_threshold"`
	RecoveryTimeout    time.Duration  `json:"recovery_timeout"`
	HalfOpenMaxCalls   int            `json:"half_open_max_calls"`
	MaxAttempts        int            `json:"max_attempts"`
	BaseDelay          time.Duration  `json:"base_delay"`
	MaxDelay           time.Duration  `json:"max_delay"`
	BackoffMultiplier  float64        `json:"backoff_multiplier"`
	Jitter             bool           `json:"jitter"`
	RateLimitWindow    time.Duration  `json:"rate_limit_window"`
	RateLimitRequests  int            `json:"rate_limit_requests"`
	RateLimitOverrides map[string]int `json:"rate_limit_overrides"`
}

// CacheConfig contains result cache configuration
type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	MaxSize         int           `json:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	KeyPrefix       string        `json:"key_prefix"`
}

// EventsConfig contains observability sink configuration
type EventsConfig struct {
	BufferSize   int    `json:"buffer_size"`
	NATSURL      string `json:"nats_url"`
	NATSSubject  string `json:"nats_subject"`
	AuditLogPath string `json:"audit_log_path"`
	// WebhookURL receives Slack-compatible alerts for warning and critical events
	WebhookURL string `json:"-"`
}

// AuthConfig contains API authentication configuration
type AuthConfig struct {
	Enabled   bool   `json:"enabled"`
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	Environment    string  `json:"environment"`
	SamplingRate   float64 `json:"sampling_rate"`
}

// MetricsConfig contains prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Orchestration: OrchestrationConfig{
			MaxConcurrentAgents: getEnvInt("ORCH_MAX_CONCURRENT_AGENTS", 5),
			ParallelExecution:   getEnvBool("ORCH_PARALLEL_EXECUTION", true),
			EnterpriseThreshold: getEnvFloat("ORCH_ENTERPRISE_THRESHOLD", 7),
			ComplexThreshold:    getEnvFloat("ORCH_COMPLEX_THRESHOLD", 5),
			ModerateThreshold:   getEnvFloat("ORCH_MODERATE_THRESHOLD", 3),
			PolicyCapability:    getEnvString("ORCH_POLICY_CAPABILITY", "policy"),
			TemplatesFile:       getEnvString("ORCH_TEMPLATES_FILE", ""),
			WatchTemplates:      getEnvBool("ORCH_WATCH_TEMPLATES", false),
			CapabilitiesFile:    getEnvString("ORCH_CAPABILITIES_FILE", ""),
			HistorySize:         getEnvInt("ORCH_HISTORY_SIZE", 1000),
			StatsSchedule:       getEnvString("ORCH_STATS_SCHEDULE", "@every 5m"),
		},
		Resilience: ResilienceConfig{
			FailureThreshold:   getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:    getEnvDuration("RESILIENCE_RECOVERY_TIMEOUT", 30*time.Second),
			HalfOpenMaxCalls:   getEnvInt("RESILIENCE_HALF_OPEN_MAX_CALLS", 3),
			MaxAttempts:        getEnvInt("RESILIENCE_MAX_ATTEMPTS", 3),
			BaseDelay:          getEnvDuration("RESILIENCE_BASE_DELAY", time.Second),
			MaxDelay:           getEnvDuration("RESILIENCE_MAX_DELAY", 10*time.Second),
			BackoffMultiplier:  getEnvFloat("RESILIENCE_BACKOFF_MULTIPLIER", 2),
			Jitter:             getEnvBool("RESILIENCE_JITTER", true),
			RateLimitWindow:    getEnvDuration("RESILIENCE_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitRequests:  getEnvInt("RESILIENCE_RATE_LIMIT_REQUESTS", 100),
			RateLimitOverrides: getEnvIntMap("RESILIENCE_RATE_LIMIT_OVERRIDES"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			MaxSize:         getEnvInt("CACHE_MAX_SIZE", 1000),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
			KeyPrefix:       getEnvString("CACHE_KEY_PREFIX", "governance"),
		},
		Events: EventsConfig{
			BufferSize:   getEnvInt("EVENTS_BUFFER_SIZE", 1024),
			NATSURL:      getEnvString("EVENTS_NATS_URL", ""),
			NATSSubject:  getEnvString("EVENTS_NATS_SUBJECT", "governance.events"),
			AuditLogPath: getEnvString("EVENTS_AUDIT_LOG_PATH", ""),
			WebhookURL:   getEnvString("EVENTS_WEBHOOK_URL", ""),
		},
		Auth: AuthConfig{
			Enabled:   getEnvBool("AUTH_ENABLED", false),
			JWTSecret: getEnvString("JWT_SECRET", ""),
			Issuer:    getEnvString("JWT_ISSUER", ""),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("TRACING_JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			Environment:    getEnvString("TRACING_ENVIRONMENT", "development"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 1.0),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvBool("METRICS_ENABLED", true),
			Namespace: getEnvString("METRICS_NAMESPACE", "governance"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	o := c.Orchestration
	if o.MaxConcurrentAgents <= 0 {
		return fmt.Errorf("max concurrent agents must be positive")
	}
	if !(o.ModerateThreshold < o.ComplexThreshold && o.ComplexThreshold < o.EnterpriseThreshold) {
		return fmt.Errorf("complexity thresholds must be strictly increasing: moderate=%v complex=%v enterprise=%v",
			o.ModerateThreshold, o.ComplexThreshold, o.EnterpriseThreshold)
	}
	if o.EnterpriseThreshold > 10 || o.ModerateThreshold < 0 {
		return fmt.Errorf("complexity thresholds must lie within [0,10]")
	}
	if o.PolicyCapability == "" {
		return fmt.Errorf("policy capability name is required")
	}

	r := c.Resilience
	if r.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}
	if r.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("half-open max calls must be positive")
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if r.RateLimitRequests <= 0 || r.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window and requests must be positive")
	}

	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache cleanup interval must be positive")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required when auth is enabled")
	}

	return nil
}

// RedisAddr returns the host:port address of the distributed cache tier
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvIntMap parses "name=value,name=value"; malformed pairs are skipped
func getEnvIntMap(key string) map[string]int {
	out := make(map[string]int)
	for _, pair := range getEnvList(key, nil) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = n
	}
	return out
}

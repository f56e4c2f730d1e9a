package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestration.MaxConcurrentAgents)
	assert.True(t, cfg.Orchestration.ParallelExecution)
	assert.Equal(t, "policy", cfg.Orchestration.PolicyCapability)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Resilience.RecoveryTimeout)
	assert.Equal(t, 3, cfg.Resilience.HalfOpenMaxCalls)
	assert.Equal(t, 100, cfg.Resilience.RateLimitRequests)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ORCH_MAX_CONCURRENT_AGENTS", "9")
	t.Setenv("RESILIENCE_RATE_LIMIT_OVERRIDES", "policy=10, audit=20,broken,bad=x")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Orchestration.MaxConcurrentAgents)
	assert.Equal(t, map[string]int{"policy": 10, "audit": 20}, cfg.Resilience.RateLimitOverrides)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "non-increasing thresholds",
			mutate:  func(c *Config) { c.Orchestration.ComplexThreshold = 8 },
			wantErr: "strictly increasing",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Orchestration.MaxConcurrentAgents = 0 },
			wantErr: "max concurrent agents",
		},
		{
			name:    "auth without secret",
			mutate:  func(c *Config) { c.Auth.Enabled = true },
			wantErr: "JWT secret",
		},
		{
			name:    "zero failure threshold",
			mutate:  func(c *Config) { c.Resilience.FailureThreshold = 0 },
			wantErr: "failure threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedisURL(t *testing.T) {
	cfg := &Config{Redis: RedisConfig{Host: "cache", Port: 6380, DB: 2}}
	assert.Equal(t, "redis://cache:6380/2", cfg.RedisURL())
	assert.Equal(t, "cache:6380", cfg.RedisAddr())

	cfg.Redis.Password = "pw"
	assert.Equal(t, "redis://:pw@cache:6380/2", cfg.RedisURL())
}

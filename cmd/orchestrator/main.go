package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/NikhilSetiya/governance-orchestrator/internal/api"
	"github.com/NikhilSetiya/governance-orchestrator/internal/cache"
	"github.com/NikhilSetiya/governance-orchestrator/internal/capabilities"
	"github.com/NikhilSetiya/governance-orchestrator/internal/events"
	"github.com/NikhilSetiya/governance-orchestrator/internal/orchestrator"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/capability"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/config"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/logging"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/metrics"
	"github.com/NikhilSetiya/governance-orchestrator/pkg/tracing"
)

var version = "dev"

func main() {
	// Load .env when present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "governance-orchestrator",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(&metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Enabled:   cfg.Metrics.Enabled,
	})

	tracer, err := tracing.NewTracingService(&tracing.Config{
		ServiceName:    "governance-orchestrator",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Warn("Tracing disabled", "error", err.Error())
		tracer = tracing.NewNoopTracingService()
	}

	// The distributed tier is optional; the cache runs local-only without it
	var redisStore cache.RedisStore
	if cfg.Redis.Enabled && cfg.Cache.Enabled {
		client, err := cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, continuing with the local cache only", "addr", cfg.RedisAddr(), "error", err.Error())
		} else {
			redisStore = client
			logger.Info("Redis connection established", "addr", cfg.RedisAddr())
		}
	}

	dispatcher, err := newDispatcher(cfg, m)
	if err != nil {
		log.Fatalf("Failed to create event sinks: %v", err)
	}

	registry := capability.NewRegistry()
	if cfg.Orchestration.CapabilitiesFile != "" {
		names, err := capabilities.Register(registry, cfg.Orchestration.CapabilitiesFile, &http.Client{Timeout: 60 * time.Second})
		if err != nil {
			log.Fatalf("Failed to load capabilities: %v", err)
		}
		logger.Info("Capabilities loaded", "file", cfg.Orchestration.CapabilitiesFile, "capabilities", names)
	} else {
		logger.Warn("No capabilities file configured; every request will require human review")
	}

	orch, err := orchestrator.New(orchestrator.ConfigFrom(cfg), orchestrator.Dependencies{
		Registry: registry,
		Redis:    redisStore,
		Metrics:  m,
		Tracing:  tracer,
		Events:   dispatcher,
	})
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start orchestrator: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg, orch, m, tracer),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", server.Addr, "version", version)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err.Error())
	}
	cancel()
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Error("Orchestrator stopped with error", "error", err.Error())
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown failed", "error", err.Error())
	}

	logger.Info("Server exited")
}

// newDispatcher wires the configured event sinks
func newDispatcher(cfg *config.Config, m *metrics.Metrics) (*events.Dispatcher, error) {
	sinks := []events.Sink{
		events.NewLogSink(events.SeverityWarning),
		events.NewMetricsSink(m),
	}

	if cfg.Events.AuditLogPath != "" {
		audit, err := events.NewFileAuditSink(cfg.Events.AuditLogPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit)
	}

	if cfg.Events.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhookSink(cfg.Events.WebhookURL, events.SeverityWarning, nil))
	}

	if cfg.Events.NATSURL != "" {
		nats, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			logging.GetLogger().Warn("NATS unavailable, events will not be published", "url", cfg.Events.NATSURL, "error", err.Error())
		} else {
			sinks = append(sinks, nats)
		}
	}

	return events.NewDispatcher(cfg.Events.BufferSize, m, sinks...), nil
}

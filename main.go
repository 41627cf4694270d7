package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-gaiandb/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/bus"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/config"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/engine"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/handlers"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/logging"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/middleware"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/nodes"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/retry"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/services"
	sqlguard "github.com/ekaya-inc/ekaya-gaiandb/pkg/sql"
	"github.com/ekaya-inc/ekaya-gaiandb/pkg/template"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Int("databases", len(cfg.Databases)),
		zap.Int("nodes", len(cfg.Nodes)),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("sqli_guard", cfg.SQLIGuard),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	retryCfg := retry.DefaultConfig()
	connManager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{Retry: retryCfg}, logger)
	orchestrator := engine.NewOrchestrator(logger, engine.NewMetrics(registry))

	var guard *sqlguard.Guard
	if cfg.SQLIGuard {
		guard = sqlguard.NewGuard()
	}

	// The bus is optional; without Redis, nodes are driven through the inject endpoint.
	redisClient, err := bus.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("error", logging.SanitizeError(err)))
	}
	var (
		messageBus *bus.Bus
		output     nodes.Output
	)
	if redisClient != nil {
		messageBus = bus.New(redisClient, logger)
		output = messageBus
	} else {
		logger.Warn("Redis not configured, node input and output channels are disabled")
	}

	flow, err := nodes.Build(ctx, cfg.Databases, cfg.Nodes, nodes.Deps{
		Manager:      connManager,
		Orchestrator: orchestrator,
		Renderer:     template.NewRenderer(),
		Guard:        guard,
		Output:       output,
		Retry:        retryCfg,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Failed to build flow", zap.Error(err))
	}

	if messageBus != nil {
		if err := messageBus.Subscribe(ctx, flow.InputChannels(), flow); err != nil {
			logger.Fatal("Failed to subscribe to input channels", zap.Error(err))
		}
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, connManager, logger).RegisterRoutes(mux)
	handlers.NewCatalogHandler(services.NewCatalogService(flow, logger), logger).RegisterRoutes(mux)
	handlers.NewNodesHandler(flow, logger).RegisterRoutes(mux)
	handlers.NewDatabasesHandler(flow, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	var handler http.Handler = mux
	handler = c.Handler(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.Recoverer(logger)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		useTLS := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
		logger.Info("Starting ekaya-gaiandb",
			zap.String("addr", server.Addr),
			zap.Bool("tls", useTLS),
			zap.String("version", cfg.Version))
		if useTLS {
			serveErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// Stop intake first so in-flight runs can drain before pools close.
	if messageBus != nil {
		if err := messageBus.Close(); err != nil {
			logger.Error("Failed to close message bus", zap.Error(err))
		}
	}
	if err := flow.Close(shutdownCtx); err != nil {
		logger.Warn("In-flight node runs did not finish", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := connManager.Close(); err != nil {
		logger.Error("Failed to close connection pools", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

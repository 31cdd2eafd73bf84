package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/mover/internal/logger"
	"github.com/marmos91/mover/internal/ratelimiter"
	"github.com/marmos91/mover/internal/server"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/config"
	"github.com/marmos91/mover/pkg/metrics"
	"github.com/marmos91/mover/pkg/uring"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML or TOML)")
	metricsAddr := flag.String("metrics-addr", "", "Address for Prometheus /metrics (empty = disabled)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("Mover - Unix socket data mover")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Metrics are opt-in: without a registry every recorder is a no-op.
	var serverMetrics *metrics.ServerMetrics
	if *metricsAddr != "" {
		metrics.InitRegistry()
		serverMetrics = metrics.NewServerMetrics()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		go func() {
			logger.Info("Metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Pinned buffer pool; every request is read into one of these buffers.
	pool, err := bufpool.New(cfg.Buffers.Count, cfg.Buffers.Size)
	if err != nil {
		log.Fatalf("Failed to create buffer pool: %v", err)
	}

	ring, err := uring.New(uring.Config{
		Entries:      cfg.Ring.Entries,
		Flags:        cfg.Ring.FlagBits,
		ZeroCopySend: cfg.Features.ZeroCopySend,
	})
	if err != nil {
		log.Fatalf("Failed to create ring: %v", err)
	}
	if err := ring.RegisterBuffers(pool); err != nil {
		log.Fatalf("Failed to register buffers: %v", err)
	}

	backend, err := config.NewStore(ctx, cfg.Backend)
	if err != nil {
		log.Fatalf("Failed to create %s backend: %v", cfg.Backend.Type, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Backend close error: %v", err)
		}
	}()

	handler := &server.DefaultHandler{
		Store:        backend,
		Ring:         ring,
		Pool:         pool,
		BatchTimeout: cfg.Batch.Timeout(),
		Metrics:      serverMetrics,
	}

	// Log server configuration
	logger.Info("Server configuration:")
	logger.Info("  Socket: %s", cfg.Socket.Path)
	logger.Info("  Backend: %s", cfg.Backend.Type)
	logger.Info("  Ring entries: %d (flags: %s)", ring.Entries(), uring.DescribeFlags(ring.Flags()))
	logger.Info("  Buffers: %d x %d bytes", pool.Count(), pool.BufferSize())
	logger.Info("  Batch timeout: %v", cfg.Batch.Timeout())
	logger.Info("  Max connections: %d", cfg.Server.MaxConnections)
	logger.Info("  Zero-copy send: %v", cfg.Features.ZeroCopySend)
	logger.Info("  Huge pages: %v", cfg.Features.HugePages)

	srv := server.New(cfg.Socket.Path, cfg.Server.MaxConnections, handler, pool, serverMetrics)
	if cfg.Server.RateLimit > 0 {
		srv.SetRateLimiter(ratelimiter.New(cfg.Server.RateLimit, cfg.Server.RateBurst))
		logger.Info("  Rate limit: %d conns/s (burst %d)", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Mover is running on %s. Press Ctrl+C to stop.", cfg.Socket.Path)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		// Wait for in-flight connections, but not past the shutdown timeout.
		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error: %v", err)
				os.Exit(1)
			}
			logger.Info("Server stopped gracefully")
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Error("Shutdown timed out after %v", cfg.Server.ShutdownTimeout)
			os.Exit(1)
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gravitas-games/screwsort/internal/config"
	"github.com/gravitas-games/screwsort/internal/logging"
	"github.com/gravitas-games/screwsort/internal/metrics"
	"github.com/gravitas-games/screwsort/internal/server"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/server.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level)
	logger.Info("configuration loaded", "path", configPath, "host", cfg.Server.Host, "port", cfg.Server.Port)

	opts := server.Options{Logger: logger}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)
		if err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		opts.Metrics = rec
		opts.Gatherer = reg
	}

	srv, err := server.New(cfg, opts)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := srv.Shutdown(); err != nil {
		logger.Warn("error during shutdown", "error", err)
	}
	logger.Info("server stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/systemshift/graphbulk/internal/bulk/sink"
	"github.com/systemshift/graphbulk/internal/config"
	"github.com/systemshift/graphbulk/internal/logger"
	"github.com/systemshift/graphbulk/internal/metrics"
	"github.com/systemshift/graphbulk/internal/server/api"
	"github.com/systemshift/graphbulk/internal/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRAPHBULK_CONFIG"), "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.BuildInfo())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		log.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	sinkOpts := cfg.SinkOptions()
	open := func(ctx context.Context, sessionID string) (sink.Sink, error) {
		return sink.Open(ctx, sinkOpts, sessionID)
	}
	apiServer := api.New(open, cfg.SessionOptions(), log, m, reg)

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      apiServer.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting graphbulk server", "addr", srv.Addr, "sink", cfg.Sink.Type, "version", version.Version())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}

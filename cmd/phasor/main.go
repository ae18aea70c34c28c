// Command phasor decodes LMA sensor capture files and publishes per-second
// coincidence reports. Capture paths are given as positional arguments; the
// station roster, correlation window, and sink are configured through the
// environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lma-phasor-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/lma-phasor-service/internal/adapter/kafka"
	"github.com/couchcryptid/lma-phasor-service/internal/adapter/stdout"
	"github.com/couchcryptid/lma-phasor-service/internal/config"
	"github.com/couchcryptid/lma-phasor-service/internal/observability"
	"github.com/couchcryptid/lma-phasor-service/internal/pipeline"
	"github.com/couchcryptid/lma-phasor-service/internal/roster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	paths := os.Args[1:]
	if len(paths) == 0 {
		logger.Error("no capture files given", "usage", "phasor <capture.dat> [capture.dat ...]")
		os.Exit(1)
	}

	loc, err := loadRoster(cfg, logger)
	if err != nil {
		logger.Error("failed to load roster", "error", err)
		os.Exit(1)
	}

	var sink pipeline.ReportSink
	var closeSink func() error
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		sink = writer
		closeSink = writer.Close
		logger.Info("publishing reports to kafka", "topic", cfg.KafkaSinkTopic)
	} else {
		sink = stdout.NewWriter(os.Stdout)
		closeSink = func() error { return nil }
		logger.Info("publishing reports to stdout")
	}

	p := pipeline.New(loc, sink, pipeline.Options{
		Decimated:      cfg.Decimated,
		WindowLengthNs: cfg.WindowLengthNs,
		MinSensors:     cfg.MinSensors,
		WorkerCount:    cfg.WorkerCount,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx, paths)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := closeSink(); err != nil {
		logger.Error("sink close error", "error", err)
	}

	logger.Info("shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}

// loadRoster reads the station roster when ROSTER_PATH is set. Without one the
// pipeline falls back to positions reported in each capture's GPS records.
func loadRoster(cfg *config.Config, logger *slog.Logger) (*roster.Roster, error) {
	if cfg.RosterPath == "" {
		logger.Info("no roster configured, using capture GPS positions")
		return roster.New(), nil
	}
	f, err := os.Open(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	loc, err := roster.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", cfg.RosterPath, err)
	}
	logger.Info("roster loaded", "path", cfg.RosterPath, "stations", loc.Len())
	return loc, nil
}

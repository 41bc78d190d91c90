package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/config"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/metrics"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/publish"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/server"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/session"
	"github.com/Shreyan1/Beurer-PO60-PulseOximeter-Bluetooth-Integration/internal/store"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("service starting",
		slog.String("service", "po60-telemetry"),
		slog.String("config_path", *configPath),
	)

	logger.Info("configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("workers", cfg.Server.Workers),
		slog.Duration("session_idle_timeout", cfg.Session.GetIdleTimeout()),
		slog.Bool("nats_enabled", cfg.NATS.Enabled),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()

	// Assemble the event sinks: logging always, the rest config-gated.
	sinks := session.MultiSink{session.NewLogSink(logger)}

	hub := server.NewHub(logger)
	sinks = append(sinks, hub)

	var publisher *publish.Publisher
	if cfg.NATS.Enabled {
		publisher, err = publish.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Error("failed to connect NATS publisher", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, publisher)
		logger.Info("NATS publisher connected",
			slog.String("url", cfg.NATS.URL),
			slog.String("subject", cfg.NATS.Subject),
		)
	}

	var archive *store.Archive
	if cfg.Redis.Enabled {
		archive, err = store.Connect(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.GetTTL(), logger)
		if err != nil {
			logger.Error("failed to connect record archive", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sinks = append(sinks, archive)
		logger.Info("record archive connected", slog.String("addr", cfg.Redis.Addr))
	}

	sessionMgr := session.NewManager(logger, cfg.Session.GetIdleTimeout(), sinks)
	sessionMgr.SetStats(appMetrics)

	udpServer := server.NewUDPServer(&cfg.Server, logger, sessionMgr, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		// A typed nil must not reach the interface-valued loader.
		var loader server.RecordLoader
		if archive != nil {
			loader = archive
		}
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, udpServer, appMetrics, hub, loader)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("service started",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	// Stop ingest first so no notification arrives for a finalized session.
	if err := udpServer.Stop(); err != nil {
		logger.Error("error stopping UDP server", slog.String("error", err.Error()))
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	// Finalizing sessions emits the end-of-session reports, so the
	// publisher and archive must still be up here.
	sessionMgr.Stop()

	if publisher != nil {
		publisher.Close()
	}
	if archive != nil {
		if err := archive.Close(); err != nil {
			logger.Warn("error closing record archive", slog.String("error", err.Error()))
		}
	}

	stats := udpServer.GetStatistics()
	logger.Info("final server statistics",
		slog.Uint64("notifications_received", stats.NotificationsReceived),
		slog.Uint64("notifications_processed", stats.NotificationsProcessed),
		slog.Uint64("envelope_errors", stats.EnvelopeErrors),
	)

	logger.Info("service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

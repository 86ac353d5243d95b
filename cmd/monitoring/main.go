package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/joyastack/joyastack/internal/monitoring"
	"github.com/joyastack/joyastack/internal/shared/config"
	"github.com/joyastack/joyastack/internal/shared/logging"
)

func main() {
	cfg, err := config.LoadMonitoringConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	// Prometheus is queried directly when a URL is configured, otherwise
	// through an SSH tunnel into the cluster network.
	promURL := cfg.PrometheusURL
	var tunnel *monitoring.Tunnel
	if promURL == "" {
		tunnel, err = monitoring.StartTunnel(monitoring.TunnelConfig{
			Host:           cfg.TunnelHost,
			Port:           cfg.TunnelPort,
			User:           cfg.TunnelUser,
			Password:       cfg.TunnelPassword,
			RemotePort:     cfg.RemotePromPort,
			LocalBindAddr:  cfg.LocalBindAddr,
			ConnectTimeout: cfg.QueryTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to establish tunnel", "err", err)
			os.Exit(1)
		}
		promURL = tunnel.URL()
	}

	collector, err := monitoring.NewCollector(cfg, promURL, logger)
	if err != nil {
		logger.Error("failed to create collector", "err", err)
		os.Exit(1)
	}

	service, err := monitoring.NewService(cfg, collector, tunnel, logger)
	if err != nil {
		logger.Error("failed to create service", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := service.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("service error", "err", err)
		os.Exit(1)
	}
}

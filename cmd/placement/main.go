package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/joyastack/joyastack/internal/placement"
	"github.com/joyastack/joyastack/internal/shared/config"
	"github.com/joyastack/joyastack/internal/shared/logging"
)

func main() {
	cfg, err := config.LoadPlacementConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	hosts := placement.NewMonitoringClient(cfg.MonitoringURL, cfg.MonitoringTimeout)

	service, err := placement.NewService(cfg, hosts, logger)
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

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/joyastack/joyastack/internal/database"
	"github.com/joyastack/joyastack/internal/deploy"
	"github.com/joyastack/joyastack/internal/placement"
	"github.com/joyastack/joyastack/internal/remote"
	"github.com/joyastack/joyastack/internal/shared/auth"
	"github.com/joyastack/joyastack/internal/shared/config"
	"github.com/joyastack/joyastack/internal/shared/events"
	"github.com/joyastack/joyastack/internal/shared/logging"
	"github.com/joyastack/joyastack/internal/slicemanager"
	"github.com/joyastack/joyastack/internal/workers"
)

func main() {
	cfg, err := config.LoadSliceManagerConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	table, err := workers.Parse(cfg.WorkerTable)
	if err != nil {
		logger.Error("invalid worker table", "err", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to init database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	publisher, err := events.NewPublisher(cfg.NATS, cfg.ServiceName)
	if err != nil {
		logger.Error("failed to connect to NATS", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	executor := remote.NewExecutor(remote.Config{
		Gateway:        cfg.GatewayIP,
		User:           cfg.SSHUser,
		Password:       cfg.SSHPassword,
		ConnectTimeout: cfg.SSHTimeout,
		ScriptPath:     cfg.VMCreateScript,
	}, logger)

	placer := placement.NewClient(cfg.PlacementURL, cfg.PlacementTimeout)

	deployer := deploy.NewController(db, placer, executor, table, publisher, deploy.Config{
		Bridge:           cfg.Bridge,
		DefaultImagePath: cfg.DefaultImagePath,
	}, logger)

	authMgr := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	service, err := slicemanager.NewService(cfg, db, authMgr, deployer, publisher, logger)
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

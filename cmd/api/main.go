package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paperbase-io/paperbase/internal/app"
	"github.com/paperbase-io/paperbase/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer application.Close()

	go func() {
		if err := application.Worker.Start(ctx, cfg.Workers); err != nil {
			logger.Error("worker pool stopped", zap.Error(err))
		}
	}()
	go application.Monitor.Run(ctx, cfg.StuckTimeout/2)
	go func() {
		if err := application.Server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("paperbase is running")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// Command tbills runs the tokenized treasury bill platform: the record store,
// the trading and yield engines, scheduled jobs and the HTTP API.
//
// Usage:
//
//	tbills --config config.yaml
//	tbills -datadir ./data -http :8080 -admins root
//
// Environment variables (also read from .env):
//
//	TBILLS_DATA_DIR, TBILLS_HTTP_ADDR, TBILLS_ADMINS
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/config"
	"github.com/vadiminshakov/tbills/internal/app"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	platform, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to start platform", zap.Error(err))
	}

	logger.Info("platform started",
		zap.String("http", cfg.HTTPAddr),
		zap.String("datadir", cfg.DataDir))

	if err := platform.Run(ctx); err != nil {
		logger.Error("platform stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "parse log level %q", cfg.LogLevel)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Dev {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// cmd/store-cli/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"convenience/internal/pkg/bootstrap"
	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout"
	"convenience/internal/service/checkout/interfaces"
)

func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	// 日志写到 stderr 且默认只输出 warn 以上，避免干扰终端交互
	level := cfg.Log.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger.Init(logger.Options{Level: level, Pretty: true, Service: "store-cli", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := checkout.Build(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build checkout service")
	}
	defer components.Close()

	app := interfaces.NewConsoleApp(components.Service, interfaces.NewConsole(os.Stdin, os.Stdout))
	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("checkout session aborted")
		components.Close()
		os.Exit(1)
	}
}

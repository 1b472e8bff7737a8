// cmd/checkout-service/main.go
package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"convenience/internal/pkg/bootstrap"
	"convenience/internal/pkg/logger"
	"convenience/internal/service/checkout"
	"convenience/internal/service/checkout/interfaces"
)

// main 函数是应用的"组装根" (Composition Root)
func main() {
	cfg, err := bootstrap.Init()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: cfg.App.Name})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	components, err := checkout.Build(ctx, cfg, prometheus.DefaultRegisterer)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build checkout service")
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewCheckoutHandler(components.Service).RegisterRoutes(appCtx.Mux)
			interfaces.NewWSCheckoutHandler(components.Service).RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(context.Context) {
			components.Close()
		},
	})
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/baharkarakas/pixelmart/internal/api"
	"github.com/baharkarakas/pixelmart/internal/app"
	"github.com/baharkarakas/pixelmart/internal/config"
	"github.com/baharkarakas/pixelmart/internal/logger"
	"github.com/baharkarakas/pixelmart/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	metrics.Init()
	r := api.NewRouter(api.RouterDeps{
		Cfg:             cfg,
		Log:             log,
		Tokens:          a.Tokens,
		Checkout:        a.Checkout,
		Settlements:     a.Settlements,
		Items:           a.Items,
		Queries:         a.Queries,
		Reconciler:      a.Reconciler,
		SignatureHeader: a.SignatureHeader,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env, "gateway", cfg.Gateway)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}

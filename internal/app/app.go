// Package app assembles the service graph from configuration. Both the HTTP
// server and the operator CLI start from Open.
package app

import (
	"context"
	"log/slog"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/config"
	"github.com/baharkarakas/pixelmart/internal/db"
	"github.com/baharkarakas/pixelmart/internal/fees"
	"github.com/baharkarakas/pixelmart/internal/gateway"
	"github.com/baharkarakas/pixelmart/internal/gateway/gatewaytest"
	"github.com/baharkarakas/pixelmart/internal/gateway/stripe"
	"github.com/baharkarakas/pixelmart/internal/repository"
	"github.com/baharkarakas/pixelmart/internal/repository/postgres"
	"github.com/baharkarakas/pixelmart/internal/repository/sqlite"
	"github.com/baharkarakas/pixelmart/internal/services"
	"github.com/baharkarakas/pixelmart/internal/worker"
)

type App struct {
	Cfg    config.Config
	Log    *slog.Logger
	Repos  repository.Repositories
	Tokens *auth.TokenManager
	Pool   *worker.Pool

	Gateway         gateway.Gateway
	SignatureHeader string

	Checkout    *services.CheckoutService
	Settlements *services.SettlementService
	Items       *services.ItemService
	Queries     *services.SettlementQueries
	Reconciler  *services.Reconciler

	closers []func()
}

// Open connects the configured store, runs migrations when asked to and wires
// the services. Close releases everything Open acquired.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	calc, err := fees.NewCalculator(cfg.ProcessingBps, cfg.PlatformBps)
	if err != nil {
		a.Close()
		return nil, errors.Annotate(err, "fee configuration")
	}

	switch cfg.Gateway {
	case "stripe":
		a.Gateway, a.SignatureHeader = stripe.New(cfg.StripeSecretKey, cfg.Currency), stripe.SignatureHeader
	case "fake":
		log.Warn("using in-memory payment gateway; no money moves")
		a.Gateway, a.SignatureHeader = gatewaytest.New(), gatewaytest.SignatureHeader
	default:
		a.Close()
		return nil, errors.NotValidf("gateway %q", cfg.Gateway)
	}

	a.Tokens = auth.NewTokenManager(cfg.JWTIssuer, cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	a.Pool = worker.NewPool(worker.Options{
		Workers:  cfg.WorkerCount,
		Attempts: 3,
		Logger:   log.With("component", "worker"),
	})
	a.closers = append(a.closers, a.Pool.Stop)

	d := services.Deps{
		Repos:    a.Repos,
		Gateway:  a.Gateway,
		Fees:     calc,
		Pool:     a.Pool,
		Logger:   log,
		Currency: cfg.Currency,
	}
	a.Checkout = services.NewCheckoutService(d)
	a.Settlements = services.NewSettlementService(d, services.SettlementOptions{
		WebhookSecret:       cfg.WebhookSecret,
		TransferTimeout:     cfg.TransferTimeout,
		TransferConcurrency: cfg.TransferConcurrency,
	})
	a.Items = services.NewItemService(d)
	a.Queries = services.NewSettlementQueries(d)
	a.Reconciler = services.NewReconciler(d, services.ReconcileOptions{
		Attempts:        cfg.ReconcileAttempts,
		Delay:           cfg.ReconcileDelay,
		TransferTimeout: cfg.TransferTimeout,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Cfg.DatabaseDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, a.Cfg.DatabaseURL, a.Cfg.DBMaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		if a.Cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				return errors.Annotate(err, "migrations")
			}
		}
		a.Repos = postgres.NewRepositories(pool)
	case "sqlite":
		sqlDB, err := db.OpenSQLite(ctx, a.Cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		// The embedded store is always migrated; there is no one else to do it.
		if err := db.RunSQLiteMigrations(ctx, sqlDB); err != nil {
			return errors.Annotate(err, "migrations")
		}
		a.Repos = sqlite.NewRepositories(sqlDB)
	default:
		return errors.NotValidf("database driver %q", a.Cfg.DatabaseDriver)
	}
	a.Log.Info("store ready", "driver", a.Cfg.DatabaseDriver)
	return nil
}

// Close stops the worker pool before closing the store it writes to.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/baharkarakas/pixelmart/internal/api/handlers"
	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/config"
	"github.com/baharkarakas/pixelmart/internal/metrics"
	"github.com/baharkarakas/pixelmart/internal/middleware"
	"github.com/baharkarakas/pixelmart/internal/models"
	"github.com/baharkarakas/pixelmart/internal/services"
)

type RouterDeps struct {
	Cfg    config.Config
	Log    *slog.Logger
	Tokens *auth.TokenManager

	Checkout    *services.CheckoutService
	Settlements *services.SettlementService
	Items       *services.ItemService
	Queries     *services.SettlementQueries
	Reconciler  *services.Reconciler

	// SignatureHeader is the header the configured gateway signs webhooks in.
	SignatureHeader string
}

func NewRouter(d RouterDeps) http.Handler {
	checkout := &handlers.CheckoutHandler{
		Checkout:        d.Checkout,
		Settle:          d.Settlements,
		SignatureHeader: d.SignatureHeader,
		Log:             d.Log,
	}
	images := &handlers.ImageHandler{Items: d.Items, Log: d.Log}
	settlements := &handlers.SettlementHandler{Queries: d.Queries, Reconciler: d.Reconciler, Log: d.Log}
	authH := handlers.NewAuthHandler(d.Tokens, d.Cfg.Env, d.Log)
	authMW := middleware.NewAuthMiddleware(d.Tokens, d.Cfg.Env)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(d.Log), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.Cfg.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	// The provider authenticates with a signature, not a bearer token, and is
	// not rate limited: dropped deliveries only come back later.
	r.Post("/checkout/webhook", checkout.Webhook)

	limit := middleware.RateLimit(d.Cfg.RateRPS)

	// ---------- auth ----------
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post("/auth/dev-token", authH.DevToken)
		r.Post("/auth/refresh", authH.Refresh)
	})

	r.Group(func(r chi.Router) {
		// After Auth so buckets are keyed by user.
		r.Use(authMW.Auth, limit)

		// ---------- checkout ----------
		r.Post("/checkout", checkout.Create)
		r.Post("/checkout/verify-discount", checkout.VerifyDiscount)

		// ---------- images ----------
		r.Get("/images", images.List)
		r.Post("/images/prices", images.Prices)
		r.Post("/images/visibility", images.Visibility)
		r.Post("/images/delete", images.Delete)

		// ---------- settlements ----------
		r.Get("/settlements", settlements.List)
		r.Get("/settlements/{id}", settlements.Get)

		r.Route("/admin/settlements", func(r chi.Router) {
			r.Use(middleware.RequireRole(models.RoleAdmin))
			r.Get("/outstanding", settlements.Outstanding)
			r.Post("/{id}/reconcile", settlements.Reconcile)
		})
	})

	return r
}

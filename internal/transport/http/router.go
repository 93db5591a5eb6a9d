package http

import (
	"context"
	"net/http"
	"time"

	"github.com/checkcalendar-api/internal/application/activity"
	"github.com/checkcalendar-api/internal/application/auth"
	"github.com/checkcalendar-api/internal/config"
	"github.com/checkcalendar-api/internal/transport/http/handler"
	appmiddleware "github.com/checkcalendar-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// One verification attempt every 6s per IP, burst of 10.
	verifyRL := appmiddleware.NewRateLimiter(ctx, rate.Every(6*time.Second), 10,
		"Too many verification attempts. Please slow down.")

	authSvc := auth.NewService(auth.ServiceDeps{
		Codes:           deps.PendingCodeRepo,
		Accounts:        deps.AccountRepo,
		Tokens:          deps.Tokens,
		Mailer:          deps.Mailer,
		Limiter:         deps.RequestLimiter,
		OTPTTL:          cfg.OTPTTL,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})
	activitySvc := activity.NewService(deps.ActivityRepo, deps.ExportStore, cfg.ExportURLTTL)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	calH := handler.NewCalendarHandler(activitySvc)

	r.Route("/api", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Check)
		r.Post("/auth/request-otp", authH.RequestOTP)
		r.With(verifyRL.Limit).Post("/auth/verify", authH.Verify)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(authSvc))

			r.Get("/calendars", calH.List)
			r.Post("/calendars", calH.Create)
			r.Post("/calendars/export", calH.Export)
			r.Post("/calendars/{id}/toggle", calH.Toggle)
			r.Get("/calendars/{id}/report", calH.Report)
			r.Delete("/calendars/{id}", calH.Delete)
		})
	})

	return r
}

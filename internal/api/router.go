package api

import (
	"circulation-engine/internal/api/handler"
	mw "circulation-engine/internal/api/middleware"
	"circulation-engine/internal/config"
	"circulation-engine/internal/domain/circulation"
	"circulation-engine/internal/domain/member"
	"log/slog"
	"net/http"
	"time"

	_ "circulation-engine/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

func SetupRouter(circulationService circulation.Service, memberService member.Service, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupMetricsEndpoint(router, cfg, logger)
	setupCirculationRoutes(router, circulationService, cfg, logger)
	setupMemberRoutes(router, cfg, memberService, circulationService, logger)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	setupSwaggerEndpoint(router, logger)

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(traceid.Middleware)
	router.Use(mw.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(mw.NewRateLimiterMiddleware(cfg.Server.RateLimit, logger).Middleware)
	router.Use(mw.MetricsMiddleware())
}

func setupMetricsEndpoint(router *chi.Mux, cfg *config.Config, logger *slog.Logger) {
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	logger.Info("Setting up Prometheus metrics endpoint", "path", metricsPath)
	router.Handle(metricsPath, promhttp.Handler())
}

func setupSwaggerEndpoint(router *chi.Mux, logger *slog.Logger) {
	logger.Info("Setting up Swagger UI endpoint", "path", "/swagger/")
	router.Get("/swagger/*", httpSwagger.WrapHandler)
	router.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
}

func setupCirculationRoutes(router *chi.Mux, svc circulation.Service, cfg *config.Config, logger *slog.Logger) {
	circulationHandler := handler.NewCirculationHandler(svc, logger)
	authHandler := handler.NewAuthHandler(*cfg, logger)
	router.Route("/auth", func(r chi.Router) {
		r.Post("/token", authHandler.GenerateBearerToken)
	})

	router.Route("/loans", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Post("/", circulationHandler.Checkout)
		r.Get("/{loanID}", circulationHandler.GetLoan)
		r.Post("/{loanID}/renewals", circulationHandler.Renew)
	})

	router.Route("/copies", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Get("/{copyID}", circulationHandler.GetCopyStatus)
		r.Post("/{copyID}/return", circulationHandler.ReturnCopy)
	})
}

func setupMemberRoutes(r chi.Router, cfg *config.Config, svc member.Service, circSvc circulation.Service, logger *slog.Logger) {
	h := handler.NewMemberHandler(svc, logger)
	circulationHandler := handler.NewCirculationHandler(circSvc, logger)

	r.Route("/members", func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.Server.Auth, logger))
		r.Route("/{memberID}", func(r chi.Router) {
			r.Get("/", h.GetMember)
			r.Get("/loans", circulationHandler.GetMemberLoans)
			r.Put("/ban", h.Ban)
			r.Delete("/ban", h.Unban)
		})
	})
}

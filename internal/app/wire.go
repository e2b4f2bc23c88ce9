package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loanpilot/sentinel/internal/auth"
	"github.com/loanpilot/sentinel/internal/guard"
	"github.com/loanpilot/sentinel/internal/handler"
	"github.com/loanpilot/sentinel/internal/infra"
	"github.com/loanpilot/sentinel/internal/repository"
	"github.com/loanpilot/sentinel/internal/service"
	"github.com/loanpilot/sentinel/internal/telemetry"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool                *pgxpool.Pool
	JWTMgr              *auth.JWTManager
	Logger              *slog.Logger
	Cache               *infra.BaselineCache
	Hub                 *infra.WSHub
	Registry            *telemetry.Registry
	SnapshotInterval    time.Duration
	IngestRatePerMinute int
	CORSOrigins         string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger

	// Repositories
	baselineRepo := repository.NewBaselineRepository()
	eventRepo := repository.NewSecurityEventRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Guards
	limiter := guard.NewRateLimiter(deps.IngestRatePerMinute, time.Minute)
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)

	// The cache port is nil-tolerant but an interface holding a typed nil is
	// not nil; only pass it through when configured.
	var cache service.BaselineCache
	if deps.Cache != nil {
		cache = deps.Cache
	}

	behaviorSvc := service.NewBehaviorService(
		deps.Pool, baselineRepo, eventRepo, outboxRepo, cache,
		breaker, deps.Hub, deps.Registry, logger, deps.SnapshotInterval,
	)

	// Handlers
	behaviorHandler := handler.NewBehaviorHandler(behaviorSvc, limiter)
	securityHandler := handler.NewSecurityHandler(behaviorSvc)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Pool))

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateUser(deps.JWTMgr))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", behaviorHandler.StartSession)
			r.Post("/{sessionID}/events", behaviorHandler.IngestEvents)
			r.Get("/{sessionID}/snapshot", behaviorHandler.GetSnapshot)
			r.Post("/{sessionID}/score", behaviorHandler.ScoreSession)
			r.Delete("/{sessionID}", behaviorHandler.EndSession)
		})

		r.Route("/baseline", func(r chi.Router) {
			r.Get("/", behaviorHandler.GetBaseline)
			r.Put("/", behaviorHandler.UpdateBaseline)
		})
	})

	// Admin-authenticated routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(deps.JWTMgr))
		r.Use(auth.RequireRole("analyst", "superadmin"))

		r.Get("/security/events", securityHandler.ListEvents)
	})

	return r
}

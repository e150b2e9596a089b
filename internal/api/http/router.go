package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Accounts       *handlers.AccountsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	RateLimit      config.RateLimitConfig
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1")

	// Per-route middleware; an empty-prefix Group would match every /api/v1 path.
	limited := RateLimit(cfg.RateLimit)
	api.Post("/register", limited, cfg.Accounts.Register)
	api.Get("/verify-email", limited, cfg.Accounts.VerifyEmail)
	api.Post("/login", limited, cfg.Accounts.Login)
	api.Post("/password-reset", limited, cfg.Accounts.RequestPasswordReset)
	api.Post("/password-reset-confirm", limited, cfg.Accounts.ConfirmPasswordReset)

	api.Post("/logout", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Accounts.Logout)

	admin := api.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireElevated())
	admin.Get("", cfg.Admin.ListAccounts)
	admin.Get("/:id", cfg.Admin.GetAccount)
}

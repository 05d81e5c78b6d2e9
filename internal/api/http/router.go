package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/storage"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Departments    *handlers.DepartmentsHandler
	Tickets        *handlers.TicketsHandler
	Comments       *handlers.CommentsHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        fiber.Handler
	UploadDir      string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}
	if cfg.UploadDir != "" {
		app.Static(storage.PublicPrefix, cfg.UploadDir)
	}

	api := app.Group("/api")
	api.Post("/auth/login", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/auth/change-password", cfg.Auth.ChangePassword)

	admin := auth.RequireAdmin()

	protected.Get("/departments", cfg.Departments.List)
	protected.Post("/departments", admin, cfg.Departments.Create)
	protected.Get("/departments/:id/users", cfg.Departments.Users)

	protected.Get("/users", admin, cfg.Users.List)
	protected.Post("/users", admin, cfg.Users.Create)
	protected.Patch("/users/:id", admin, cfg.Users.Update)
	protected.Delete("/users/:id", admin, cfg.Users.Deactivate)

	protected.Get("/tickets", cfg.Tickets.ListTickets)
	protected.Get("/tickets/my-department", cfg.Tickets.ListMyDepartment)
	protected.Post("/tickets", cfg.Tickets.CreateTicket)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Put("/tickets/:id", cfg.Tickets.UpdateTicket)
	protected.Get("/tickets/:id/history", cfg.Tickets.History)
	protected.Get("/tickets/:id/comments", cfg.Comments.List)
	protected.Post("/tickets/:id/comments", cfg.Comments.Create)
	protected.Put("/comments/:id", cfg.Comments.Update)
	protected.Delete("/comments/:id", cfg.Comments.Delete)

	protected.Get("/analytics", cfg.Analytics.Departments)
	protected.Get("/analytics/email-stats", cfg.Analytics.EmailStats)
	protected.Get("/analytics/export", cfg.Analytics.Export)
}

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Blacklist      *handlers.BlacklistHandler
	History        *handlers.HistoryHandler
	AuthMiddleware *auth.AuthMiddleware
}

// NewServer builds the fiber app. Immutable is required: handlers pass route
// params and body strings to stores that keep them as keys.
func NewServer(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		Immutable:             true,
	})
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	staff := auth.RequireRole(domain.RoleStaff)
	staffOrBridge := auth.RequireRole(domain.RoleStaff, domain.RoleBridge)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", staffOrBridge, cfg.Tickets.OpenTicket)
	tickets.Get("/", staff, cfg.Tickets.ListTickets)
	tickets.Get("/:id", staff, cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", staff, cfg.History.List)
	tickets.Post("/:id/close", staff, cfg.Tickets.CloseTicket)
	tickets.Post("/:id/reopen", staff, cfg.Tickets.ReopenTicket)
	tickets.Post("/:id/claim", staff, cfg.Tickets.ClaimTicket)
	tickets.Post("/:id/transcript", staff, cfg.Tickets.Transcript)
	tickets.Delete("/:id", staff, cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/messages", staffOrBridge, cfg.Tickets.AddMessage)

	blacklist := app.Group("/blacklist", cfg.AuthMiddleware.Handle, staff)
	blacklist.Post("/", cfg.Blacklist.Add)
	blacklist.Delete("/:userID", cfg.Blacklist.Remove)
}

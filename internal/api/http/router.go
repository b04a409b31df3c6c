package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/servicedesk-realtime/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk-realtime/internal/auth"
	"github.com/spec-kit/servicedesk-realtime/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        fiber.Handler
	Realtime       *handlers.RealtimeHandler
	RealtimePath   string
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Users          *handlers.UsersHandler
	SLAAdmin       *handlers.SLAAdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	path := cfg.RealtimePath
	if path == "" {
		path = "/ws"
	}
	app.Get(path, cfg.Realtime.Upgrade, cfg.Realtime.Serve())

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/me", cfg.Users.Me)
	protected.Get("/notifications", cfg.Users.Notifications)
	protected.Get("/realtime/stats", auth.RequireStaff(), cfg.Realtime.Stats)
	protected.Get("/staff", auth.RequireStaff(), cfg.Users.Staff)

	tickets := protected.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	// Guarded per route: a guard on a group would also match the requester routes above.
	staffOnly := auth.RequireStaff()
	tickets.Patch("/:id/status", staffOnly, cfg.StaffTickets.UpdateStatus)
	tickets.Patch("/:id/priority", staffOnly, cfg.StaffTickets.UpdatePriority)
	tickets.Patch("/:id/assignee", staffOnly, cfg.StaffTickets.Assign)
	tickets.Get("/:id/sla", staffOnly, cfg.StaffTickets.GetSLA)
	tickets.Get("/:id/history", staffOnly, cfg.StaffTickets.History)

	admin := protected.Group("/admin/sla", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/policies", cfg.SLAAdmin.ListPolicies)
	admin.Post("/policies", cfg.SLAAdmin.CreatePolicy)
	admin.Patch("/policies/:id", cfg.SLAAdmin.UpdatePolicy)
	admin.Post("/policies/:id/rules", cfg.SLAAdmin.AddRule)
	admin.Post("/sweep", cfg.SLAAdmin.Sweep)
}

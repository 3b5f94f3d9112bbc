package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/routing-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Agents  *handlers.AgentsHandler
	Stats   *handlers.StatsHandler
	Admin   *handlers.AdminHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.Tickets.SubmitTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Post("/:id/reclassify", cfg.Tickets.Reclassify)
	tickets.Post("/:id/cancel", cfg.Tickets.CancelTicket)
	tickets.Post("/:id/complete", cfg.Tickets.CompleteTicket)

	incidents := app.Group("/incidents")
	incidents.Get("", cfg.Tickets.ListIncidents)
	incidents.Get("/:id", cfg.Tickets.GetIncident)

	agents := app.Group("/agents")
	agents.Post("", cfg.Agents.RegisterAgent)
	agents.Get("", cfg.Agents.ListAgents)
	agents.Get("/:id", cfg.Agents.GetAgent)
	agents.Patch("/:id/status", cfg.Agents.UpdateStatus)

	stats := app.Group("/stats")
	stats.Get("", cfg.Stats.EngineStats)
	stats.Get("/routing-history", cfg.Stats.RoutingHistory)
	stats.Get("/dead-letters", cfg.Stats.DeadLetters)

	admin := app.Group("/admin")
	admin.Get("/breaker", cfg.Admin.BreakerStats)
	admin.Post("/breaker/open", cfg.Admin.ForceOpen)
	admin.Post("/breaker/close", cfg.Admin.ForceClose)
	admin.Post("/breaker/reset", cfg.Admin.Reset)
}

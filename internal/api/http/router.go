package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/api/http/handlers"
	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Mutes          *handlers.MutesHandler
	Schedulers     *handlers.SchedulersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Reads need VIEWER, ticket and mute
// actions need MODERATOR and scheduler triggers need ADMIN.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	viewer := auth.RequireRole(domain.OperatorRoleViewer)
	moderator := auth.RequireRole(domain.OperatorRoleModerator)
	admin := auth.RequireRole(domain.OperatorRoleAdmin)

	api.Get("/tickets/:id", viewer, cfg.Tickets.GetTicket)
	api.Get("/tickets/:id/history", viewer, cfg.Tickets.History)
	api.Get("/threads/:threadID/ticket", viewer, cfg.Tickets.GetTicketByThread)
	api.Get("/guilds/:guildID/tickets/open", viewer, cfg.Tickets.ListOpen)
	api.Get("/guilds/:guildID/users/:userID/tickets", viewer, cfg.Tickets.ListUserTickets)
	api.Get("/guilds/:guildID/stats", viewer, cfg.Tickets.Stats)
	api.Get("/guilds/:guildID/staff/:staffID/stats", viewer, cfg.Tickets.StaffStats)
	api.Get("/guilds/:guildID/mutes", viewer, cfg.Mutes.List)
	api.Get("/schedulers", viewer, cfg.Schedulers.List)
	api.Get("/metrics", viewer, cfg.Schedulers.Metrics)

	api.Post("/tickets", moderator, cfg.Tickets.OpenTicket)
	api.Post("/tickets/:id/claim", moderator, cfg.Tickets.Claim)
	api.Post("/tickets/:id/unclaim", moderator, cfg.Tickets.Unclaim)
	api.Post("/tickets/:id/close", moderator, cfg.Tickets.Close)
	api.Post("/tickets/:id/reopen", moderator, cfg.Tickets.Reopen)
	api.Post("/tickets/:id/assign", moderator, cfg.Tickets.Assign)
	api.Post("/tickets/:id/priority", moderator, cfg.Tickets.SetPriority)
	api.Post("/tickets/:id/warn", moderator, cfg.Tickets.Warn)
	api.Post("/tickets/:id/clear-warning", moderator, cfg.Tickets.ClearWarning)
	api.Post("/tickets/:id/touch", moderator, cfg.Tickets.Touch)
	api.Post("/threads/:threadID/activity", moderator, cfg.Tickets.ThreadActivity)
	api.Post("/guilds/:guildID/mutes", moderator, cfg.Mutes.Create)
	api.Post("/mutes/:id/release", moderator, cfg.Mutes.Release)

	api.Post("/schedulers/:name/run", admin, cfg.Schedulers.Run)
}

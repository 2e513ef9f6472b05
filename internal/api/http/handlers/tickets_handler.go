package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/api/dto"
	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// TicketsHandler exposes ticket lookups and operator actions.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// OpenTicket POST /tickets.
func (h *TicketsHandler) OpenTicket(c *fiber.Ctx) error {
	var req dto.OpenTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.OpenTicket(c.UserContext(), service.OpenTicketInput{
		UserID:   req.UserID,
		GuildID:  req.GuildID,
		ThreadID: req.ThreadID,
		Category: req.Category,
		Subject:  req.Subject,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicketByThread GET /threads/:threadID/ticket.
func (h *TicketsHandler) GetTicketByThread(c *fiber.Ctx) error {
	threadID, err := idParam(c, "threadID")
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicketByThread(c.UserContext(), threadID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), ticket.TicketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// ListOpen GET /guilds/:guildID/tickets/open.
func (h *TicketsHandler) ListOpen(c *fiber.Ctx) error {
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	tickets, err := h.service.ListOpenTickets(c.UserContext(), guildID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// ListUserTickets GET /guilds/:guildID/users/:userID/tickets.
func (h *TicketsHandler) ListUserTickets(c *fiber.Ctx) error {
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	userID, err := idParam(c, "userID")
	if err != nil {
		return err
	}
	tickets, err := h.service.ListUserTickets(c.UserContext(), userID, guildID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// Stats GET /guilds/:guildID/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	stats, err := h.service.Stats(c.UserContext(), guildID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// StaffStats GET /guilds/:guildID/staff/:staffID/stats.
func (h *TicketsHandler) StaffStats(c *fiber.Ctx) error {
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	staffID, err := idParam(c, "staffID")
	if err != nil {
		return err
	}
	stats, err := h.service.StaffStats(c.UserContext(), staffID, guildID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	return h.apply(c, h.service.Claim)
}

// Unclaim POST /tickets/:id/unclaim.
func (h *TicketsHandler) Unclaim(c *fiber.Ctx) error {
	return h.apply(c, h.service.Unclaim)
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	return h.apply(c, h.service.Reopen)
}

// Warn POST /tickets/:id/warn.
func (h *TicketsHandler) Warn(c *fiber.Ctx) error {
	return h.apply(c, h.service.Warn)
}

// ClearWarning POST /tickets/:id/clear-warning.
func (h *TicketsHandler) ClearWarning(c *fiber.Ctx) error {
	return h.apply(c, h.service.ClearWarning)
}

// Touch POST /tickets/:id/touch.
func (h *TicketsHandler) Touch(c *fiber.Ctx) error {
	return h.apply(c, func(ctx context.Context, ticketID string, _ service.Actor) (bool, error) {
		return h.service.Touch(ctx, ticketID)
	})
}

// ThreadActivity POST /threads/:threadID/activity.
func (h *TicketsHandler) ThreadActivity(c *fiber.Ctx) error {
	threadID, err := idParam(c, "threadID")
	if err != nil {
		return err
	}
	var req dto.ThreadActivityRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	applied, err := h.service.RecordThreadActivity(c.UserContext(), threadID, req.AuthorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"applied": applied}})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	var req dto.CloseTicketRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	reason := strings.TrimSpace(req.Reason)
	return h.apply(c, func(ctx context.Context, ticketID string, actor service.Actor) (bool, error) {
		return h.service.Close(ctx, ticketID, actor, reason)
	})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return h.apply(c, func(ctx context.Context, ticketID string, actor service.Actor) (bool, error) {
		return h.service.Assign(ctx, ticketID, actor, req.AssigneeID)
	})
}

// SetPriority POST /tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	var req dto.SetPriorityRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return h.apply(c, func(ctx context.Context, ticketID string, actor service.Actor) (bool, error) {
		return h.service.SetPriority(ctx, ticketID, actor, req.Priority)
	})
}

// apply runs a guarded transition as the calling operator. A rejected
// transition is not an error: the response carries applied=false and the
// current ticket.
func (h *TicketsHandler) apply(c *fiber.Ctx, action func(context.Context, string, service.Actor) (bool, error)) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ctx := c.UserContext()
	ticketID := c.Params("id")
	if _, err := h.service.GetTicket(ctx, ticketID); err != nil {
		return err
	}
	applied, err := action(ctx, ticketID, service.StaffActor(principal.OperatorID))
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionResponse{Applied: applied, Ticket: ticketResponse(ticket)}})
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: c.Params(name)})
	}
	return id, nil
}

func ticketResponses(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		TicketID:       ticket.TicketID,
		ThreadID:       formatID(ticket.ThreadID),
		UserID:         formatID(ticket.UserID),
		GuildID:        formatID(ticket.GuildID),
		Category:       ticket.Category,
		Subject:        ticket.Subject,
		Priority:       ticket.Priority,
		Status:         ticket.Status,
		ClaimedBy:      formatOptionalID(ticket.ClaimedBy),
		ClaimedAt:      ticket.ClaimedAt,
		AssignedTo:     formatOptionalID(ticket.AssignedTo),
		CreatedAt:      ticket.CreatedAt,
		LastActivityAt: ticket.LastActivityAt,
		WarnedAt:       ticket.WarnedAt,
		ClosedAt:       ticket.ClosedAt,
		ClosedBy:       formatOptionalID(ticket.ClosedBy),
		CloseReason:    ticket.CloseReason,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   formatOptionalID(entry.ChangedByID),
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatOptionalID(id *int64) *string {
	if id == nil {
		return nil
	}
	s := formatID(*id)
	return &s
}

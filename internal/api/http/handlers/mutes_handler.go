package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/api/dto"
	"github.com/spec-kit/ticket-scheduler/internal/auth"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// MutesHandler exposes mute management.
type MutesHandler struct {
	service *service.TicketService
}

// NewMutesHandler constructs handler.
func NewMutesHandler(ticketService *service.TicketService) *MutesHandler {
	return &MutesHandler{service: ticketService}
}

// Create POST /guilds/:guildID/mutes.
func (h *MutesHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	var req dto.CreateMuteRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	record, err := h.service.Mute(c.UserContext(), service.MuteInput{
		GuildID:         guildID,
		UserID:          req.UserID,
		DurationMinutes: req.DurationMinutes,
		Reason:          req.Reason,
	}, service.StaffActor(principal.OperatorID))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": muteResponse(record)})
}

// List GET /guilds/:guildID/mutes.
func (h *MutesHandler) List(c *fiber.Ctx) error {
	guildID, err := idParam(c, "guildID")
	if err != nil {
		return err
	}
	records, err := h.service.ListMutes(c.UserContext(), guildID)
	if err != nil {
		return err
	}
	items := make([]dto.MuteResponse, 0, len(records))
	for i := range records {
		items = append(items, muteResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Release POST /mutes/:id/release.
func (h *MutesHandler) Release(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	muteID, err := idParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.ReleaseMuteRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	record, err := h.service.Unmute(c.UserContext(), muteID, service.StaffActor(principal.OperatorID), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": muteResponse(record)})
}

func muteResponse(record *domain.MuteRecord) dto.MuteResponse {
	resp := dto.MuteResponse{
		ID:              formatID(record.ID),
		UserID:          formatID(record.UserID),
		GuildID:         formatID(record.GuildID),
		MutedAt:         record.MutedAt,
		DurationMinutes: record.DurationMinutes,
		Reason:          record.Reason,
		MuterID:         formatID(record.MuterID),
		Active:          record.Active,
		ReleasedAt:      record.ReleasedAt,
		ReleasedBy:      formatOptionalID(record.ReleasedBy),
		ReleaseReason:   record.ReleaseReason,
	}
	if expiry, ok := record.ExpiresAt(); ok {
		resp.ExpiresAt = &expiry
	}
	return resp
}

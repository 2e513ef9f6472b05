package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// ReleaseReasonManual is recorded when staff lift a mute without a reason.
const ReleaseReasonManual = "released by staff"

// MuteInput describes a staff-issued mute. A nil DurationMinutes mutes
// until someone releases it.
type MuteInput struct {
	GuildID         int64
	UserID          int64
	DurationMinutes *int
	Reason          string
}

// Mute confines a member and records the mute, replacing any mute already
// active for the same member. The muted role is applied first; when that
// fails nothing is recorded.
func (s *TicketService) Mute(ctx context.Context, input MuteInput, actor Actor) (*domain.MuteRecord, error) {
	if input.DurationMinutes != nil && *input.DurationMinutes <= 0 {
		return nil, apperrors.NewValidationError("duration must be positive",
			map[string]any{"duration_minutes": *input.DurationMinutes})
	}

	if s.moderation != nil {
		if err := s.moderation.ConfineUser(ctx, input.GuildID, input.UserID); err != nil {
			if errors.Is(err, collab.ErrNotFound) {
				return nil, apperrors.NewNotFound("member", map[string]any{
					"guild_id": input.GuildID,
					"user_id":  input.UserID,
				})
			}
			return nil, apperrors.NewTransientExternal("apply muted role", err)
		}
	}

	record, err := s.mutes.AddMute(ctx, domain.NewMute{
		UserID:          input.UserID,
		GuildID:         input.GuildID,
		DurationMinutes: input.DurationMinutes,
		Reason:          strings.TrimSpace(input.Reason),
		MuterID:         actor.ID,
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:    events.EventMuteAdded,
		GuildID: record.GuildID,
		Actor:   eventActor(actor),
		Payload: events.MuteAddedPayload{
			MuteID:          record.ID,
			UserID:          record.UserID,
			DurationMinutes: record.DurationMinutes,
			Reason:          record.Reason,
		},
	})
	return record, nil
}

// ListMutes returns the active mutes of a guild, oldest first.
func (s *TicketService) ListMutes(ctx context.Context, guildID int64) ([]domain.MuteRecord, error) {
	return s.mutes.ListActiveMutes(ctx, &guildID)
}

// Unmute lifts an active mute before it expires. A member who already left
// the guild is released in the record only.
func (s *TicketService) Unmute(ctx context.Context, muteID int64, actor Actor, reason string) (*domain.MuteRecord, error) {
	record, err := s.mutes.GetMute(ctx, muteID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.NewNotFound("mute", map[string]any{"mute_id": muteID})
	}
	if !record.Active {
		return nil, apperrors.NewConflict("mute already released", map[string]any{"mute_id": muteID})
	}

	if s.moderation != nil {
		err := s.moderation.ReleaseUser(ctx, record.GuildID, record.UserID)
		switch {
		case errors.Is(err, collab.ErrNotFound):
			s.logger.Info("muted member no longer present",
				zap.Int64("guild_id", record.GuildID),
				zap.Int64("user_id", record.UserID))
		case err != nil:
			return nil, apperrors.NewTransientExternal("release muted member", err)
		}
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReleaseReasonManual
	}
	ok, err := s.ReleaseMute(ctx, *record, actor, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewConflict("mute already released", map[string]any{"mute_id": muteID})
	}
	return s.mutes.GetMute(ctx, muteID)
}

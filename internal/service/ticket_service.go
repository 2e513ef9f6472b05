package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// TicketService is the single writer of ticket state. Operators and
// schedulers both go through it so every effective transition is recorded
// in history and published as an event.
type TicketService struct {
	tickets        repository.TicketRepository
	mutes          repository.MuteRepository
	history        repository.TicketHistoryRepository
	dispatcher     events.Dispatcher
	moderation     collab.Moderation
	clock          clock.Clock
	logger         *zap.Logger
	maxOpenPerUser int
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo            repository.TicketRepository
	MuteRepo              repository.MuteRepository
	HistoryRepo           repository.TicketHistoryRepository
	Dispatcher            events.Dispatcher
	// Moderation applies and lifts the muted role. Nil records mutes only.
	Moderation            collab.Moderation
	Clock                 clock.Clock
	Logger                *zap.Logger
	MaxOpenTicketsPerUser int
}

// Actor identifies who requested a transition.
type Actor struct {
	Type domain.SubjectType
	ID   int64
}

// StaffActor returns an actor for a staff member.
func StaffActor(id int64) Actor {
	return Actor{Type: domain.SubjectTypeStaff, ID: id}
}

// UserActor returns an actor for the member who owns a ticket.
func UserActor(id int64) Actor {
	return Actor{Type: domain.SubjectTypeUser, ID: id}
}

// SystemActor returns the actor recorded for automatic transitions.
func SystemActor(id int64) Actor {
	return Actor{Type: domain.SubjectTypeSystem, ID: id}
}

// OpenTicketInput describes ticket creation payload.
type OpenTicketInput struct {
	UserID   int64
	GuildID  int64
	ThreadID int64
	Category domain.TicketCategory
	Subject  string
}

// GuildStats combines live partition counts with the permanent counter.
type GuildStats struct {
	domain.TicketStats
	TotalClosed int64 `json:"total_closed"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxOpen := deps.MaxOpenTicketsPerUser
	if maxOpen <= 0 {
		maxOpen = 1
	}
	return &TicketService{
		tickets:        deps.TicketRepo,
		mutes:          deps.MuteRepo,
		history:        deps.HistoryRepo,
		dispatcher:     deps.Dispatcher,
		moderation:     deps.Moderation,
		clock:          clk,
		logger:         logger.Named("tickets"),
		maxOpenPerUser: maxOpen,
	}
}

// OpenTicket creates a ticket for a user. The store enforces the per-user
// limit of concurrently open tickets in a guild atomically with the insert.
func (s *TicketService) OpenTicket(ctx context.Context, input OpenTicketInput) (*domain.Ticket, error) {
	if !input.Category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", map[string]any{"category": input.Category})
	}

	ticketID, err := s.tickets.GenerateTicketID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.CreateTicket(ctx, domain.NewTicket{
		TicketID: ticketID,
		UserID:   input.UserID,
		GuildID:  input.GuildID,
		ThreadID: input.ThreadID,
		Category: input.Category,
		Subject:  strings.TrimSpace(input.Subject),

		MaxOpenPerUser: s.maxOpenPerUser,
	}); err != nil {
		return nil, err
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		GuildID:  ticket.GuildID,
		TicketID: ticket.TicketID,
		Payload: events.TicketCreatedPayload{
			UserID:   ticket.UserID,
			ThreadID: ticket.ThreadID,
			Category: ticket.Category,
			Subject:  ticket.Subject,
		},
	})
	return ticket, nil
}

// GetTicket returns a ticket or a NOT_FOUND error.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// GetTicketByThread returns the ticket bound to a thread or a NOT_FOUND error.
func (s *TicketService) GetTicketByThread(ctx context.Context, threadID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetTicketByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"thread_id": threadID})
	}
	return ticket, nil
}

func (s *TicketService) ListOpenTickets(ctx context.Context, guildID int64) ([]domain.Ticket, error) {
	return s.tickets.GetOpenTickets(ctx, guildID)
}

func (s *TicketService) ListUserTickets(ctx context.Context, userID, guildID int64) ([]domain.Ticket, error) {
	return s.tickets.GetUserTickets(ctx, userID, guildID)
}

// Stats returns the status partition for a guild plus its lifetime closes.
func (s *TicketService) Stats(ctx context.Context, guildID int64) (GuildStats, error) {
	stats, err := s.tickets.GetTicketStats(ctx, guildID)
	if err != nil {
		return GuildStats{}, err
	}
	total, err := s.tickets.GetTotalTicketsClosed(ctx, guildID)
	if err != nil {
		return GuildStats{}, err
	}
	return GuildStats{TicketStats: stats, TotalClosed: total}, nil
}

func (s *TicketService) StaffStats(ctx context.Context, staffID, guildID int64) (domain.StaffTicketStats, error) {
	return s.tickets.GetStaffTicketStats(ctx, staffID, guildID)
}

// History lists the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListByTicket(ctx, ticketID)
}

// Claim records actor as the owner. Closed or absent tickets return false.
func (s *TicketService) Claim(ctx context.Context, ticketID string, actor Actor) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.ClaimTicket(ctx, ticketID, actor.ID)
	}, statusChange(events.EventTicketClaimed, ""))
}

func (s *TicketService) Unclaim(ctx context.Context, ticketID string, actor Actor) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.UnclaimTicket(ctx, ticketID)
	}, statusChange(events.EventTicketUnclaimed, ""))
}

// Close closes a ticket. Exactly one of several racing closes returns true.
func (s *TicketService) Close(ctx context.Context, ticketID string, actor Actor, reason string) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.CloseTicket(ctx, ticketID, actor.ID, reason)
	}, statusChange(events.EventTicketClosed, reason))
}

func (s *TicketService) Reopen(ctx context.Context, ticketID string, actor Actor) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.ReopenTicket(ctx, ticketID)
	}, statusChange(events.EventTicketReopened, ""))
}

func (s *TicketService) Assign(ctx context.Context, ticketID string, actor Actor, assigneeID int64) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.AssignTicket(ctx, ticketID, assigneeID)
	}, func(before, after *domain.Ticket) change {
		old := map[string]any{"assigned_to": nil}
		if before.AssignedTo != nil {
			old["assigned_to"] = *before.AssignedTo
		}
		return change{
			event:      events.EventTicketAssigned,
			changeType: domain.ChangeTypeAssignee,
			oldValue:   old,
			newValue:   map[string]any{"assigned_to": assigneeID},
			payload:    events.TicketAssignedPayload{AssigneeID: assigneeID},
		}
	})
}

func (s *TicketService) SetPriority(ctx context.Context, ticketID string, actor Actor, priority domain.TicketPriority) (bool, error) {
	if !priority.Valid() {
		return false, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.SetTicketPriority(ctx, ticketID, priority)
	}, func(before, after *domain.Ticket) change {
		return change{
			event:      events.EventTicketPriorityChanged,
			changeType: domain.ChangeTypePriority,
			oldValue:   map[string]any{"priority": before.Priority},
			newValue:   map[string]any{"priority": after.Priority},
			payload: events.TicketPriorityChangedPayload{
				OldPriority: before.Priority,
				NewPriority: after.Priority,
			},
		}
	})
}

// Warn records an inactivity warning. Closed or already warned tickets
// return false.
func (s *TicketService) Warn(ctx context.Context, ticketID string, actor Actor) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.MarkTicketWarned(ctx, ticketID)
	}, warningChange(events.EventTicketWarned))
}

func (s *TicketService) ClearWarning(ctx context.Context, ticketID string, actor Actor) (bool, error) {
	return s.transition(ctx, ticketID, actor, func(ctx context.Context) (bool, error) {
		return s.tickets.ClearTicketWarning(ctx, ticketID)
	}, warningChange(events.EventTicketWarningCleared))
}

// Touch bumps the ticket's last activity. It is too frequent to audit.
func (s *TicketService) Touch(ctx context.Context, ticketID string) (bool, error) {
	return s.tickets.UpdateTicketActivity(ctx, ticketID)
}

// RecordThreadActivity handles a message posted in a ticket thread: the
// ticket's activity is bumped and a pending inactivity warning is lifted.
// Threads without a ticket and closed tickets are ignored.
func (s *TicketService) RecordThreadActivity(ctx context.Context, threadID, authorID int64) (bool, error) {
	ticket, err := s.tickets.GetTicketByThread(ctx, threadID)
	if err != nil {
		return false, err
	}
	if ticket == nil || ticket.IsClosed() {
		return false, nil
	}
	ok, err := s.Touch(ctx, ticket.TicketID)
	if err != nil || !ok {
		return ok, err
	}
	if ticket.IsWarned() {
		actor := StaffActor(authorID)
		if authorID == ticket.UserID {
			actor = UserActor(authorID)
		}
		if _, err := s.ClearWarning(ctx, ticket.TicketID, actor); err != nil {
			return true, err
		}
	}
	return true, nil
}

// ReleaseMute marks a mute inactive and announces it.
func (s *TicketService) ReleaseMute(ctx context.Context, record domain.MuteRecord, actor Actor, reason string) (bool, error) {
	ok, err := s.mutes.ReleaseMute(ctx, record.ID, actor.ID, reason)
	if err != nil || !ok {
		return ok, err
	}
	s.publishEvent(ctx, events.Event{
		Type:    events.EventMuteReleased,
		GuildID: record.GuildID,
		Actor:   eventActor(actor),
		Payload: events.MuteReleasedPayload{MuteID: record.ID, UserID: record.UserID, Reason: reason},
	})
	return true, nil
}

// RecordThreadDeleted stores that a closed ticket's thread is gone. The
// ticket record itself is not changed.
func (s *TicketService) RecordThreadDeleted(ctx context.Context, thread domain.ArchivableThread) error {
	if err := s.tickets.MarkThreadDeleted(ctx, thread, s.clock.Now()); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventThreadDeleted,
		GuildID:  thread.GuildID,
		TicketID: thread.TicketID,
		Actor:    events.Actor{Type: domain.SubjectTypeSystem},
		Payload:  events.ThreadDeletedPayload{ThreadID: thread.ThreadID, ClosedAt: thread.ClosedAt},
	})
	return nil
}

// change describes the audit entry and event produced by a transition.
type change struct {
	event      events.EventType
	changeType domain.TicketChangeType
	oldValue   map[string]any
	newValue   map[string]any
	payload    any
}

func statusChange(eventType events.EventType, reason string) func(before, after *domain.Ticket) change {
	return func(before, after *domain.Ticket) change {
		newValue := map[string]any{"status": after.Status}
		if reason != "" {
			newValue["reason"] = reason
		}
		changeType := domain.ChangeTypeStatus
		if eventType == events.EventTicketClaimed || eventType == events.EventTicketUnclaimed {
			changeType = domain.ChangeTypeClaim
		}
		return change{
			event:      eventType,
			changeType: changeType,
			oldValue:   map[string]any{"status": before.Status},
			newValue:   newValue,
			payload: events.TicketStatusChangedPayload{
				ThreadID:  after.ThreadID,
				OldStatus: before.Status,
				NewStatus: after.Status,
				Reason:    reason,
			},
		}
	}
}

func warningChange(eventType events.EventType) func(before, after *domain.Ticket) change {
	return func(before, after *domain.Ticket) change {
		return change{
			event:      eventType,
			changeType: domain.ChangeTypeWarning,
			oldValue:   map[string]any{"warned_at": before.WarnedAt},
			newValue:   map[string]any{"warned_at": after.WarnedAt},
			payload: events.TicketWarningPayload{
				ThreadID:       after.ThreadID,
				LastActivityAt: after.LastActivityAt,
			},
		}
	}
}

// transition runs a guarded store mutation and, when it took effect,
// records history and publishes the matching event. The store is the
// arbiter; the reads around it only describe what happened.
func (s *TicketService) transition(
	ctx context.Context,
	ticketID string,
	actor Actor,
	mutate func(context.Context) (bool, error),
	describe func(before, after *domain.Ticket) change,
) (bool, error) {
	before, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return false, err
	}
	if before == nil {
		return false, nil
	}
	ok, err := mutate(ctx)
	if err != nil || !ok {
		return ok, err
	}
	after, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil || after == nil {
		s.logger.Warn("reload after transition failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return true, nil
	}

	c := describe(before, after)
	s.recordHistory(ctx, ticketID, actor, c)
	s.publishEvent(ctx, events.Event{
		Type:     c.event,
		GuildID:  after.GuildID,
		TicketID: ticketID,
		Actor:    eventActor(actor),
		Payload:  c.payload,
	})
	return true, nil
}

func (s *TicketService) recordHistory(ctx context.Context, ticketID string, actor Actor, c change) {
	if s.history == nil {
		return
	}
	actorID := actor.ID
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   &actorID,
		ChangeType:    c.changeType,
		OldValue:      c.oldValue,
		NewValue:      c.newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func eventActor(actor Actor) events.Actor {
	id := actor.ID
	switch actor.Type {
	case domain.SubjectTypeStaff:
		return events.Actor{Type: actor.Type, StaffID: &id}
	case domain.SubjectTypeUser:
		return events.Actor{Type: actor.Type, UserID: &id}
	}
	return events.Actor{Type: domain.SubjectTypeSystem}
}

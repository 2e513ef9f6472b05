package events

import (
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketClaimed         EventType = "ticket_claimed"
	EventTicketUnclaimed       EventType = "ticket_unclaimed"
	EventTicketClosed          EventType = "ticket_closed"
	EventTicketReopened        EventType = "ticket_reopened"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketWarned          EventType = "ticket_warned"
	EventTicketWarningCleared  EventType = "ticket_warning_cleared"
	EventMuteAdded             EventType = "mute_added"
	EventMuteReleased          EventType = "mute_released"
	EventThreadDeleted         EventType = "thread_deleted"
)

// AllEventTypes lists every type a presentation layer may subscribe to.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketUnclaimed,
	EventTicketClosed,
	EventTicketReopened,
	EventTicketAssigned,
	EventTicketPriorityChanged,
	EventTicketWarned,
	EventTicketWarningCleared,
	EventMuteAdded,
	EventMuteReleased,
	EventThreadDeleted,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID *int64             `json:"staff_id,omitempty"`
	UserID  *int64             `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	GuildID   int64       `json:"guild_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID   int64                 `json:"user_id"`
	ThreadID int64                 `json:"thread_id"`
	Category domain.TicketCategory `json:"category"`
	Subject  string                `json:"subject"`
}

// TicketStatusChangedPayload is shared by claim, unclaim, close and reopen.
type TicketStatusChangedPayload struct {
	ThreadID  int64               `json:"thread_id"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Reason    string              `json:"reason,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID int64 `json:"assignee_id"`
}

// TicketWarningPayload is shared by warn and clear-warning.
type TicketWarningPayload struct {
	ThreadID       int64     `json:"thread_id"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// MuteAddedPayload payload. A nil DurationMinutes means indefinite.
type MuteAddedPayload struct {
	MuteID          int64  `json:"mute_id"`
	UserID          int64  `json:"user_id"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// MuteReleasedPayload payload.
type MuteReleasedPayload struct {
	MuteID int64  `json:"mute_id"`
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

// ThreadDeletedPayload payload.
type ThreadDeletedPayload struct {
	ThreadID int64     `json:"thread_id"`
	ClosedAt time.Time `json:"closed_at"`
}

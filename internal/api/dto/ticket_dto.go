package dto

import (
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// Discord snowflakes exceed the 53-bit integer range of JSON clients, so ids
// travel as strings.

// OpenTicketRequest payload.
type OpenTicketRequest struct {
	UserID   int64                 `json:"user_id,string" validate:"required,gt=0"`
	GuildID  int64                 `json:"guild_id,string" validate:"required,gt=0"`
	ThreadID int64                 `json:"thread_id,string" validate:"required,gt=0"`
	Category domain.TicketCategory `json:"category" validate:"required"`
	Subject  string                `json:"subject" validate:"max=100"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID int64 `json:"assignee_id,string" validate:"required,gt=0"`
}

// ThreadActivityRequest reports a message posted in a ticket thread.
type ThreadActivityRequest struct {
	AuthorID int64 `json:"author_id,string" validate:"required,gt=0"`
}

// SetPriorityRequest payload.
type SetPriorityRequest struct {
	Priority domain.TicketPriority `json:"priority" validate:"required"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	TicketID       string                `json:"ticket_id"`
	ThreadID       string                `json:"thread_id"`
	UserID         string                `json:"user_id"`
	GuildID        string                `json:"guild_id"`
	Category       domain.TicketCategory `json:"category"`
	Subject        string                `json:"subject"`
	Priority       domain.TicketPriority `json:"priority"`
	Status         domain.TicketStatus   `json:"status"`
	ClaimedBy      *string               `json:"claimed_by"`
	ClaimedAt      *time.Time            `json:"claimed_at"`
	AssignedTo     *string               `json:"assigned_to"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	WarnedAt       *time.Time            `json:"warned_at"`
	ClosedAt       *time.Time            `json:"closed_at"`
	ClosedBy       *string               `json:"closed_by"`
	CloseReason    *string               `json:"close_reason"`
}

// TransitionResponse reports whether a guarded action took effect.
type TransitionResponse struct {
	Applied bool           `json:"applied"`
	Ticket  TicketResponse `json:"ticket"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.SubjectType      `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

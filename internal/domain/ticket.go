package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusClaimed TicketStatus = "claimed"
	TicketStatusClosed  TicketStatus = "closed"
)

// TicketPriority enumerates staff-facing urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Rank orders priorities for queue display, urgent first.
func (p TicketPriority) Rank() int {
	switch p {
	case TicketPriorityUrgent:
		return 1
	case TicketPriorityHigh:
		return 2
	case TicketPriorityNormal:
		return 3
	case TicketPriorityLow:
		return 4
	}
	return 5
}

// TicketCategory classifies what a ticket is about.
type TicketCategory string

const (
	TicketCategorySupport     TicketCategory = "support"
	TicketCategoryPartnership TicketCategory = "partnership"
	TicketCategorySuggestion  TicketCategory = "suggestion"
	TicketCategoryAppeal      TicketCategory = "appeal"
)

// Valid reports whether c is one of the known categories.
func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategorySupport, TicketCategoryPartnership, TicketCategorySuggestion, TicketCategoryAppeal:
		return true
	}
	return false
}

// TicketIDPrefix is prepended to the sequence number of every ticket id.
const TicketIDPrefix = "T"

// FormatTicketID renders a sequence number as a ticket id (T001, T002, ... T1000).
func FormatTicketID(seq int64) string {
	return fmt.Sprintf("%s%03d", TicketIDPrefix, seq)
}

// Ticket is a support request bound to one conversation thread.
type Ticket struct {
	TicketID       string
	ThreadID       int64
	UserID         int64
	GuildID        int64
	Category       TicketCategory
	Subject        string
	Priority       TicketPriority
	Status         TicketStatus
	ClaimedBy      *int64
	ClaimedAt      *time.Time
	AssignedTo     *int64
	CreatedAt      time.Time
	LastActivityAt time.Time
	WarnedAt       *time.Time
	ClosedAt       *time.Time
	ClosedBy       *int64
	CloseReason    *string
}

// IsClosed reports whether the ticket is in the closed state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// IsWarned reports whether an inactivity warning is recorded.
func (t *Ticket) IsWarned() bool {
	return t.WarnedAt != nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.ClaimedBy = cloneInt64(t.ClaimedBy)
	c.ClaimedAt = cloneTime(t.ClaimedAt)
	c.AssignedTo = cloneInt64(t.AssignedTo)
	c.WarnedAt = cloneTime(t.WarnedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	c.ClosedBy = cloneInt64(t.ClosedBy)
	if t.CloseReason != nil {
		r := *t.CloseReason
		c.CloseReason = &r
	}
	return &c
}

// NewTicket carries the fields required to create a ticket.
type NewTicket struct {
	TicketID string
	UserID   int64
	GuildID  int64
	ThreadID int64
	Category TicketCategory
	Subject  string
	// MaxOpenPerUser caps the user's non-closed tickets in the guild,
	// counting this one. Zero means no cap.
	MaxOpenPerUser int
}

// TicketStats partitions a guild's tickets by status.
type TicketStats struct {
	Open    int `json:"open"`
	Claimed int `json:"claimed"`
	Closed  int `json:"closed"`
}

// StaffTicketStats counts tickets a staff member has claimed and closed.
type StaffTicketStats struct {
	Claimed int `json:"claimed"`
	Closed  int `json:"closed"`
}

// ArchivableThread references a closed ticket's thread awaiting deletion.
type ArchivableThread struct {
	TicketID string
	GuildID  int64
	ThreadID int64
	ClosedAt time.Time
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

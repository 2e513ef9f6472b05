package repository

import (
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// mutation rewrites the mutable fields of a ticket that Decide already
// accepted. Both store implementations apply the same mutations so the
// field semantics of each action live in one place.
type mutation func(t *domain.Ticket, now time.Time)

func claimMutation(actorID int64) mutation {
	return func(t *domain.Ticket, now time.Time) {
		t.Status = domain.TicketStatusClaimed
		t.ClaimedBy = &actorID
		t.ClaimedAt = &now
	}
}

func unclaimMutation() mutation {
	return func(t *domain.Ticket, _ time.Time) {
		t.Status = domain.TicketStatusOpen
		t.ClaimedBy = nil
		t.ClaimedAt = nil
	}
}

func closeMutation(actorID int64, reason string) mutation {
	return func(t *domain.Ticket, now time.Time) {
		t.Status = domain.TicketStatusClosed
		t.ClosedAt = &now
		t.ClosedBy = &actorID
		t.CloseReason = &reason
	}
}

// reopenMutation leaves WarnedAt alone; clearing it is a separate action.
func reopenMutation() mutation {
	return func(t *domain.Ticket, _ time.Time) {
		t.Status = domain.TicketStatusOpen
		t.ClosedAt = nil
		t.ClosedBy = nil
		t.CloseReason = nil
	}
}

func priorityMutation(priority domain.TicketPriority) mutation {
	return func(t *domain.Ticket, _ time.Time) {
		t.Priority = priority
	}
}

func assignMutation(actorID int64) mutation {
	return func(t *domain.Ticket, _ time.Time) {
		t.AssignedTo = &actorID
	}
}

func warnMutation() mutation {
	return func(t *domain.Ticket, now time.Time) {
		t.WarnedAt = &now
	}
}

func clearWarningMutation() mutation {
	return func(t *domain.Ticket, _ time.Time) {
		t.WarnedAt = nil
	}
}

// touchMutation never moves LastActivityAt backwards.
func touchMutation() mutation {
	return func(t *domain.Ticket, now time.Time) {
		if now.After(t.LastActivityAt) {
			t.LastActivityAt = now
		}
	}
}

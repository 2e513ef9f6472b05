package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus   TicketChangeType = "STATUS_CHANGE"
	ChangeTypeClaim    TicketChangeType = "CLAIM_CHANGE"
	ChangeTypeAssignee TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeWarning  TicketChangeType = "WARNING_CHANGE"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType SubjectType
	ChangedByID   *int64
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketIn(status TicketStatus, warned bool) *Ticket {
	t := &Ticket{TicketID: "T001", Status: status}
	if status == TicketStatusClosed {
		now := time.Now()
		t.ClosedAt = &now
	}
	if warned {
		now := time.Now()
		t.WarnedAt = &now
	}
	return t
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name   string
		ticket *Ticket
		action Action
		want   TicketStatus
		reject bool
	}{
		{"claim open", ticketIn(TicketStatusOpen, false), ActionClaim, TicketStatusClaimed, false},
		{"claim claimed", ticketIn(TicketStatusClaimed, false), ActionClaim, TicketStatusClaimed, false},
		{"claim closed", ticketIn(TicketStatusClosed, false), ActionClaim, "", true},
		{"unclaim claimed", ticketIn(TicketStatusClaimed, false), ActionUnclaim, TicketStatusOpen, false},
		{"unclaim closed", ticketIn(TicketStatusClosed, false), ActionUnclaim, "", true},
		{"close open", ticketIn(TicketStatusOpen, false), ActionClose, TicketStatusClosed, false},
		{"close claimed", ticketIn(TicketStatusClaimed, true), ActionClose, TicketStatusClosed, false},
		{"close closed", ticketIn(TicketStatusClosed, false), ActionClose, "", true},
		{"reopen closed", ticketIn(TicketStatusClosed, true), ActionReopen, TicketStatusOpen, false},
		{"reopen open", ticketIn(TicketStatusOpen, false), ActionReopen, "", true},
		{"warn open", ticketIn(TicketStatusOpen, false), ActionWarn, TicketStatusOpen, false},
		{"warn claimed", ticketIn(TicketStatusClaimed, false), ActionWarn, TicketStatusClaimed, false},
		{"warn warned", ticketIn(TicketStatusOpen, true), ActionWarn, "", true},
		{"warn closed", ticketIn(TicketStatusClosed, false), ActionWarn, "", true},
		{"clear warned", ticketIn(TicketStatusOpen, true), ActionClearWarning, TicketStatusOpen, false},
		{"clear warned closed", ticketIn(TicketStatusClosed, true), ActionClearWarning, TicketStatusClosed, false},
		{"clear unwarned", ticketIn(TicketStatusOpen, false), ActionClearWarning, "", true},
		{"assign closed", ticketIn(TicketStatusClosed, false), ActionAssign, TicketStatusClosed, false},
		{"prioritize claimed", ticketIn(TicketStatusClaimed, false), ActionPrioritize, TicketStatusClaimed, false},
		{"touch open", ticketIn(TicketStatusOpen, false), ActionTouch, TicketStatusOpen, false},
		{"unknown", ticketIn(TicketStatusOpen, false), Action("escalate"), "", true},
		{"absent", nil, ActionClose, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decide(tc.ticket, tc.action)
			if tc.reject {
				require.Error(t, err)
				assert.True(t, IsRejected(err))
				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tc.action, te.Action)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecideDoesNotMutate(t *testing.T) {
	ticket := ticketIn(TicketStatusOpen, false)
	before := ticket.Clone()
	_, err := Decide(ticket, ActionClose)
	require.NoError(t, err)
	assert.Equal(t, before, ticket)
}

func TestFormatTicketID(t *testing.T) {
	assert.Equal(t, "T001", FormatTicketID(1))
	assert.Equal(t, "T042", FormatTicketID(42))
	assert.Equal(t, "T999", FormatTicketID(999))
	assert.Equal(t, "T1000", FormatTicketID(1000))
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, TicketPriorityUrgent.Rank(), TicketPriorityHigh.Rank())
	assert.Less(t, TicketPriorityHigh.Rank(), TicketPriorityNormal.Rank())
	assert.Less(t, TicketPriorityNormal.Rank(), TicketPriorityLow.Rank())
	assert.False(t, TicketPriority("critical").Valid())
}

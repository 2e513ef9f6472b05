package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

func TestHistoryListsEntriesInOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s stores, clk *clock.FakeClock) {
		ctx := context.Background()
		id := newTicket(t, s.tickets, 1, guildA, 901)
		actor := staff

		for _, status := range []domain.TicketStatus{domain.TicketStatusClaimed, domain.TicketStatusClosed} {
			clk.Advance(time.Minute)
			require.NoError(t, s.history.Create(ctx, &domain.TicketHistory{
				TicketID:      id,
				ChangedByType: domain.SubjectTypeStaff,
				ChangedByID:   &actor,
				ChangeType:    domain.ChangeTypeStatus,
				OldValue:      map[string]any{"status": "open"},
				NewValue:      map[string]any{"status": string(status)},
			}))
		}

		entries, err := s.history.ListByTicket(ctx, id)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.NotEmpty(t, entries[0].ID)
		assert.Equal(t, "claimed", entries[0].NewValue["status"])
		assert.Equal(t, "closed", entries[1].NewValue["status"])
		assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))

		none, err := s.history.ListByTicket(ctx, "T999")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/service"
)

func newInactivity(h *harness, writer TicketWriter) *InactivityScheduler {
	if writer == nil {
		writer = h.svc
	}
	return NewInactivityScheduler(InactivityDeps{
		Tickets:   h.tickets,
		Writer:    writer,
		Messaging: h.messaging,
		Gate:      h.gate,
		Clock:     h.clk,
	}, InactivityConfig{
		WarnAfter:     3 * day,
		CloseAfter:    2 * day,
		SystemActorID: systemID,
	})
}

func TestInactivityWarnsIdleTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, 1, 101)
	b := h.open(t, 2, 102)
	h.clk.Advance(2 * day)
	fresh := h.open(t, 3, 103)
	h.clk.Advance(day + time.Minute)

	h.messaging.EXPECT().Notify(gomock.Any(), int64(101), gomock.Any()).Return(nil)
	h.messaging.EXPECT().Notify(gomock.Any(), int64(102), gomock.Any()).Return(nil)

	report, err := newInactivity(h, nil).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Warned)
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Closed)

	assert.True(t, h.ticket(t, a.TicketID).IsWarned())
	assert.True(t, h.ticket(t, b.TicketID).IsWarned())
	assert.False(t, h.ticket(t, fresh.TicketID).IsWarned())
	assert.Equal(t, 2, h.events.count(events.EventTicketWarned))
}

func TestInactivityWarningMentionsUserAndTimings(t *testing.T) {
	h := newHarness(t)
	h.open(t, 77, 101)
	h.clk.Advance(3*day + time.Second)

	var text string
	h.messaging.EXPECT().Notify(gomock.Any(), int64(101), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, msg string) error {
			text = msg
			return nil
		})

	_, err := newInactivity(h, nil).Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "<@77>")
	assert.Contains(t, text, "3 days")
	assert.Contains(t, text, "2 days")
}

func TestInactivityNotifyFailureLeavesTicketUnwarned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.open(t, 1, 101)
	b := h.open(t, 2, 102)
	c := h.open(t, 3, 103)
	h.clk.Advance(4 * day)

	h.messaging.EXPECT().Notify(gomock.Any(), int64(101), gomock.Any()).Return(nil)
	h.messaging.EXPECT().Notify(gomock.Any(), int64(102), gomock.Any()).Return(errors.New("503 service unavailable"))
	h.messaging.EXPECT().Notify(gomock.Any(), int64(103), gomock.Any()).Return(nil)

	scheduler := newInactivity(h, nil)
	report, err := scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Warned)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, h.ticket(t, a.TicketID).IsWarned())
	assert.False(t, h.ticket(t, b.TicketID).IsWarned())
	assert.True(t, h.ticket(t, c.TicketID).IsWarned())

	h.messaging.EXPECT().Notify(gomock.Any(), int64(102), gomock.Any()).Return(nil)
	report, err = scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Warned)
	assert.True(t, h.ticket(t, b.TicketID).IsWarned())
}

func TestInactivityClosesAfterWarningPeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open(t, 1, 101)
	scheduler := newInactivity(h, nil)

	h.clk.Advance(3*day + time.Minute)
	h.messaging.EXPECT().Notify(gomock.Any(), int64(101), gomock.Any()).Return(nil)
	_, err := scheduler.Tick(ctx)
	require.NoError(t, err)

	h.clk.Advance(day)
	report, err := scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Closed, "close is measured from the warning")

	h.clk.Advance(day + time.Minute)
	h.messaging.EXPECT().ArchiveThread(gomock.Any(), int64(101)).Return(nil)
	report, err = scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)

	closed := h.ticket(t, ticket.TicketID)
	assert.True(t, closed.IsClosed())
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, systemID, *closed.ClosedBy)
	require.NotNil(t, closed.CloseReason)
	assert.Equal(t, AutoCloseReason, *closed.CloseReason)
	assert.Equal(t, 1, h.events.count(events.EventTicketClosed))
}

func TestInactivityWarnPassCompletesBeforeClosePass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stale := h.open(t, 1, 101)
	h.clk.Advance(time.Hour)
	ok, err := h.svc.Warn(ctx, stale.TicketID, service.SystemActor(systemID))
	require.NoError(t, err)
	require.True(t, ok)

	h.clk.Advance(day)
	h.open(t, 2, 102)
	h.clk.Advance(3*day + time.Minute)

	gomock.InOrder(
		h.messaging.EXPECT().Notify(gomock.Any(), int64(102), gomock.Any()).Return(nil),
		h.messaging.EXPECT().ArchiveThread(gomock.Any(), int64(101)).Return(nil),
	)

	report, err := newInactivity(h, nil).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Warned)
	assert.Equal(t, 1, report.Closed)
}

// closeFirstWriter closes the ticket as staff right before the scheduler's
// own close, reproducing an operator winning the race.
type closeFirstWriter struct {
	*service.TicketService
}

func (w closeFirstWriter) Close(ctx context.Context, ticketID string, actor service.Actor, reason string) (bool, error) {
	if _, err := w.TicketService.Close(ctx, ticketID, service.StaffActor(staffID), "resolved"); err != nil {
		return false, err
	}
	return w.TicketService.Close(ctx, ticketID, actor, reason)
}

func TestInactivityArchivesOnlyWhenCloseTookEffect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open(t, 1, 101)
	ok, err := h.svc.Warn(ctx, ticket.TicketID, service.SystemActor(systemID))
	require.NoError(t, err)
	require.True(t, ok)
	h.clk.Advance(2*day + time.Minute)

	report, err := newInactivity(h, closeFirstWriter{h.svc}).Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Closed)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)

	closed := h.ticket(t, ticket.TicketID)
	require.NotNil(t, closed.ClosedBy)
	assert.Equal(t, staffID, *closed.ClosedBy)
}

func TestInactivityArchiveFailureStillCountsClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open(t, 1, 101)
	_, err := h.svc.Warn(ctx, ticket.TicketID, service.SystemActor(systemID))
	require.NoError(t, err)
	h.clk.Advance(3 * day)

	h.messaging.EXPECT().ArchiveThread(gomock.Any(), int64(101)).Return(errors.New("missing permissions"))

	report, err := newInactivity(h, nil).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
	assert.True(t, h.ticket(t, ticket.TicketID).IsClosed())
}

func TestInactivityIgnoresClosedAndConfiguredOutGuilds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	closed := h.open(t, 1, 101)
	_, err := h.svc.Close(ctx, closed.TicketID, service.StaffActor(staffID), "done")
	require.NoError(t, err)

	other, err := h.svc.OpenTicket(ctx, service.OpenTicketInput{
		UserID: 2, GuildID: guildID + 1, ThreadID: 202, Category: domain.TicketCategorySupport,
	})
	require.NoError(t, err)
	h.clk.Advance(10 * day)

	scheduler := NewInactivityScheduler(InactivityDeps{
		Tickets:   h.tickets,
		Writer:    h.svc,
		Messaging: h.messaging,
		Gate:      h.gate,
		Clock:     h.clk,
	}, InactivityConfig{
		WarnAfter:  3 * day,
		CloseAfter: 2 * day,
		GuildIDs:   []int64{guildID},
	})
	report, err := scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Succeeded())
	assert.False(t, h.ticket(t, other.TicketID).IsWarned())
}

func TestInactivityArchiveNotFoundIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.open(t, 1, 101)
	_, err := h.svc.Warn(ctx, ticket.TicketID, service.SystemActor(systemID))
	require.NoError(t, err)
	h.clk.Advance(3 * day)

	h.messaging.EXPECT().ArchiveThread(gomock.Any(), int64(101)).Return(collab.ErrNotFound)

	report, err := newInactivity(h, nil).Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 day", humanDuration(day))
	assert.Equal(t, "5 days", humanDuration(5*day))
	assert.Equal(t, "36h0m0s", humanDuration(36*time.Hour))
}

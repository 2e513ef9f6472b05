package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

const (
	guild int64 = 700
	staff int64 = 11
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestService(t *testing.T, maxOpen int) (*TicketService, *clock.FakeClock, *recorder, repository.MuteRepository) {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recorder{}
	for _, et := range events.AllEventTypes {
		dispatcher.Subscribe(et, rec.handle)
	}
	mutes := repository.NewMemoryMuteRepository(clk)
	svc := NewTicketService(TicketDependencies{
		TicketRepo:            repository.NewMemoryTicketRepository(clk),
		MuteRepo:              mutes,
		HistoryRepo:           repository.NewMemoryTicketHistoryRepository(clk),
		Dispatcher:            dispatcher,
		Clock:                 clk,
		MaxOpenTicketsPerUser: maxOpen,
	})
	return svc, clk, rec, mutes
}

func openFor(t *testing.T, svc *TicketService, user, thread int64) *domain.Ticket {
	t.Helper()
	ticket, err := svc.OpenTicket(context.Background(), OpenTicketInput{
		UserID:   user,
		GuildID:  guild,
		ThreadID: thread,
		Category: domain.TicketCategoryAppeal,
		Subject:  "  ban appeal  ",
	})
	require.NoError(t, err)
	return ticket
}

func TestOpenTicketAssignsSequentialIDs(t *testing.T) {
	svc, _, rec, _ := newTestService(t, 0)
	first := openFor(t, svc, 1, 1001)
	second := openFor(t, svc, 2, 1002)

	assert.Equal(t, "T001", first.TicketID)
	assert.Equal(t, "T002", second.TicketID)
	assert.Equal(t, "ban appeal", first.Subject)
	assert.Equal(t, domain.TicketStatusOpen, first.Status)
	assert.Equal(t, domain.TicketPriorityNormal, first.Priority)
	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketCreated}, rec.types())
}

func TestOpenTicketEnforcesPerUserLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, 1)
	ticket := openFor(t, svc, 1, 1001)

	_, err := svc.OpenTicket(ctx, OpenTicketInput{UserID: 1, GuildID: guild, ThreadID: 1002, Category: domain.TicketCategorySupport})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = svc.OpenTicket(ctx, OpenTicketInput{UserID: 1, GuildID: guild + 1, ThreadID: 1003, Category: domain.TicketCategorySupport})
	require.NoError(t, err, "the limit is per guild")

	ok, err := svc.Close(ctx, ticket.TicketID, StaffActor(staff), "done")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = svc.OpenTicket(ctx, OpenTicketInput{UserID: 1, GuildID: guild, ThreadID: 1004, Category: domain.TicketCategorySupport})
	require.NoError(t, err)
}

func TestOpenTicketLimitUnderConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	svc, _, rec, _ := newTestService(t, 1)

	var wg sync.WaitGroup
	errs := make([]error, 30)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.OpenTicket(ctx, OpenTicketInput{
				UserID: 1, GuildID: guild, ThreadID: int64(2000 + i), Category: domain.TicketCategorySupport,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, rec.types())
}

func TestOpenTicketRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, 1)

	_, err := svc.OpenTicket(ctx, OpenTicketInput{UserID: 1, GuildID: guild, ThreadID: 1, Category: "billing"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	openFor(t, svc, 1, 1001)
	_, err = svc.OpenTicket(ctx, OpenTicketInput{UserID: 2, GuildID: guild, ThreadID: 1001, Category: domain.TicketCategorySupport})
	assert.True(t, apperrors.IsDuplicateKey(err))
}

func TestGetTicketNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, 1)

	_, err := svc.GetTicket(ctx, "T404")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.GetTicketByThread(ctx, 404)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLifecycleRecordsHistoryAndEvents(t *testing.T) {
	ctx := context.Background()
	svc, clk, rec, _ := newTestService(t, 1)
	ticket := openFor(t, svc, 1, 1001)
	id := ticket.TicketID

	steps := []struct {
		name string
		run  func() (bool, error)
		want bool
	}{
		{"claim", func() (bool, error) { return svc.Claim(ctx, id, StaffActor(staff)) }, true},
		{"priority", func() (bool, error) { return svc.SetPriority(ctx, id, StaffActor(staff), domain.TicketPriorityUrgent) }, true},
		{"assign", func() (bool, error) { return svc.Assign(ctx, id, StaffActor(staff), 12) }, true},
		{"warn", func() (bool, error) { return svc.Warn(ctx, id, SystemActor(0)) }, true},
		{"warn twice", func() (bool, error) { return svc.Warn(ctx, id, SystemActor(0)) }, false},
		{"clear warning", func() (bool, error) { return svc.ClearWarning(ctx, id, StaffActor(staff)) }, true},
		{"unclaim", func() (bool, error) { return svc.Unclaim(ctx, id, StaffActor(staff)) }, true},
		{"close", func() (bool, error) { return svc.Close(ctx, id, StaffActor(staff), "resolved") }, true},
		{"close twice", func() (bool, error) { return svc.Close(ctx, id, StaffActor(staff), "resolved") }, false},
		{"claim closed", func() (bool, error) { return svc.Claim(ctx, id, StaffActor(staff)) }, false},
		{"reopen", func() (bool, error) { return svc.Reopen(ctx, id, StaffActor(staff)) }, true},
	}
	for _, step := range steps {
		clk.Advance(time.Minute)
		ok, err := step.run()
		require.NoError(t, err, step.name)
		assert.Equal(t, step.want, ok, step.name)
	}

	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketClaimed,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketWarned,
		events.EventTicketWarningCleared,
		events.EventTicketUnclaimed,
		events.EventTicketClosed,
		events.EventTicketReopened,
	}, rec.types())

	history, err := svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 8)
	assert.Equal(t, domain.ChangeTypeClaim, history[0].ChangeType)
	assert.Equal(t, domain.SubjectTypeStaff, history[0].ChangedByType)
	assert.Equal(t, domain.ChangeTypeWarning, history[3].ChangeType)
	assert.Equal(t, domain.SubjectTypeSystem, history[3].ChangedByType)
	assert.Equal(t, "resolved", history[6].NewValue["reason"])

	reopened, err := svc.GetTicket(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosedAt)
	assert.Equal(t, domain.TicketPriorityUrgent, reopened.Priority)
}

func TestSetPriorityValidates(t *testing.T) {
	svc, _, _, _ := newTestService(t, 1)
	ticket := openFor(t, svc, 1, 1001)

	_, err := svc.SetPriority(context.Background(), ticket.TicketID, StaffActor(staff), "critical")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestTransitionsOnMissingTicket(t *testing.T) {
	ctx := context.Background()
	svc, _, rec, _ := newTestService(t, 1)

	ok, err := svc.Close(ctx, "T999", StaffActor(staff), "x")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = svc.Touch(ctx, "T999")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rec.types())
}

func TestRecordThreadActivityLiftsWarning(t *testing.T) {
	ctx := context.Background()
	svc, clk, rec, _ := newTestService(t, 1)
	ticket := openFor(t, svc, 1, 1001)

	ok, err := svc.Warn(ctx, ticket.TicketID, SystemActor(0))
	require.NoError(t, err)
	require.True(t, ok)

	clk.Advance(time.Hour)
	ok, err = svc.RecordThreadActivity(ctx, 1001, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.GetTicket(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Nil(t, got.WarnedAt)
	assert.Equal(t, clk.Now(), got.LastActivityAt)
	assert.Equal(t, events.EventTicketWarningCleared, rec.types()[len(rec.types())-1])

	history, err := svc.History(ctx, ticket.TicketID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.SubjectTypeUser, last.ChangedByType)

	// Activity without a pending warning only bumps the timestamp.
	before := len(rec.types())
	clk.Advance(time.Hour)
	ok, err = svc.RecordThreadActivity(ctx, 1001, staff)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, rec.types(), before)
}

func TestRecordThreadActivityIgnoresUnknownAndClosed(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t, 1)

	ok, err := svc.RecordThreadActivity(ctx, 404, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ticket := openFor(t, svc, 1, 1001)
	_, err = svc.Close(ctx, ticket.TicketID, StaffActor(staff), "done")
	require.NoError(t, err)
	ok, err = svc.RecordThreadActivity(ctx, 1001, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentClosePublishesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, rec, _ := newTestService(t, 1)
	ticket := openFor(t, svc, 1, 1001)

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(actor int64) {
			defer wg.Done()
			ok, err := svc.Close(ctx, ticket.TicketID, StaffActor(actor), "race")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	closes := 0
	for _, et := range rec.types() {
		if et == events.EventTicketClosed {
			closes++
		}
	}
	assert.Equal(t, 1, closes)

	stats, err := svc.Stats(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Closed)
	assert.EqualValues(t, 1, stats.TotalClosed)
}

func TestStaffStatsAndQueue(t *testing.T) {
	ctx := context.Background()
	svc, clk, _, _ := newTestService(t, 1)
	a := openFor(t, svc, 1, 1001)
	clk.Advance(time.Minute)
	b := openFor(t, svc, 2, 1002)

	_, err := svc.SetPriority(ctx, b.TicketID, StaffActor(staff), domain.TicketPriorityHigh)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, a.TicketID, StaffActor(staff))
	require.NoError(t, err)

	queue, err := svc.ListOpenTickets(ctx, guild)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, b.TicketID, queue[0].TicketID)

	_, err = svc.Close(ctx, a.TicketID, StaffActor(staff), "done")
	require.NoError(t, err)
	stats, err := svc.StaffStats(ctx, staff, guild)
	require.NoError(t, err)
	assert.Equal(t, domain.StaffTicketStats{Claimed: 1, Closed: 1}, stats)

	mine, err := svc.ListUserTickets(ctx, 1, guild)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.TicketID, mine[0].TicketID)
}

func TestReleaseMutePublishesOnce(t *testing.T) {
	ctx := context.Background()
	svc, clk, rec, mutes := newTestService(t, 1)
	ten := 10
	record, err := mutes.AddMute(ctx, domain.NewMute{UserID: 5, GuildID: guild, DurationMinutes: &ten, Reason: "spam", MuterID: staff})
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)

	ok, err := svc.ReleaseMute(ctx, *record, SystemActor(0), "mute duration expired")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.ReleaseMute(ctx, *record, SystemActor(0), "mute duration expired")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []events.EventType{events.EventMuteReleased}, rec.types())
}

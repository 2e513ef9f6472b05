package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/events"
	"github.com/spec-kit/ticket-scheduler/internal/gate"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	"github.com/spec-kit/ticket-scheduler/internal/service"
)

const (
	guildID  int64 = 500
	systemID int64 = 999
	staffID  int64 = 42
	day            = 24 * time.Hour
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	clk        *clock.FakeClock
	tickets    repository.TicketRepository
	mutes      repository.MuteRepository
	svc        *service.TicketService
	messaging  *collab.MockMessaging
	moderation *collab.MockModeration
	gate       *gate.Gate
	events     *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	clk := clock.Fake(baseTime)
	tickets := repository.NewMemoryTicketRepository(clk)
	mutes := repository.NewMemoryMuteRepository(clk)
	dispatcher := events.NewInMemoryDispatcher()
	log := &eventLog{}
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, log.handle)
	}
	return &harness{
		clk:     clk,
		tickets: tickets,
		mutes:   mutes,
		svc: service.NewTicketService(service.TicketDependencies{
			TicketRepo:  tickets,
			MuteRepo:    mutes,
			HistoryRepo: repository.NewMemoryTicketHistoryRepository(clk),
			Dispatcher:  dispatcher,
			Clock:       clk,
		}),
		messaging:  collab.NewMockMessaging(ctrl),
		moderation: collab.NewMockModeration(ctrl),
		gate:       gate.New(4),
		events:     log,
	}
}

// open creates a ticket for a fresh user in guildID bound to thread.
func (h *harness) open(t *testing.T, userID, thread int64) *domain.Ticket {
	t.Helper()
	ticket, err := h.svc.OpenTicket(context.Background(), service.OpenTicketInput{
		UserID:   userID,
		GuildID:  guildID,
		ThreadID: thread,
		Category: domain.TicketCategorySupport,
		Subject:  "cannot see channels",
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.GetTicket(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	return ticket
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(_ context.Context, event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) count(eventType events.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

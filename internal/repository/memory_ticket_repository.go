package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// memoryTicketRepository keeps tickets in process memory. It backs the
// service when no database is configured and in tests.
type memoryTicketRepository struct {
	mu       sync.Mutex
	clock    clock.Clock
	seq      int64
	order    int64
	tickets  map[string]*memoryTicket
	byThread map[int64]string
	closed   map[int64]int64
	deleted  map[int64]time.Time
}

type memoryTicket struct {
	ticket *domain.Ticket
	order  int64
}

// NewMemoryTicketRepository returns a process-local TicketRepository.
func NewMemoryTicketRepository(clk clock.Clock) TicketRepository {
	return &memoryTicketRepository{
		clock:    clk,
		tickets:  make(map[string]*memoryTicket),
		byThread: make(map[int64]string),
		closed:   make(map[int64]int64),
		deleted:  make(map[int64]time.Time),
	}
}

func (r *memoryTicketRepository) GenerateTicketID(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return domain.FormatTicketID(r.seq), nil
}

func (r *memoryTicketRepository) CreateTicket(_ context.Context, input domain.NewTicket) error {
	if err := validateNewTicket(input); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[input.TicketID]; exists {
		return apperrors.NewDuplicateKey("ticket", map[string]any{"ticket_id": input.TicketID}, nil)
	}
	if _, exists := r.byThread[input.ThreadID]; exists {
		return apperrors.NewDuplicateKey("ticket", map[string]any{"thread_id": input.ThreadID}, nil)
	}
	if input.MaxOpenPerUser > 0 {
		open := 0
		for _, entry := range r.tickets {
			t := entry.ticket
			if t.UserID == input.UserID && t.GuildID == input.GuildID && !t.IsClosed() {
				open++
			}
		}
		if open >= input.MaxOpenPerUser {
			return openLimitError(input, open)
		}
	}

	now := r.clock.Now()
	r.order++
	r.tickets[input.TicketID] = &memoryTicket{
		order: r.order,
		ticket: &domain.Ticket{
			TicketID:       input.TicketID,
			ThreadID:       input.ThreadID,
			UserID:         input.UserID,
			GuildID:        input.GuildID,
			Category:       input.Category,
			Subject:        input.Subject,
			Priority:       domain.TicketPriorityNormal,
			Status:         domain.TicketStatusOpen,
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	r.byThread[input.ThreadID] = input.TicketID
	return nil
}

func (r *memoryTicketRepository) GetTicket(_ context.Context, ticketID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.tickets[ticketID]; ok {
		return entry.ticket.Clone(), nil
	}
	return nil, nil
}

func (r *memoryTicketRepository) GetTicketByThread(ctx context.Context, threadID int64) (*domain.Ticket, error) {
	r.mu.Lock()
	ticketID, ok := r.byThread[threadID]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return r.GetTicket(ctx, ticketID)
}

func (r *memoryTicketRepository) GetUserTickets(_ context.Context, userID, guildID int64) ([]domain.Ticket, error) {
	entries := r.filter(func(t *domain.Ticket) bool {
		return t.UserID == userID && t.GuildID == guildID
	})
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ticket.CreatedAt.Equal(b.ticket.CreatedAt) {
			return a.ticket.CreatedAt.After(b.ticket.CreatedAt)
		}
		return a.order > b.order
	})
	return flatten(entries), nil
}

func (r *memoryTicketRepository) GetUserOpenTicketCount(_ context.Context, userID, guildID int64) (int, error) {
	entries := r.filter(func(t *domain.Ticket) bool {
		return t.UserID == userID && t.GuildID == guildID && !t.IsClosed()
	})
	return len(entries), nil
}

func (r *memoryTicketRepository) ClaimTicket(_ context.Context, ticketID string, actorID int64) (bool, error) {
	return r.mutate(ticketID, domain.ActionClaim, claimMutation(actorID))
}

func (r *memoryTicketRepository) UnclaimTicket(_ context.Context, ticketID string) (bool, error) {
	return r.mutate(ticketID, domain.ActionUnclaim, unclaimMutation())
}

func (r *memoryTicketRepository) CloseTicket(_ context.Context, ticketID string, actorID int64, reason string) (bool, error) {
	return r.mutate(ticketID, domain.ActionClose, closeMutation(actorID, reason))
}

func (r *memoryTicketRepository) ReopenTicket(_ context.Context, ticketID string) (bool, error) {
	return r.mutate(ticketID, domain.ActionReopen, reopenMutation())
}

func (r *memoryTicketRepository) SetTicketPriority(_ context.Context, ticketID string, priority domain.TicketPriority) (bool, error) {
	if !priority.Valid() {
		return false, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	return r.mutate(ticketID, domain.ActionPrioritize, priorityMutation(priority))
}

func (r *memoryTicketRepository) AssignTicket(_ context.Context, ticketID string, actorID int64) (bool, error) {
	return r.mutate(ticketID, domain.ActionAssign, assignMutation(actorID))
}

func (r *memoryTicketRepository) MarkTicketWarned(_ context.Context, ticketID string) (bool, error) {
	return r.mutate(ticketID, domain.ActionWarn, warnMutation())
}

func (r *memoryTicketRepository) ClearTicketWarning(_ context.Context, ticketID string) (bool, error) {
	return r.mutate(ticketID, domain.ActionClearWarning, clearWarningMutation())
}

func (r *memoryTicketRepository) UpdateTicketActivity(_ context.Context, ticketID string) (bool, error) {
	return r.mutate(ticketID, domain.ActionTouch, touchMutation())
}

func (r *memoryTicketRepository) mutate(ticketID string, action domain.Action, apply mutation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if _, err := domain.Decide(entry.ticket, action); err != nil {
		if domain.IsRejected(err) {
			return false, nil
		}
		return false, err
	}
	apply(entry.ticket, r.clock.Now())
	if action == domain.ActionClose {
		r.closed[entry.ticket.GuildID]++
	}
	return true, nil
}

func (r *memoryTicketRepository) GetOpenTickets(_ context.Context, guildID int64) ([]domain.Ticket, error) {
	entries := r.filter(func(t *domain.Ticket) bool {
		return t.GuildID == guildID && !t.IsClosed()
	})
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ticket, entries[j].ticket
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return entries[i].order < entries[j].order
	})
	return flatten(entries), nil
}

func (r *memoryTicketRepository) GetTicketStats(_ context.Context, guildID int64) (domain.TicketStats, error) {
	var stats domain.TicketStats
	for _, entry := range r.filter(func(t *domain.Ticket) bool { return t.GuildID == guildID }) {
		switch entry.ticket.Status {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusClaimed:
			stats.Claimed++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
	}
	return stats, nil
}

func (r *memoryTicketRepository) GetStaffTicketStats(_ context.Context, staffID, guildID int64) (domain.StaffTicketStats, error) {
	var stats domain.StaffTicketStats
	for _, entry := range r.filter(func(t *domain.Ticket) bool { return t.GuildID == guildID }) {
		if entry.ticket.ClaimedBy != nil && *entry.ticket.ClaimedBy == staffID {
			stats.Claimed++
		}
		if entry.ticket.ClosedBy != nil && *entry.ticket.ClosedBy == staffID {
			stats.Closed++
		}
	}
	return stats, nil
}

func (r *memoryTicketRepository) GetTotalTicketsClosed(_ context.Context, guildID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[guildID], nil
}

func (r *memoryTicketRepository) GetUnwarnedInactiveTickets(_ context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error) {
	entries := r.filter(func(t *domain.Ticket) bool {
		return t.GuildID == guildID && !t.IsClosed() && !t.IsWarned() && t.LastActivityAt.Before(threshold)
	})
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ticket, entries[j].ticket
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.Before(b.LastActivityAt)
		}
		return entries[i].order < entries[j].order
	})
	return flatten(entries), nil
}

func (r *memoryTicketRepository) GetWarnedTicketsReadyToClose(_ context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error) {
	entries := r.filter(func(t *domain.Ticket) bool {
		return t.GuildID == guildID && !t.IsClosed() && t.IsWarned() && t.WarnedAt.Before(threshold)
	})
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ticket, entries[j].ticket
		if !a.WarnedAt.Equal(*b.WarnedAt) {
			return a.WarnedAt.Before(*b.WarnedAt)
		}
		return entries[i].order < entries[j].order
	})
	return flatten(entries), nil
}

func (r *memoryTicketRepository) ListActiveGuilds(_ context.Context) ([]int64, error) {
	seen := map[int64]struct{}{}
	var guilds []int64
	for _, entry := range r.filter(func(t *domain.Ticket) bool { return !t.IsClosed() }) {
		if _, ok := seen[entry.ticket.GuildID]; ok {
			continue
		}
		seen[entry.ticket.GuildID] = struct{}{}
		guilds = append(guilds, entry.ticket.GuildID)
	}
	sort.Slice(guilds, func(i, j int) bool { return guilds[i] < guilds[j] })
	return guilds, nil
}

func (r *memoryTicketRepository) GetClosedThreadsBefore(_ context.Context, cutoff time.Time) ([]domain.ArchivableThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entries []*memoryTicket
	for _, entry := range r.tickets {
		t := entry.ticket
		if !t.IsClosed() || t.ClosedAt.After(cutoff) {
			continue
		}
		if _, gone := r.deleted[t.ThreadID]; gone {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].ticket, entries[j].ticket
		if !a.ClosedAt.Equal(*b.ClosedAt) {
			return a.ClosedAt.Before(*b.ClosedAt)
		}
		return entries[i].order < entries[j].order
	})

	result := make([]domain.ArchivableThread, 0, len(entries))
	for _, entry := range entries {
		result = append(result, domain.ArchivableThread{
			TicketID: entry.ticket.TicketID,
			GuildID:  entry.ticket.GuildID,
			ThreadID: entry.ticket.ThreadID,
			ClosedAt: *entry.ticket.ClosedAt,
		})
	}
	return result, nil
}

func (r *memoryTicketRepository) MarkThreadDeleted(_ context.Context, thread domain.ArchivableThread, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deleted[thread.ThreadID]; !ok {
		r.deleted[thread.ThreadID] = deletedAt
	}
	return nil
}

// filter returns deep copies of matching tickets in insertion order.
func (r *memoryTicketRepository) filter(match func(*domain.Ticket) bool) []*memoryTicket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*memoryTicket
	for _, entry := range r.tickets {
		if match(entry.ticket) {
			out = append(out, &memoryTicket{ticket: entry.ticket.Clone(), order: entry.order})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func flatten(entries []*memoryTicket) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(entries))
	for _, entry := range entries {
		out = append(out, *entry.ticket)
	}
	return out
}

package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool, clk clock.Clock) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool, clock: clk}
}

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ChangedByType,
		history.ChangedByID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
		r.clock.Now(),
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

type memoryTicketHistoryRepository struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository returns a process-local history store.
func NewMemoryTicketHistoryRepository(clk clock.Clock) TicketHistoryRepository {
	return &memoryTicketHistoryRepository{clock: clk}
}

func (r *memoryTicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = r.clock.Now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *memoryTicketHistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

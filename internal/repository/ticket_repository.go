package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// TicketRepository encapsulates ticket persistence. Every mutator loads the
// ticket under a row lock, asks domain.Decide whether the action is allowed
// and returns false without error when the ticket is absent or the action is
// rejected.
type TicketRepository interface {
	GenerateTicketID(ctx context.Context) (string, error)
	CreateTicket(ctx context.Context, input domain.NewTicket) error
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	GetTicketByThread(ctx context.Context, threadID int64) (*domain.Ticket, error)
	GetUserTickets(ctx context.Context, userID, guildID int64) ([]domain.Ticket, error)
	GetUserOpenTicketCount(ctx context.Context, userID, guildID int64) (int, error)

	ClaimTicket(ctx context.Context, ticketID string, actorID int64) (bool, error)
	UnclaimTicket(ctx context.Context, ticketID string) (bool, error)
	CloseTicket(ctx context.Context, ticketID string, actorID int64, reason string) (bool, error)
	ReopenTicket(ctx context.Context, ticketID string) (bool, error)
	SetTicketPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (bool, error)
	AssignTicket(ctx context.Context, ticketID string, actorID int64) (bool, error)
	MarkTicketWarned(ctx context.Context, ticketID string) (bool, error)
	ClearTicketWarning(ctx context.Context, ticketID string) (bool, error)
	UpdateTicketActivity(ctx context.Context, ticketID string) (bool, error)

	GetOpenTickets(ctx context.Context, guildID int64) ([]domain.Ticket, error)
	GetTicketStats(ctx context.Context, guildID int64) (domain.TicketStats, error)
	GetStaffTicketStats(ctx context.Context, staffID, guildID int64) (domain.StaffTicketStats, error)
	GetTotalTicketsClosed(ctx context.Context, guildID int64) (int64, error)
	GetUnwarnedInactiveTickets(ctx context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error)
	GetWarnedTicketsReadyToClose(ctx context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error)
	ListActiveGuilds(ctx context.Context) ([]int64, error)

	GetClosedThreadsBefore(ctx context.Context, cutoff time.Time) ([]domain.ArchivableThread, error)
	MarkThreadDeleted(ctx context.Context, thread domain.ArchivableThread, deletedAt time.Time) error
}

type ticketRepository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool, clk clock.Clock) TicketRepository {
	return &ticketRepository{pool: pool, clock: clk}
}

const ticketColumns = `ticket_id, thread_id, user_id, guild_id, category, subject, priority, status,
               claimed_by, claimed_at, assigned_to, created_at, last_activity_at,
               warned_at, closed_at, closed_by, close_reason`

const priorityOrder = `CASE priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'normal' THEN 3 WHEN 'low' THEN 4 ELSE 5 END`

const uniqueViolation = "23505"

func (r *ticketRepository) GenerateTicketID(ctx context.Context) (string, error) {
	const query = `UPDATE ticket_sequence SET last_value = last_value + 1 WHERE id = 1 RETURNING last_value`
	var seq int64
	if err := r.pool.QueryRow(ctx, query).Scan(&seq); err != nil {
		return "", fmt.Errorf("generate ticket id: %w", err)
	}
	return domain.FormatTicketID(seq), nil
}

// CreateTicket inserts the ticket. The open-ticket cap is checked in the same
// transaction under an advisory lock keyed by (guild, user), so concurrent
// opens for one user serialise and cannot overshoot the cap.
func (r *ticketRepository) CreateTicket(ctx context.Context, input domain.NewTicket) error {
	if err := validateNewTicket(input); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if input.MaxOpenPerUser > 0 {
			const lockQuery = `SELECT pg_advisory_xact_lock(hashtextextended(format('open_tickets:%s:%s', $1::bigint, $2::bigint), 0))`
			if _, err := tx.Exec(ctx, lockQuery, input.GuildID, input.UserID); err != nil {
				return fmt.Errorf("lock open tickets: %w", err)
			}
			const countQuery = `SELECT COUNT(*) FROM tickets WHERE user_id=$1 AND guild_id=$2 AND status <> 'closed'`
			var open int
			if err := tx.QueryRow(ctx, countQuery, input.UserID, input.GuildID).Scan(&open); err != nil {
				return fmt.Errorf("count open tickets: %w", err)
			}
			if open >= input.MaxOpenPerUser {
				return openLimitError(input, open)
			}
		}
		return r.insertTicket(ctx, tx, input)
	})
}

func (r *ticketRepository) insertTicket(ctx context.Context, tx pgx.Tx, input domain.NewTicket) error {
	const query = `
        INSERT INTO tickets (ticket_id, thread_id, user_id, guild_id, category, subject, priority, status, created_at, last_activity_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)`
	now := r.clock.Now()
	_, err := tx.Exec(ctx, query,
		input.TicketID,
		input.ThreadID,
		input.UserID,
		input.GuildID,
		input.Category,
		input.Subject,
		domain.TicketPriorityNormal,
		domain.TicketStatusOpen,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.NewDuplicateKey("ticket", map[string]any{
				"ticket_id":  input.TicketID,
				"thread_id":  input.ThreadID,
				"constraint": pgErr.ConstraintName,
			}, err)
		}
		return fmt.Errorf("create ticket %s: %w", input.TicketID, err)
	}
	return nil
}

func (r *ticketRepository) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id=$1`
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *ticketRepository) GetTicketByThread(ctx context.Context, threadID int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE thread_id=$1`
	return r.fetchSingle(ctx, query, threadID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetUserTickets(ctx context.Context, userID, guildID int64) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE user_id=$1 AND guild_id=$2
             ORDER BY created_at DESC, row_id DESC`
	return r.list(ctx, query, userID, guildID)
}

func (r *ticketRepository) GetUserOpenTicketCount(ctx context.Context, userID, guildID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE user_id=$1 AND guild_id=$2 AND status <> 'closed'`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID, guildID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) ClaimTicket(ctx context.Context, ticketID string, actorID int64) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionClaim, claimMutation(actorID))
}

func (r *ticketRepository) UnclaimTicket(ctx context.Context, ticketID string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionUnclaim, unclaimMutation())
}

func (r *ticketRepository) CloseTicket(ctx context.Context, ticketID string, actorID int64, reason string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionClose, closeMutation(actorID, reason))
}

func (r *ticketRepository) ReopenTicket(ctx context.Context, ticketID string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionReopen, reopenMutation())
}

func (r *ticketRepository) SetTicketPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (bool, error) {
	if !priority.Valid() {
		return false, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	return r.mutate(ctx, ticketID, domain.ActionPrioritize, priorityMutation(priority))
}

func (r *ticketRepository) AssignTicket(ctx context.Context, ticketID string, actorID int64) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionAssign, assignMutation(actorID))
}

func (r *ticketRepository) MarkTicketWarned(ctx context.Context, ticketID string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionWarn, warnMutation())
}

func (r *ticketRepository) ClearTicketWarning(ctx context.Context, ticketID string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionClearWarning, clearWarningMutation())
}

func (r *ticketRepository) UpdateTicketActivity(ctx context.Context, ticketID string) (bool, error) {
	return r.mutate(ctx, ticketID, domain.ActionTouch, touchMutation())
}

// mutate is the compare-and-set core: the row stays locked from the read
// through the guarded write, so two racing closes yield one true.
func (r *ticketRepository) mutate(ctx context.Context, ticketID string, action domain.Action, apply mutation) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id=$1 FOR UPDATE`
	ticket, err := scanTicket(tx.QueryRow(ctx, query, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", action, ticketID, err)
	}
	if _, err := domain.Decide(ticket, action); err != nil {
		if domain.IsRejected(err) {
			return false, nil
		}
		return false, err
	}

	apply(ticket, r.clock.Now())

	const update = `
        UPDATE tickets SET status=$1, priority=$2, claimed_by=$3, claimed_at=$4, assigned_to=$5,
            last_activity_at=$6, warned_at=$7, closed_at=$8, closed_by=$9, close_reason=$10
        WHERE ticket_id=$11`
	if _, err := tx.Exec(ctx, update,
		ticket.Status,
		ticket.Priority,
		ticket.ClaimedBy,
		ticket.ClaimedAt,
		ticket.AssignedTo,
		ticket.LastActivityAt,
		ticket.WarnedAt,
		ticket.ClosedAt,
		ticket.ClosedBy,
		ticket.CloseReason,
		ticket.TicketID,
	); err != nil {
		return false, fmt.Errorf("%s %s: %w", action, ticketID, err)
	}

	if action == domain.ActionClose {
		const counter = `
            INSERT INTO guild_ticket_counters (guild_id, total_closed) VALUES ($1, 1)
            ON CONFLICT (guild_id) DO UPDATE SET total_closed = guild_ticket_counters.total_closed + 1`
		if _, err := tx.Exec(ctx, counter, ticket.GuildID); err != nil {
			return false, fmt.Errorf("increment closed counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ticketRepository) GetOpenTickets(ctx context.Context, guildID int64) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE guild_id=$1 AND status <> 'closed'
             ORDER BY ` + priorityOrder + `, created_at ASC, row_id ASC`
	return r.list(ctx, query, guildID)
}

func (r *ticketRepository) GetTicketStats(ctx context.Context, guildID int64) (domain.TicketStats, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='claimed'),
               COUNT(*) FILTER (WHERE status='closed')
        FROM tickets WHERE guild_id=$1`
	var stats domain.TicketStats
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(&stats.Open, &stats.Claimed, &stats.Closed); err != nil {
		return domain.TicketStats{}, err
	}
	return stats, nil
}

func (r *ticketRepository) GetStaffTicketStats(ctx context.Context, staffID, guildID int64) (domain.StaffTicketStats, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE claimed_by=$1),
               COUNT(*) FILTER (WHERE closed_by=$1)
        FROM tickets WHERE guild_id=$2`
	var stats domain.StaffTicketStats
	if err := r.pool.QueryRow(ctx, query, staffID, guildID).Scan(&stats.Claimed, &stats.Closed); err != nil {
		return domain.StaffTicketStats{}, err
	}
	return stats, nil
}

func (r *ticketRepository) GetTotalTicketsClosed(ctx context.Context, guildID int64) (int64, error) {
	const query = `SELECT total_closed FROM guild_ticket_counters WHERE guild_id=$1`
	var total int64
	err := r.pool.QueryRow(ctx, query, guildID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return total, err
}

func (r *ticketRepository) GetUnwarnedInactiveTickets(ctx context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE guild_id=$1 AND status <> 'closed' AND warned_at IS NULL AND last_activity_at < $2
             ORDER BY last_activity_at ASC, row_id ASC`
	return r.list(ctx, query, guildID, threshold)
}

func (r *ticketRepository) GetWarnedTicketsReadyToClose(ctx context.Context, guildID int64, threshold time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE guild_id=$1 AND status <> 'closed' AND warned_at IS NOT NULL AND warned_at < $2
             ORDER BY warned_at ASC, row_id ASC`
	return r.list(ctx, query, guildID, threshold)
}

func (r *ticketRepository) ListActiveGuilds(ctx context.Context) ([]int64, error) {
	const query = `SELECT DISTINCT guild_id FROM tickets WHERE status <> 'closed' ORDER BY guild_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *ticketRepository) GetClosedThreadsBefore(ctx context.Context, cutoff time.Time) ([]domain.ArchivableThread, error) {
	const query = `
        SELECT t.ticket_id, t.guild_id, t.thread_id, t.closed_at
        FROM tickets t
        WHERE t.status = 'closed' AND t.closed_at <= $1
          AND NOT EXISTS (SELECT 1 FROM deleted_threads d WHERE d.thread_id = t.thread_id)
        ORDER BY t.closed_at ASC, t.row_id ASC`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ArchivableThread
	for rows.Next() {
		var ref domain.ArchivableThread
		if err := rows.Scan(&ref.TicketID, &ref.GuildID, &ref.ThreadID, &ref.ClosedAt); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (r *ticketRepository) MarkThreadDeleted(ctx context.Context, thread domain.ArchivableThread, deletedAt time.Time) error {
	const query = `
        INSERT INTO deleted_threads (thread_id, guild_id, ticket_id, deleted_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (thread_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, thread.ThreadID, thread.GuildID, thread.TicketID, deletedAt)
	return err
}

func (r *ticketRepository) list(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.ThreadID,
		&ticket.UserID,
		&ticket.GuildID,
		&ticket.Category,
		&ticket.Subject,
		&ticket.Priority,
		&ticket.Status,
		&ticket.ClaimedBy,
		&ticket.ClaimedAt,
		&ticket.AssignedTo,
		&ticket.CreatedAt,
		&ticket.LastActivityAt,
		&ticket.WarnedAt,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.CloseReason,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func openLimitError(input domain.NewTicket, open int) error {
	return apperrors.NewConflict("open ticket limit reached", map[string]any{
		"user_id": input.UserID,
		"open":    open,
		"limit":   input.MaxOpenPerUser,
	})
}

func validateNewTicket(input domain.NewTicket) error {
	details := map[string]any{}
	if input.TicketID == "" {
		details["ticket_id"] = "required"
	}
	if !input.Category.Valid() {
		details["category"] = input.Category
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

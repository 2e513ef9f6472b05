package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

// ReleaseReasonSuperseded is recorded on a mute replaced by a newer one.
const ReleaseReasonSuperseded = "superseded by new mute"

// MuteRepository persists mute records. At most one record per guild and
// user is active at a time.
type MuteRepository interface {
	AddMute(ctx context.Context, input domain.NewMute) (*domain.MuteRecord, error)
	GetMute(ctx context.Context, muteID int64) (*domain.MuteRecord, error)
	GetActiveMute(ctx context.Context, guildID, userID int64) (*domain.MuteRecord, error)
	ListActiveMutes(ctx context.Context, guildID *int64) ([]domain.MuteRecord, error)
	GetExpiredMutes(ctx context.Context, now time.Time) ([]domain.MuteRecord, error)
	ReleaseMute(ctx context.Context, muteID int64, releasedBy int64, reason string) (bool, error)
}

type muteRepository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewMuteRepository instantiates the Postgres-backed repository.
func NewMuteRepository(pool *pgxpool.Pool, clk clock.Clock) MuteRepository {
	return &muteRepository{pool: pool, clock: clk}
}

const muteColumns = `id, user_id, guild_id, muted_at, duration_minutes, reason, muter_id, active,
               released_at, released_by, release_reason`

func (r *muteRepository) AddMute(ctx context.Context, input domain.NewMute) (*domain.MuteRecord, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := r.clock.Now()
	const supersede = `
        UPDATE mutes SET active=false, released_at=$3, released_by=$4, release_reason=$5
        WHERE guild_id=$1 AND user_id=$2 AND active`
	if _, err := tx.Exec(ctx, supersede, input.GuildID, input.UserID, now, input.MuterID, ReleaseReasonSuperseded); err != nil {
		return nil, fmt.Errorf("supersede mute: %w", err)
	}

	query := `
        INSERT INTO mutes (user_id, guild_id, muted_at, duration_minutes, reason, muter_id, active)
        VALUES ($1,$2,$3,$4,$5,$6,true)
        RETURNING ` + muteColumns
	record, err := scanMute(tx.QueryRow(ctx, query,
		input.UserID,
		input.GuildID,
		now,
		input.DurationMinutes,
		input.Reason,
		input.MuterID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert mute: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *muteRepository) GetMute(ctx context.Context, muteID int64) (*domain.MuteRecord, error) {
	query := `SELECT ` + muteColumns + ` FROM mutes WHERE id=$1`
	record, err := scanMute(r.pool.QueryRow(ctx, query, muteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

func (r *muteRepository) GetActiveMute(ctx context.Context, guildID, userID int64) (*domain.MuteRecord, error) {
	query := `SELECT ` + muteColumns + ` FROM mutes WHERE guild_id=$1 AND user_id=$2 AND active`
	record, err := scanMute(r.pool.QueryRow(ctx, query, guildID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

func (r *muteRepository) ListActiveMutes(ctx context.Context, guildID *int64) ([]domain.MuteRecord, error) {
	query := `SELECT ` + muteColumns + ` FROM mutes
             WHERE active AND ($1::BIGINT IS NULL OR guild_id=$1)
             ORDER BY muted_at ASC, id ASC`
	return r.list(ctx, query, guildID)
}

// GetExpiredMutes skips indefinite mutes and clamps negative durations to
// zero, matching MuteRecord.IsDue.
func (r *muteRepository) GetExpiredMutes(ctx context.Context, now time.Time) ([]domain.MuteRecord, error) {
	query := `SELECT ` + muteColumns + ` FROM mutes
             WHERE active AND duration_minutes IS NOT NULL
               AND muted_at + make_interval(mins => GREATEST(duration_minutes, 0)) <= $1
             ORDER BY muted_at ASC, id ASC`
	return r.list(ctx, query, now)
}

func (r *muteRepository) ReleaseMute(ctx context.Context, muteID int64, releasedBy int64, reason string) (bool, error) {
	const query = `
        UPDATE mutes SET active=false, released_at=$2, released_by=$3, release_reason=$4
        WHERE id=$1 AND active`
	cmd, err := r.pool.Exec(ctx, query, muteID, r.clock.Now(), releasedBy, reason)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *muteRepository) list(ctx context.Context, query string, args ...any) ([]domain.MuteRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MuteRecord
	for rows.Next() {
		record, err := scanMute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}

func scanMute(row pgx.Row) (*domain.MuteRecord, error) {
	var record domain.MuteRecord
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.GuildID,
		&record.MutedAt,
		&record.DurationMinutes,
		&record.Reason,
		&record.MuterID,
		&record.Active,
		&record.ReleasedAt,
		&record.ReleasedBy,
		&record.ReleaseReason,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

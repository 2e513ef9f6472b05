package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
)

type memoryMuteRepository struct {
	mu      sync.Mutex
	clock   clock.Clock
	nextID  int64
	records []*domain.MuteRecord
}

// NewMemoryMuteRepository returns a process-local MuteRepository.
func NewMemoryMuteRepository(clk clock.Clock) MuteRepository {
	return &memoryMuteRepository{clock: clk}
}

func (r *memoryMuteRepository) AddMute(_ context.Context, input domain.NewMute) (*domain.MuteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, rec := range r.records {
		if rec.Active && rec.GuildID == input.GuildID && rec.UserID == input.UserID {
			release(rec, now, input.MuterID, ReleaseReasonSuperseded)
		}
	}

	r.nextID++
	record := &domain.MuteRecord{
		ID:      r.nextID,
		UserID:  input.UserID,
		GuildID: input.GuildID,
		MutedAt: now,
		Reason:  input.Reason,
		MuterID: input.MuterID,
		Active:  true,
	}
	if input.DurationMinutes != nil {
		d := *input.DurationMinutes
		record.DurationMinutes = &d
	}
	r.records = append(r.records, record)
	return record.Clone(), nil
}

func (r *memoryMuteRepository) GetMute(_ context.Context, muteID int64) (*domain.MuteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == muteID {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryMuteRepository) GetActiveMute(_ context.Context, guildID, userID int64) (*domain.MuteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Active && rec.GuildID == guildID && rec.UserID == userID {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryMuteRepository) ListActiveMutes(_ context.Context, guildID *int64) ([]domain.MuteRecord, error) {
	return r.collect(func(rec *domain.MuteRecord) bool {
		return rec.Active && (guildID == nil || rec.GuildID == *guildID)
	}), nil
}

func (r *memoryMuteRepository) GetExpiredMutes(_ context.Context, now time.Time) ([]domain.MuteRecord, error) {
	return r.collect(func(rec *domain.MuteRecord) bool {
		return rec.IsDue(now)
	}), nil
}

func (r *memoryMuteRepository) ReleaseMute(_ context.Context, muteID int64, releasedBy int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == muteID && rec.Active {
			release(rec, r.clock.Now(), releasedBy, reason)
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryMuteRepository) collect(match func(*domain.MuteRecord) bool) []domain.MuteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.MuteRecord
	for _, rec := range r.records {
		if match(rec) {
			out = append(out, *rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MutedAt.Before(out[j].MutedAt)
	})
	return out
}

func release(rec *domain.MuteRecord, at time.Time, by int64, reason string) {
	rec.Active = false
	rec.ReleasedAt = &at
	rec.ReleasedBy = &by
	rec.ReleaseReason = &reason
}

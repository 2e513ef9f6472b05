package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/gate"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// MuteExpiredReason is recorded on mutes released by the scheduler.
const MuteExpiredReason = "mute duration expired"

// Release reasons recorded by Sync.
const (
	SyncGuildGoneReason   = "sync: guild not accessible"
	SyncMemberLeftReason  = "sync: member left"
	SyncRoleMissingReason = "sync: role not found"
	SyncRoleRemovedReason = "sync: role manually removed"
)

// errRoleHeld marks a synced mute that still matches the platform.
var errRoleHeld = errors.New("muted role still held")

// MuteReleaser records a mute as released. *service.TicketService satisfies it.
type MuteReleaser interface {
	ReleaseMute(ctx context.Context, record domain.MuteRecord, actor service.Actor, reason string) (bool, error)
}

// MuteDeps are the collaborators of the mute scheduler.
type MuteDeps struct {
	Mutes         repository.MuteRepository
	Releaser      MuteReleaser
	Moderation    collab.Moderation
	Gate          *gate.Gate
	Clock         clock.Clock
	Logger        *zap.Logger
	SystemActorID int64
}

// MuteScheduler lifts expired mutes and, on startup, drops active mute
// records that the platform no longer reflects.
type MuteScheduler struct {
	deps MuteDeps
}

// NewMuteScheduler builds the scheduler.
func NewMuteScheduler(deps MuteDeps) *MuteScheduler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("mutes")
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(gate.DefaultMaxConcurrent)
	}
	return &MuteScheduler{deps: deps}
}

func (s *MuteScheduler) Name() string { return "mute" }

// Tick releases every active mute whose duration has elapsed. A member or
// guild that no longer exists counts as released. Any other platform failure
// leaves the mute active for the next tick.
func (s *MuteScheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	records, err := s.deps.Mutes.GetExpiredMutes(ctx, s.deps.Clock.Now())
	if err != nil {
		return report, fmt.Errorf("list expired mutes: %w", err)
	}
	if len(records) == 0 {
		return report, nil
	}

	actor := service.SystemActor(s.deps.SystemActorID)
	work := make([]gate.Work, 0, len(records))
	for _, rec := range records {
		rec := rec
		work = append(work, gate.Work{
			Name: "unmute " + strconv.FormatInt(rec.UserID, 10),
			Fn: func(ctx context.Context) error {
				err := s.deps.Moderation.ReleaseUser(ctx, rec.GuildID, rec.UserID)
				switch {
				case errors.Is(err, collab.ErrNotFound):
					s.deps.Logger.Info("muted member no longer present",
						zap.Int64("guild_id", rec.GuildID),
						zap.Int64("user_id", rec.UserID))
				case err != nil:
					return apperrors.NewTransientExternal("release muted member", err)
				}
				ok, err := s.deps.Releaser.ReleaseMute(ctx, rec, actor, MuteExpiredReason)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.NewInvariantViolation("mute already released",
						map[string]any{"mute_id": rec.ID})
				}
				return nil
			},
		})
	}

	results := s.deps.Gate.Run(ctx, work)
	tally(results, &report.Released, &report)
	return report, nil
}

// Sync compares every active mute with the member's current roles and
// releases the record when the guild, the member or the muted role is gone,
// or when staff removed the role by hand. Mutes whose role is still held are
// kept. Lookups that fail for any other reason count as failed and leave the
// record untouched.
func (s *MuteScheduler) Sync(ctx context.Context) (TickReport, error) {
	var report TickReport
	records, err := s.deps.Mutes.ListActiveMutes(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("list active mutes: %w", err)
	}
	if len(records) == 0 {
		return report, nil
	}

	actor := service.SystemActor(s.deps.SystemActorID)
	work := make([]gate.Work, 0, len(records))
	for _, rec := range records {
		rec := rec
		work = append(work, gate.Work{
			Name: "sync mute " + strconv.FormatInt(rec.UserID, 10),
			Fn: func(ctx context.Context) error {
				reason, err := s.staleReason(ctx, rec)
				if err != nil {
					return err
				}
				ok, err := s.deps.Releaser.ReleaseMute(ctx, rec, actor, reason)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.NewInvariantViolation("mute already released",
						map[string]any{"mute_id": rec.ID})
				}
				s.deps.Logger.Info("stale mute released",
					zap.Int64("mute_id", rec.ID),
					zap.Int64("guild_id", rec.GuildID),
					zap.Int64("user_id", rec.UserID),
					zap.String("reason", reason))
				return nil
			},
		})
	}

	for _, r := range s.deps.Gate.Run(ctx, work) {
		switch {
		case r.Err == nil:
			report.Released++
		case errors.Is(r.Err, errRoleHeld), apperrors.IsInvariantViolation(r.Err):
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}

// staleReason returns the release reason for a record the platform no
// longer backs, or errRoleHeld when the mute is still in force.
func (s *MuteScheduler) staleReason(ctx context.Context, rec domain.MuteRecord) (string, error) {
	state, err := s.deps.Moderation.MutedRoleState(ctx, rec.GuildID, rec.UserID)
	switch {
	case errors.Is(err, collab.ErrGuildNotFound):
		return SyncGuildGoneReason, nil
	case errors.Is(err, collab.ErrMemberNotFound):
		return SyncMemberLeftReason, nil
	case err != nil:
		return "", apperrors.NewTransientExternal("check muted role", err)
	}
	switch state {
	case collab.RoleMissing:
		return SyncRoleMissingReason, nil
	case collab.RoleRemoved:
		return SyncRoleRemovedReason, nil
	default:
		return "", errRoleHeld
	}
}

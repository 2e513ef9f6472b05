package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/collab"
	"github.com/spec-kit/ticket-scheduler/internal/domain"
	"github.com/spec-kit/ticket-scheduler/internal/gate"
	"github.com/spec-kit/ticket-scheduler/internal/repository"
	"github.com/spec-kit/ticket-scheduler/internal/service"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// AutoCloseReason is recorded on tickets closed for inactivity.
const AutoCloseReason = "auto-closed for inactivity"

// TicketWriter applies guarded ticket transitions. *service.TicketService
// satisfies it.
type TicketWriter interface {
	Warn(ctx context.Context, ticketID string, actor service.Actor) (bool, error)
	Close(ctx context.Context, ticketID string, actor service.Actor, reason string) (bool, error)
}

// InactivityDeps are the collaborators of the inactivity scheduler.
type InactivityDeps struct {
	Tickets   repository.TicketRepository
	Writer    TicketWriter
	Messaging collab.Messaging
	Gate      *gate.Gate
	Clock     clock.Clock
	Logger    *zap.Logger
}

// InactivityConfig holds the thresholds. CloseAfter is measured from the
// warning, not from the last activity.
type InactivityConfig struct {
	WarnAfter     time.Duration
	CloseAfter    time.Duration
	GuildIDs      []int64
	SystemActorID int64
}

// InactivityScheduler warns idle tickets and closes those that stayed idle
// after the warning.
type InactivityScheduler struct {
	deps InactivityDeps
	cfg  InactivityConfig
}

// NewInactivityScheduler builds the scheduler.
func NewInactivityScheduler(deps InactivityDeps, cfg InactivityConfig) *InactivityScheduler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("inactivity")
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(gate.DefaultMaxConcurrent)
	}
	return &InactivityScheduler{deps: deps, cfg: cfg}
}

func (s *InactivityScheduler) Name() string { return "inactivity" }

// Tick runs the warn pass and then the close pass for every guild. A guild
// whose scan fails is reported and the remaining guilds still run.
func (s *InactivityScheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	guilds, err := resolveGuilds(ctx, s.cfg.GuildIDs, s.deps.Tickets)
	if err != nil {
		return report, err
	}
	now := s.deps.Clock.Now()

	var errs []error
	for _, guildID := range guilds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.warnPass(ctx, guildID, now, &report); err != nil {
			errs = append(errs, fmt.Errorf("guild %d warn pass: %w", guildID, err))
		}
		if err := s.closePass(ctx, guildID, now, &report); err != nil {
			errs = append(errs, fmt.Errorf("guild %d close pass: %w", guildID, err))
		}
	}
	return report, errors.Join(errs...)
}

func (s *InactivityScheduler) warnPass(ctx context.Context, guildID int64, now time.Time, report *TickReport) error {
	tickets, err := s.deps.Tickets.GetUnwarnedInactiveTickets(ctx, guildID, now.Add(-s.cfg.WarnAfter))
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return nil
	}

	actor := service.SystemActor(s.cfg.SystemActorID)
	work := make([]gate.Work, 0, len(tickets))
	for _, t := range tickets {
		t := t
		work = append(work, gate.Work{
			Name: "warn " + t.TicketID,
			Fn: func(ctx context.Context) error {
				if err := s.deps.Messaging.Notify(ctx, t.ThreadID, s.warningText(t)); err != nil {
					return apperrors.NewTransientExternal("send inactivity warning", err)
				}
				ok, err := s.deps.Writer.Warn(ctx, t.TicketID, actor)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.NewInvariantViolation("ticket changed before warning was recorded",
						map[string]any{"ticket_id": t.TicketID})
				}
				return nil
			},
		})
	}

	results := s.deps.Gate.Run(ctx, work)
	tally(results, &report.Warned, report)
	s.deps.Logger.Info("warn pass finished",
		zap.Int64("guild_id", guildID),
		zap.Int("candidates", len(tickets)),
		zap.Int("failed", gate.Failed(results)))
	return nil
}

func (s *InactivityScheduler) closePass(ctx context.Context, guildID int64, now time.Time, report *TickReport) error {
	tickets, err := s.deps.Tickets.GetWarnedTicketsReadyToClose(ctx, guildID, now.Add(-s.cfg.CloseAfter))
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return nil
	}

	actor := service.SystemActor(s.cfg.SystemActorID)
	work := make([]gate.Work, 0, len(tickets))
	for _, t := range tickets {
		t := t
		work = append(work, gate.Work{
			Name: "close " + t.TicketID,
			Fn: func(ctx context.Context) error {
				ok, err := s.deps.Writer.Close(ctx, t.TicketID, actor, AutoCloseReason)
				if err != nil {
					return err
				}
				if !ok {
					return apperrors.NewInvariantViolation("ticket changed before auto-close",
						map[string]any{"ticket_id": t.TicketID})
				}
				// The close already took effect; a failed archive is left to
				// the archive scheduler's delete.
				if err := s.deps.Messaging.ArchiveThread(ctx, t.ThreadID); err != nil && !errors.Is(err, collab.ErrNotFound) {
					s.deps.Logger.Warn("archive closed thread",
						zap.String("ticket_id", t.TicketID),
						zap.Int64("thread_id", t.ThreadID),
						zap.String("error", gate.TruncateMedium(err.Error())))
				}
				return nil
			},
		})
	}

	results := s.deps.Gate.Run(ctx, work)
	tally(results, &report.Closed, report)
	s.deps.Logger.Info("close pass finished",
		zap.Int64("guild_id", guildID),
		zap.Int("candidates", len(tickets)),
		zap.Int("failed", gate.Failed(results)))
	return nil
}

func (s *InactivityScheduler) warningText(t domain.Ticket) string {
	return fmt.Sprintf("<@%d>, this ticket has been inactive for %s. "+
		"It will be closed automatically in %s if no activity occurs. "+
		"Please send a message if you still need assistance.",
		t.UserID, humanDuration(s.cfg.WarnAfter), humanDuration(s.cfg.CloseAfter))
}

// tally folds gate results into report. Guards that lost a race count as
// skipped, not failed.
func tally(results []gate.Result, succeeded *int, report *TickReport) {
	for _, r := range results {
		switch {
		case r.Err == nil:
			*succeeded++
		case apperrors.IsInvariantViolation(r.Err):
			report.Skipped++
		default:
			report.Failed++
		}
	}
}

func resolveGuilds(ctx context.Context, configured []int64, tickets repository.TicketRepository) ([]int64, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	guilds, err := tickets.ListActiveGuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active guilds: %w", err)
	}
	return guilds, nil
}

func humanDuration(d time.Duration) string {
	const day = 24 * time.Hour
	if d >= day && d%day == 0 {
		n := int(d / day)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	}
	return d.String()
}

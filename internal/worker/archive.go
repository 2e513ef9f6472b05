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
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// ThreadRecorder remembers deleted threads. *service.TicketService satisfies it.
type ThreadRecorder interface {
	RecordThreadDeleted(ctx context.Context, thread domain.ArchivableThread) error
}

// ArchiveDeps are the collaborators of the archive scheduler.
type ArchiveDeps struct {
	Tickets   repository.TicketRepository
	Recorder  ThreadRecorder
	Messaging collab.Messaging
	Gate      *gate.Gate
	Clock     clock.Clock
	Logger    *zap.Logger
}

// ArchiveScheduler deletes the threads of tickets closed longer than the
// retention period. Ticket records are left untouched.
type ArchiveScheduler struct {
	deps      ArchiveDeps
	retention time.Duration
}

// NewArchiveScheduler builds the scheduler.
func NewArchiveScheduler(deps ArchiveDeps, retention time.Duration) *ArchiveScheduler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.Named("archive")
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Gate == nil {
		deps.Gate = gate.New(gate.DefaultMaxConcurrent)
	}
	return &ArchiveScheduler{deps: deps, retention: retention}
}

func (s *ArchiveScheduler) Name() string { return "archive" }

func (s *ArchiveScheduler) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	cutoff := s.deps.Clock.Now().Add(-s.retention)
	threads, err := s.deps.Tickets.GetClosedThreadsBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("list archivable threads: %w", err)
	}
	if len(threads) == 0 {
		return report, nil
	}

	work := make([]gate.Work, 0, len(threads))
	for _, th := range threads {
		th := th
		work = append(work, gate.Work{
			Name: "delete thread " + th.TicketID,
			Fn: func(ctx context.Context) error {
				if err := s.deps.Messaging.DeleteThread(ctx, th.ThreadID); err != nil && !errors.Is(err, collab.ErrNotFound) {
					return apperrors.NewTransientExternal("delete thread", err)
				}
				return s.deps.Recorder.RecordThreadDeleted(ctx, th)
			},
		})
	}

	results := s.deps.Gate.Run(ctx, work)
	tally(results, &report.Deleted, &report)
	s.deps.Logger.Info("archive pass finished",
		zap.Time("cutoff", cutoff),
		zap.Int("candidates", len(threads)),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed))
	return report, nil
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// SweepReport summarizes one overdue sweep.
type SweepReport struct {
	Candidates int
	Dispatched int
	Failed     int
	Skipped    int
}

// OverdueService detects overdue tickets and notifies every active user.
type OverdueService struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	notifier Notifier
	cfg      config.SweepConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// OverdueDependencies bundles collaborators for the sweep.
type OverdueDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Notifier   Notifier
	Config     config.SweepConfig
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewOverdueService constructs the service.
func NewOverdueService(deps OverdueDependencies) *OverdueService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueService{
		tickets:  deps.TicketRepo,
		users:    deps.UserRepo,
		notifier: deps.Notifier,
		cfg:      deps.Config,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      clock,
	}
}

// RunOverdueSweep dispatches one overdue notification per eligible ticket.
// An error is returned only when the sweep could not run at all; per-ticket
// failures are counted in the report and never stop the remaining tickets.
func (s *OverdueService) RunOverdueSweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		err    error
	)
	if s.cfg.Idempotency == config.IdempotencyWindow {
		report, err = s.sweepWindow(ctx)
	} else {
		report, err = s.sweepMarker(ctx)
	}
	if err != nil {
		s.metrics.RecordSweep(false, 0, 0, 0)
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return report, err
	}
	s.metrics.RecordSweep(true, report.Dispatched, report.Failed, report.Skipped)
	if report.Candidates > 0 {
		s.logger.Info("overdue sweep completed",
			zap.Int("candidates", report.Candidates),
			zap.Int("dispatched", report.Dispatched),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped))
	}
	return report, nil
}

// sweepMarker claims each ticket through its overdue marker before sending,
// so a ticket is notified once until the marker is cleared or goes stale.
func (s *OverdueService) sweepMarker(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now().Truncate(time.Microsecond)

	var renotifyBefore *time.Time
	if d := s.cfg.Renotify(); d > 0 {
		before := now.Add(-d)
		renotifyBefore = &before
	}

	candidates, err := s.tickets.ListOverdue(ctx, repository.OverdueQuery{
		Now:            now,
		UseMarker:      true,
		RenotifyBefore: renotifyBefore,
	})
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	recipients, err := s.users.ListActiveEmails(ctx, nil)
	if err != nil {
		return report, err
	}

	for i := range candidates {
		ticket := &candidates[i]
		claimed, err := s.tickets.ClaimOverdue(ctx, ticket.ID, now, renotifyBefore)
		if err != nil {
			report.Failed++
			s.logger.Error("failed to claim overdue ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
			continue
		}
		if !claimed {
			report.Skipped++
			continue
		}
		ticket.OverdueNotifiedAt.SetValid(now)

		outcome := s.notifier.Dispatch(ctx, domain.NotificationOverdue, recipients, ticket, nil)
		switch {
		case outcome.Skipped:
			report.Skipped++
		case outcome.Err != nil:
			report.Failed++
			if err := s.tickets.ReleaseOverdue(ctx, ticket.ID, now); err != nil {
				s.logger.Error("failed to release overdue claim", zap.String("ticket_id", ticket.ID), zap.Error(err))
			}
		default:
			report.Dispatched++
		}
	}
	return report, nil
}

// sweepWindow only considers tickets whose deadline passed within the last
// interval. A ticket is missed if no sweep runs during that interval.
func (s *OverdueService) sweepWindow(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()
	start := now.Add(-s.cfg.Interval())

	candidates, err := s.tickets.ListOverdue(ctx, repository.OverdueQuery{Now: now, WindowStart: &start})
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}

	recipients, err := s.users.ListActiveEmails(ctx, nil)
	if err != nil {
		return report, err
	}

	for i := range candidates {
		outcome := s.notifier.Dispatch(ctx, domain.NotificationOverdue, recipients, &candidates[i], nil)
		switch {
		case outcome.Skipped:
			report.Skipped++
		case outcome.Err != nil:
			report.Failed++
		default:
			report.Dispatched++
		}
	}
	return report, nil
}

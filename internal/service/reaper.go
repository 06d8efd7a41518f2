package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/internal/repository"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/utils"

	"golang.org/x/sync/errgroup"
)

// ReaperService recovers from crashed workers: executions stuck in
// running long past their deadline are forced to failed and their
// report's claim is cleared so the next tick can pick it up again.
// It also purges execution history past the retention window.
type ReaperService interface {
	ReapStale(ctx context.Context) error
	PurgeExpired(ctx context.Context) error
}

type reaperService struct {
	cfg           *config.Config
	log           *logger.Logger
	reportRepo    repository.ScheduledReportRepository
	executionRepo repository.ReportExecutionRepository
	generator     ReportGenerationService
	uow           repository.UnitOfWork
	now           func() time.Time
}

func NewReaperService(
	cfg *config.Config,
	log *logger.Logger,
	reportRepo repository.ScheduledReportRepository,
	executionRepo repository.ReportExecutionRepository,
	generator ReportGenerationService,
	uow repository.UnitOfWork,
	now func() time.Time,
) ReaperService {
	return &reaperService{
		cfg:           cfg,
		log:           log,
		reportRepo:    reportRepo,
		executionRepo: executionRepo,
		generator:     generator,
		uow:           uow,
		now:           now,
	}
}

// ReapStale scans for executions running longer than the stale factor
// times their mode's deadline. The initial query uses the quick
// deadline as the floor; deep runs are filtered per report afterwards.
func (s *reaperService) ReapStale(ctx context.Context) error {
	now := s.now()
	floor := now.Add(-time.Duration(s.cfg.Reaper.StaleFactor) * s.cfg.Gemini.QuickTimeout)

	candidates, err := s.executionRepo.FindStaleRunning(ctx, floor)
	if err != nil {
		s.log.ErrorContextWithAlert(ctx, "Failed to query stale executions", logger.ErrorField(err))
		return fmt.Errorf("find stale executions: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, execution := range candidates {
		execution := execution
		group.Go(func() error {
			if err := s.reapOne(groupCtx, execution, now); err != nil {
				s.log.ErrorContext(groupCtx, "Failed to reap execution",
					logger.ErrorField(err),
					logger.StringField("execution_id", execution.ID),
				)
			}
			// Per-execution failures never abort the sweep.
			return nil
		})
	}
	return group.Wait()
}

func (s *reaperService) reapOne(ctx context.Context, execution model.ReportExecution, now time.Time) error {
	report, err := s.reportRepo.FindByID(ctx, execution.ReportID)
	if err != nil {
		if errors.Is(err, dto.ErrReportNotFound) {
			// Orphaned execution, the report was deleted mid-run.
			return s.executionRepo.Fail(ctx, execution.ID, "report deleted while running", now)
		}
		return err
	}

	expected := s.generator.TimeoutFor(s.generator.ModeFor(report))
	deadline := execution.StartedAt.Add(time.Duration(s.cfg.Reaper.StaleFactor) * expected)
	if now.Before(deadline) {
		// A deep run still within its window.
		return nil
	}

	s.log.WarnContext(ctx, "Reaping stale execution",
		logger.StringField("execution_id", execution.ID),
		logger.StringField("report_id", report.ID),
		logger.StringField("started_at", execution.StartedAt.Format(time.RFC3339)),
	)

	// Claim is cleared without advancing next_run: the report is due
	// again immediately and the next tick retries it. The clear is
	// conditional on the token read above, so a worker that finalized
	// and lost the claim to a fresh tick in the meantime keeps the
	// fresh claim intact.
	return s.uow.Run(func(opts ...utils.DBOption) error {
		message := fmt.Sprintf("execution exceeded %s deadline, reaped", utils.FormatDuration(time.Duration(s.cfg.Reaper.StaleFactor)*expected))
		if err := s.executionRepo.Fail(ctx, execution.ID, message, now, opts...); err != nil {
			return err
		}
		if !report.RunningToken.Valid {
			// Claim already released, only the execution needed closing.
			return nil
		}
		return s.reportRepo.ClearClaim(ctx, report.ID, report.RunningToken.String, opts...)
	})
}

// PurgeExpired drops execution history older than the retention window.
func (s *reaperService) PurgeExpired(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.Retention.MaxAge)
	purged, err := s.executionRepo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.log.ErrorContextWithAlert(ctx, "Failed to purge old executions", logger.ErrorField(err))
		return fmt.Errorf("purge executions: %w", err)
	}
	if purged > 0 {
		s.log.InfoContext(ctx, "Purged old executions",
			logger.Field("purged", purged),
			logger.StringField("cutoff", cutoff.Format(time.RFC3339)),
		)
	}
	return nil
}

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

	"github.com/google/uuid"
)

// SchedulerService is the schedule checker. Each tick it finds due
// reports, claims them one by one and hands the claimed work to the
// runner pool. A tick never blocks on report execution.
type SchedulerService interface {
	Execute(ctx context.Context) error
	RunReportNow(ctx context.Context, reportID string) (*model.ReportExecution, error)
}

type schedulerService struct {
	cfg           *config.Config
	log           *logger.Logger
	reportRepo    repository.ScheduledReportRepository
	executionRepo repository.ReportExecutionRepository
	runner        ReportRunner
	generator     ReportGenerationService
	semaphore     chan struct{}
	now           func() time.Time
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	reportRepo repository.ScheduledReportRepository,
	executionRepo repository.ReportExecutionRepository,
	runner ReportRunner,
	generator ReportGenerationService,
	now func() time.Time,
) SchedulerService {
	return &schedulerService{
		cfg:           cfg,
		log:           log,
		reportRepo:    reportRepo,
		executionRepo: executionRepo,
		runner:        runner,
		generator:     generator,
		semaphore:     make(chan struct{}, cfg.Scheduler.MaxConcurrency),
		now:           now,
	}
}

// Execute runs one checker tick. Per-report dispatch failures are
// skipped so one bad row never starves the rest; a lost claim race is
// normal and stays quiet.
func (s *schedulerService) Execute(ctx context.Context) error {
	now := s.now()

	due, err := s.reportRepo.FindDue(ctx, now)
	if err != nil {
		s.log.ErrorContextWithAlert(ctx, "Failed to query due reports", logger.ErrorField(err))
		return fmt.Errorf("find due reports: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.log.InfoContext(ctx, "Checker tick",
		logger.IntField("due_reports", len(due)),
	)

	for i, report := range due {
		if !utils.ShouldContinue(ctx, s.log) {
			return ctx.Err()
		}
		_, err := s.dispatch(ctx, report)
		switch {
		case err == nil:
		case errors.Is(err, dto.ErrClaimLost):
			// Lost the race to another checker, nothing to do.
		case errors.Is(err, dto.ErrWorkersBusy):
			// Pool is full, the rest stays due for the next tick.
			s.log.InfoContext(ctx, "Worker pool full, deferring due reports",
				logger.IntField("deferred", len(due)-i),
			)
			return nil
		default:
			s.log.ErrorContext(ctx, "Failed to dispatch report",
				logger.ErrorField(err),
				logger.StringField("report_id", report.ID),
			)
		}
	}

	return nil
}

// RunReportNow claims and dispatches a single report outside its
// schedule. The report must be enabled and not already running.
func (s *schedulerService) RunReportNow(ctx context.Context, reportID string) (*model.ReportExecution, error) {
	report, err := s.reportRepo.FindByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.Enabled {
		return nil, &dto.ValidationError{Field: "enabled", Detail: "report is disabled"}
	}
	return s.dispatch(ctx, *report)
}

// dispatch claims the report, opens its execution record and hands the
// run to the worker pool. Fire and forget: the tick moves on while the
// runner works.
func (s *schedulerService) dispatch(ctx context.Context, report model.ScheduledReport) (*model.ReportExecution, error) {
	// Take a worker slot before the claim. A full pool then never
	// leaves reports claimed but idle; unclaimed reports simply stay
	// due until a slot frees up.
	select {
	case s.semaphore <- struct{}{}:
	default:
		return nil, dto.ErrWorkersBusy
	}

	token := uuid.NewString()

	claimed, err := s.reportRepo.Claim(ctx, report.ID, token)
	if err != nil {
		<-s.semaphore
		return nil, fmt.Errorf("claim report: %w", err)
	}
	if !claimed {
		// Someone else got it between the due query and the claim.
		<-s.semaphore
		s.log.DebugContext(ctx, "Report already claimed",
			logger.StringField("report_id", report.ID),
		)
		return nil, dto.ErrClaimLost
	}

	execution, err := s.executionRepo.Start(ctx, report.ID, s.now())
	if err != nil {
		// Roll the claim back so the next tick can retry.
		if clearErr := s.reportRepo.ClearClaim(ctx, report.ID, token); clearErr != nil {
			s.log.ErrorContextWithAlert(ctx, "Failed to clear claim after start failure",
				logger.ErrorField(clearErr),
				logger.StringField("report_id", report.ID),
			)
		}
		<-s.semaphore
		return nil, fmt.Errorf("start execution: %w", err)
	}

	// The run is anchored to the instant it was scheduled for, so a
	// late start never drifts the cadence. A manual run ahead of the
	// schedule anchors to now instead, leaving the upcoming occurrence
	// in place.
	scheduledFor := s.now()
	if report.NextRun.Valid && report.NextRun.Time.Before(scheduledFor) {
		scheduledFor = report.NextRun.Time
	}

	utils.GoSafe(func() {
		defer func() { <-s.semaphore }()

		mode := s.generator.ModeFor(&report)
		runCtx, cancel := context.WithTimeout(context.Background(), s.generator.TimeoutFor(mode)+s.cfg.Slack.Timeout+time.Minute)
		defer cancel()
		runCtx = logger.NewContext(runCtx, s.log)

		s.runner.Run(runCtx, report, execution, token, scheduledFor)
	})

	return execution, nil
}

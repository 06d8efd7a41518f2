package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"insight-reports/config"
	"insight-reports/internal/model"
	"insight-reports/internal/repository"
	"insight-reports/internal/schedule"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/utils"

	"gorm.io/datatypes"
)

// ReportRunner drives one claimed report end to end: generate, deliver,
// then finalize the execution and advance the schedule in a single
// transaction so the running claim never outlives the outcome.
type ReportRunner interface {
	Run(ctx context.Context, report model.ScheduledReport, execution *model.ReportExecution, token string, scheduledFor time.Time)
}

type reportRunner struct {
	cfg           *config.Config
	log           *logger.Logger
	generator     ReportGenerationService
	delivery      DeliveryService
	reportRepo    repository.ScheduledReportRepository
	executionRepo repository.ReportExecutionRepository
	uow           repository.UnitOfWork
	now           func() time.Time
}

func NewReportRunner(
	cfg *config.Config,
	log *logger.Logger,
	generator ReportGenerationService,
	delivery DeliveryService,
	reportRepo repository.ScheduledReportRepository,
	executionRepo repository.ReportExecutionRepository,
	uow repository.UnitOfWork,
	now func() time.Time,
) ReportRunner {
	return &reportRunner{
		cfg:           cfg,
		log:           log,
		generator:     generator,
		delivery:      delivery,
		reportRepo:    reportRepo,
		executionRepo: executionRepo,
		uow:           uow,
		now:           now,
	}
}

func (r *reportRunner) Run(ctx context.Context, report model.ScheduledReport, execution *model.ReportExecution, token string, scheduledFor time.Time) {
	content, err := r.generator.Run(ctx, &report)
	if err != nil {
		r.finalize(ctx, &report, execution, token, scheduledFor, nil, "", err)
		return
	}

	receipt, err := r.delivery.Deliver(ctx, &report, content)
	if err != nil {
		r.log.ErrorContextWithAlert(ctx, "Report delivery failed",
			logger.ErrorField(err),
			logger.StringField("report_id", report.ID),
			logger.StringField("execution_id", execution.ID),
		)
		r.finalize(ctx, &report, execution, token, scheduledFor, nil, "", err)
		return
	}

	result, marshalErr := json.Marshal(content)
	if marshalErr != nil {
		r.finalize(ctx, &report, execution, token, scheduledFor, nil, "", fmt.Errorf("encode result: %w", marshalErr))
		return
	}
	receiptJSON := ""
	if receipt != nil {
		if raw, err := json.Marshal(receipt); err == nil {
			receiptJSON = string(raw)
		}
	}

	r.finalize(ctx, &report, execution, token, scheduledFor, result, receiptJSON, nil)
}

// finalize writes the terminal execution state and releases the claim
// atomically. The next run is computed from the instant the run was
// scheduled for, not from completion time, so late starts never drift
// the schedule forward.
func (r *reportRunner) finalize(ctx context.Context, report *model.ScheduledReport, execution *model.ReportExecution, token string, scheduledFor time.Time, result datatypes.JSON, receipt string, runErr error) {
	now := r.now()

	next, err := r.nextOccurrence(report, scheduledFor, now)
	if err != nil {
		// Malformed schedule on a live report. Finalize the execution
		// and leave the claim for the reaper rather than advance to a
		// bogus instant.
		r.log.ErrorContextWithAlert(ctx, "Failed to compute next run",
			logger.ErrorField(err),
			logger.StringField("report_id", report.ID),
		)
		if finalizeErr := r.executionRepo.Fail(ctx, execution.ID, err.Error(), now); finalizeErr != nil {
			r.log.ErrorContext(ctx, "Failed to finalize execution", logger.ErrorField(finalizeErr))
		}
		return
	}

	txErr := r.uow.Run(func(opts ...utils.DBOption) error {
		if runErr != nil {
			message := utils.TruncateString(runErr.Error(), 2000)
			if err := r.executionRepo.Fail(ctx, execution.ID, message, now, opts...); err != nil {
				return err
			}
		} else {
			if err := r.executionRepo.Complete(ctx, execution.ID, result, receipt, now, opts...); err != nil {
				return err
			}
		}
		return r.reportRepo.ReleaseClaim(ctx, report.ID, token, now, next, opts...)
	})
	if txErr != nil {
		r.log.ErrorContextWithAlert(ctx, "Failed to finalize report run",
			logger.ErrorField(txErr),
			logger.StringField("report_id", report.ID),
			logger.StringField("execution_id", execution.ID),
		)
		return
	}

	if runErr != nil {
		r.log.InfoContext(ctx, "Report run failed and rescheduled",
			logger.StringField("report_id", report.ID),
			logger.StringField("execution_id", execution.ID),
			logger.StringField("next_run", next.Format(time.RFC3339)),
			logger.ErrorField(runErr),
		)
		return
	}
	r.log.InfoContext(ctx, "Report run completed",
		logger.StringField("report_id", report.ID),
		logger.StringField("execution_id", execution.ID),
		logger.StringField("next_run", next.Format(time.RFC3339)),
	)
}

// nextOccurrence advances from the scheduled instant, then keeps
// stepping until the result is in the future. A report that was down
// for a week fires once and lands on its normal cadence, not seven
// catch-up runs.
func (r *reportRunner) nextOccurrence(report *model.ScheduledReport, scheduledFor, now time.Time) (time.Time, error) {
	spec := schedule.FromReport(report)
	next, err := schedule.NextRun(spec, scheduledFor)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		next, err = schedule.NextRun(spec, next)
		if err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

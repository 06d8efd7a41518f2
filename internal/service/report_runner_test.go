package service

import (
	"context"
	"testing"
	"time"

	"insight-reports/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunnerFixture(t *testing.T, now func() time.Time, reports ...*model.ScheduledReport) (*fakeReportRepo, *fakeExecutionRepo, *fakeGenerationRepo, *fakeDelivery, ReportRunner) {
	t.Helper()
	cfg := testConfig()
	log := testLogger()
	reportRepo := newFakeReportRepo(reports...)
	executionRepo := newFakeExecutionRepo()
	genRepo := &fakeGenerationRepo{output: "## Summary\nAll good."}
	delivery := &fakeDelivery{}
	generator := NewReportGenerationService(cfg, log, genRepo)
	runner := NewReportRunner(cfg, log, generator, delivery, reportRepo, executionRepo, fakeUnitOfWork{}, now)
	return reportRepo, executionRepo, genRepo, delivery, runner
}

func TestReportRunner_DuplicateCompletionIsIdempotent(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(time.Minute)
	report := dailyReport("report-1", scheduledAt)
	report.RunningToken.String = "token-1"
	report.RunningToken.Valid = true

	reportRepo, executionRepo, _, _, runner := newRunnerFixture(t, func() time.Time { return now }, report)

	execution, err := executionRepo.Start(context.Background(), "report-1", now)
	require.NoError(t, err)

	runner.Run(context.Background(), *reportRepo.get("report-1"), execution, "token-1", scheduledAt)
	first := executionRepo.get(execution.ID)
	require.Equal(t, model.StatusCompleted, first.Status)

	// A duplicate completion signal for the same execution must not
	// change anything: not the terminal state, not the schedule.
	reportAfterFirst := reportRepo.get("report-1")
	runner.Run(context.Background(), *reportAfterFirst, execution, "token-1", scheduledAt)

	second := executionRepo.get(execution.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CompletedAt.Time, second.CompletedAt.Time)
	assert.Len(t, executionRepo.all(), 1)
}

func TestReportRunner_TimeoutFailureMessage(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(time.Minute)
	report := dailyReport("report-1", scheduledAt)
	report.RunningToken.String = "token-1"
	report.RunningToken.Valid = true

	reportRepo, executionRepo, genRepo, delivery, runner := newRunnerFixture(t, func() time.Time { return now }, report)
	genRepo.block = true

	cfg := testConfig()
	cfg.Gemini.QuickTimeout = 20 * time.Millisecond
	generator := NewReportGenerationService(cfg, testLogger(), genRepo)
	runner = NewReportRunner(cfg, testLogger(), generator, delivery, reportRepo, executionRepo, fakeUnitOfWork{}, func() time.Time { return now })

	execution, err := executionRepo.Start(context.Background(), "report-1", now)
	require.NoError(t, err)

	runner.Run(context.Background(), *reportRepo.get("report-1"), execution, "token-1", scheduledAt)

	got := executionRepo.get(execution.ID)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage.String, "timeout")

	// The schedule still advances and the report stays enabled.
	after := reportRepo.get("report-1")
	assert.True(t, after.Enabled)
	assert.False(t, after.RunningToken.Valid)
	assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), after.NextRun.Time.UTC())
}

func TestReportRunner_StaleTokenCannotClobberReclaimedReport(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(time.Minute)
	report := dailyReport("report-1", scheduledAt)
	// The reaper cleared the stale worker's claim and a new worker
	// reclaimed the report.
	report.RunningToken.String = "fresh-token"
	report.RunningToken.Valid = true

	reportRepo, executionRepo, _, _, runner := newRunnerFixture(t, func() time.Time { return now }, report)

	execution, err := executionRepo.Start(context.Background(), "report-1", now)
	require.NoError(t, err)

	// The stale worker finishes late with its old token. Its release
	// must be a no-op against the fresh claim.
	runner.Run(context.Background(), *reportRepo.get("report-1"), execution, "stale-token", scheduledAt)

	after := reportRepo.get("report-1")
	assert.True(t, after.RunningToken.Valid)
	assert.Equal(t, "fresh-token", after.RunningToken.String)
	assert.Equal(t, scheduledAt, after.NextRun.Time.UTC(), "schedule untouched by stale worker")
}

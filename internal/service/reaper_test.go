package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"insight-reports/internal/model"
	"insight-reports/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookUnitOfWork runs a callback before the transaction body, letting
// tests interleave concurrent writes into the gap.
type hookUnitOfWork struct {
	before func()
}

func (h *hookUnitOfWork) Run(fn func(opts ...utils.DBOption) error) error {
	if h.before != nil {
		h.before()
	}
	return fn()
}

func newReaperFixture(t *testing.T, now func() time.Time, reports ...*model.ScheduledReport) (*fakeReportRepo, *fakeExecutionRepo, ReaperService) {
	t.Helper()
	cfg := testConfig()
	log := testLogger()
	reportRepo := newFakeReportRepo(reports...)
	executionRepo := newFakeExecutionRepo()
	generator := NewReportGenerationService(cfg, log, &fakeGenerationRepo{})
	reaper := NewReaperService(cfg, log, reportRepo, executionRepo, generator, fakeUnitOfWork{}, now)
	return reportRepo, executionRepo, reaper
}

func TestReaperService_ReapStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("stuck quick run is failed and its claim cleared", func(t *testing.T) {
		report := dailyReport("report-1", now.Add(time.Hour))
		report.RunningToken = sql.NullString{String: "dead-worker", Valid: true}
		reportRepo, executionRepo, reaper := newReaperFixture(t, clock, report)

		// Quick deadline is 30s, stale factor 2: anything older than a
		// minute is stuck.
		execution, err := executionRepo.Start(context.Background(), "report-1", now.Add(-5*time.Minute))
		require.NoError(t, err)

		require.NoError(t, reaper.ReapStale(context.Background()))

		got := executionRepo.get(execution.ID)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage.String, "reaped")
		assert.False(t, reportRepo.get("report-1").RunningToken.Valid)
	})

	t.Run("deep run inside its window is left alone", func(t *testing.T) {
		report := dailyReport("report-1", now.Add(time.Hour))
		report.Deep = true
		report.RunningToken = sql.NullString{String: "slow-worker", Valid: true}
		reportRepo, executionRepo, reaper := newReaperFixture(t, clock, report)

		// Deep deadline is 15m, stale factor 2: 20 minutes in is fine.
		execution, err := executionRepo.Start(context.Background(), "report-1", now.Add(-20*time.Minute))
		require.NoError(t, err)

		require.NoError(t, reaper.ReapStale(context.Background()))

		assert.Equal(t, model.StatusRunning, executionRepo.get(execution.ID).Status)
		assert.True(t, reportRepo.get("report-1").RunningToken.Valid)
	})

	t.Run("deep run past its window is reaped", func(t *testing.T) {
		report := dailyReport("report-1", now.Add(time.Hour))
		report.Deep = true
		report.RunningToken = sql.NullString{String: "dead-worker", Valid: true}
		reportRepo, executionRepo, reaper := newReaperFixture(t, clock, report)

		execution, err := executionRepo.Start(context.Background(), "report-1", now.Add(-45*time.Minute))
		require.NoError(t, err)

		require.NoError(t, reaper.ReapStale(context.Background()))

		assert.Equal(t, model.StatusFailed, executionRepo.get(execution.ID).Status)
		assert.False(t, reportRepo.get("report-1").RunningToken.Valid)
	})

	t.Run("orphaned execution is failed when its report is gone", func(t *testing.T) {
		_, executionRepo, reaper := newReaperFixture(t, clock)

		execution, err := executionRepo.Start(context.Background(), "deleted-report", now.Add(-time.Hour))
		require.NoError(t, err)

		require.NoError(t, reaper.ReapStale(context.Background()))

		got := executionRepo.get(execution.ID)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage.String, "deleted")
	})

	t.Run("claim retaken mid-sweep is preserved", func(t *testing.T) {
		// The old worker finalizes and a new tick reclaims the report
		// while the reaper is between its stale scan and the clear. The
		// fresh claim must survive.
		report := dailyReport("report-1", now.Add(time.Hour))
		report.RunningToken = sql.NullString{String: "old-worker", Valid: true}

		cfg := testConfig()
		log := testLogger()
		reportRepo := newFakeReportRepo(report)
		executionRepo := newFakeExecutionRepo()
		generator := NewReportGenerationService(cfg, log, &fakeGenerationRepo{})
		uow := &hookUnitOfWork{}
		reaper := NewReaperService(cfg, log, reportRepo, executionRepo, generator, uow, clock)

		stale, err := executionRepo.Start(context.Background(), "report-1", now.Add(-5*time.Minute))
		require.NoError(t, err)

		var fresh *model.ReportExecution
		uow.before = func() {
			require.NoError(t, executionRepo.Complete(context.Background(), stale.ID, []byte(`{"summary":"late"}`), "", now))
			require.NoError(t, reportRepo.ReleaseClaim(context.Background(), "report-1", "old-worker", now, now.Add(24*time.Hour)))
			claimed, claimErr := reportRepo.Claim(context.Background(), "report-1", "new-worker")
			require.NoError(t, claimErr)
			require.True(t, claimed)
			fresh, claimErr = executionRepo.Start(context.Background(), "report-1", now)
			require.NoError(t, claimErr)
		}

		require.NoError(t, reaper.ReapStale(context.Background()))

		got := reportRepo.get("report-1")
		require.True(t, got.RunningToken.Valid)
		assert.Equal(t, "new-worker", got.RunningToken.String)
		assert.Equal(t, model.StatusCompleted, executionRepo.get(stale.ID).Status, "late finalize wins over the reap")
		assert.Equal(t, model.StatusRunning, executionRepo.get(fresh.ID).Status)
	})

	t.Run("healthy recent executions are untouched", func(t *testing.T) {
		report := dailyReport("report-1", now.Add(time.Hour))
		_, executionRepo, reaper := newReaperFixture(t, clock, report)

		execution, err := executionRepo.Start(context.Background(), "report-1", now.Add(-10*time.Second))
		require.NoError(t, err)

		require.NoError(t, reaper.ReapStale(context.Background()))

		assert.Equal(t, model.StatusRunning, executionRepo.get(execution.ID).Status)
	})
}

func TestReaperService_PurgeExpired(t *testing.T) {
	now := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	_, executionRepo, reaper := newReaperFixture(t, func() time.Time { return now })

	old, err := executionRepo.Start(context.Background(), "report-1", now.Add(-31*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, executionRepo.Fail(context.Background(), old.ID, "old failure", now.Add(-31*24*time.Hour)))

	recent, err := executionRepo.Start(context.Background(), "report-1", now.Add(-2*24*time.Hour))
	require.NoError(t, err)

	require.NoError(t, reaper.PurgeExpired(context.Background()))

	assert.Nil(t, executionRepo.get(old.ID))
	assert.NotNil(t, executionRepo.get(recent.ID))
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/pkg/messenger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDelivery struct {
	mu      sync.Mutex
	calls   int
	err     error
	receipt *messenger.Receipt
}

func (f *fakeDelivery) Deliver(ctx context.Context, report *model.ScheduledReport, content *dto.ReportContent) (*messenger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &messenger.Receipt{MessageID: "msg-1", Channel: "#sales"}, nil
}

func dailyReport(id string, nextRun time.Time) *model.ScheduledReport {
	return &model.ScheduledReport{
		ID:              id,
		OwnerID:         "owner-1",
		Name:            "Daily Ops",
		Query:           "Summarize yesterday's operations",
		Frequency:       model.FrequencyDaily,
		TimeOfDay:       "09:00",
		Timezone:        "UTC",
		DeliveryKind:    model.DeliveryChannel,
		DeliveryAddress: "#ops",
		WorkspaceID:     "ws-1",
		Enabled:         true,
		NextRun:         sql.NullTime{Time: nextRun, Valid: true},
	}
}

type schedulerFixture struct {
	reportRepo    *fakeReportRepo
	executionRepo *fakeExecutionRepo
	delivery      *fakeDelivery
	genRepo       *fakeGenerationRepo
	scheduler     SchedulerService
}

func newSchedulerFixture(t *testing.T, now func() time.Time, reports ...*model.ScheduledReport) *schedulerFixture {
	t.Helper()
	cfg := testConfig()
	log := testLogger()

	fixture := &schedulerFixture{
		reportRepo:    newFakeReportRepo(reports...),
		executionRepo: newFakeExecutionRepo(),
		delivery:      &fakeDelivery{},
		genRepo:       &fakeGenerationRepo{output: "## Summary\nAll good."},
	}

	generator := NewReportGenerationService(cfg, log, fixture.genRepo)
	runner := NewReportRunner(cfg, log, generator, fixture.delivery, fixture.reportRepo, fixture.executionRepo, fakeUnitOfWork{}, now)
	fixture.scheduler = NewSchedulerService(cfg, log, fixture.reportRepo, fixture.executionRepo, runner, generator, now)
	return fixture
}

func TestSchedulerService_Execute(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("due report runs to completion and reschedules from the scheduled instant", func(t *testing.T) {
		// The tick fires 7 minutes late; the next run must still be
		// anchored to 09:00, not 09:07.
		now := scheduledAt.Add(7 * time.Minute)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		assert.Eventually(t, func() bool {
			report := fixture.reportRepo.get("report-1")
			return !report.RunningToken.Valid && report.LastRun.Valid
		}, 2*time.Second, 10*time.Millisecond)

		report := fixture.reportRepo.get("report-1")
		assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), report.NextRun.Time.UTC())
		assert.True(t, report.Enabled)

		executions := fixture.executionRepo.all()
		require.Len(t, executions, 1)
		assert.Equal(t, model.StatusCompleted, executions[0].Status)
		assert.True(t, executions[0].CompletedAt.Valid)
		assert.True(t, executions[0].DeliveryReceipt.Valid)
		assert.Equal(t, 1, fixture.delivery.calls)
	})

	t.Run("generation failure records failed execution and still reschedules", func(t *testing.T) {
		now := scheduledAt.Add(time.Minute)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))
		fixture.genRepo.err = errors.New("upstream 500")

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		assert.Eventually(t, func() bool {
			report := fixture.reportRepo.get("report-1")
			return !report.RunningToken.Valid && report.NextRun.Time.After(now)
		}, 2*time.Second, 10*time.Millisecond)

		report := fixture.reportRepo.get("report-1")
		assert.True(t, report.Enabled, "failures never disable the report")
		assert.Equal(t, time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC), report.NextRun.Time.UTC())

		executions := fixture.executionRepo.all()
		require.Len(t, executions, 1)
		assert.Equal(t, model.StatusFailed, executions[0].Status)
		assert.Contains(t, executions[0].ErrorMessage.String, "collaborator_failure")
		assert.Zero(t, fixture.delivery.calls, "failed generation never delivers")
	})

	t.Run("delivery failure records failed execution with delivery kind", func(t *testing.T) {
		now := scheduledAt.Add(time.Minute)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))
		fixture.delivery.err = &dto.DeliveryError{Kind: dto.DeliveryCredentialInactive}

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		assert.Eventually(t, func() bool {
			executions := fixture.executionRepo.all()
			return len(executions) == 1 && executions[0].Status.IsTerminal()
		}, 2*time.Second, 10*time.Millisecond)

		executions := fixture.executionRepo.all()
		assert.Equal(t, model.StatusFailed, executions[0].Status)
		assert.Contains(t, executions[0].ErrorMessage.String, "credential_inactive")
	})

	t.Run("reports that are not due are left alone", func(t *testing.T) {
		now := scheduledAt.Add(-time.Hour)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, fixture.executionRepo.all())
		assert.False(t, fixture.reportRepo.get("report-1").RunningToken.Valid)
	})

	t.Run("disabled reports never fire", func(t *testing.T) {
		report := dailyReport("report-1", scheduledAt)
		report.Enabled = false
		now := scheduledAt.Add(time.Minute)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, report)

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, fixture.executionRepo.all())
	})

	t.Run("claimed reports are skipped by subsequent ticks", func(t *testing.T) {
		report := dailyReport("report-1", scheduledAt)
		report.RunningToken = sql.NullString{String: "other-worker", Valid: true}
		now := scheduledAt.Add(time.Minute)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, report)

		require.NoError(t, fixture.scheduler.Execute(context.Background()))

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, fixture.executionRepo.all())
	})
}

func TestSchedulerService_AtMostOneClaim(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(time.Minute)
	fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))

	// Hold the winner's worker inside generation so every other
	// claimant races against a live claim rather than a released one.
	gate := make(chan struct{})
	fixture.genRepo.gate = gate

	// Simulate overlapping checker instances racing on the same row.
	const claimants = 16
	var wins, losses int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := fixture.reportRepo.get("report-1")
			_, err := fixture.scheduler.(*schedulerService).dispatch(context.Background(), *report)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			losses++
			if !errors.Is(err, dto.ErrClaimLost) && !errors.Is(err, dto.ErrWorkersBusy) {
				t.Errorf("unexpected dispatch error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one claimant may win")
	assert.Equal(t, claimants-1, losses)
	require.Len(t, fixture.executionRepo.all(), 1, "losing claimants never open executions")

	close(gate)
	assert.Eventually(t, func() bool {
		executions := fixture.executionRepo.all()
		return len(executions) == 1 && executions[0].Status == model.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerService_WorkerPoolBoundsTick(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := scheduledAt.Add(time.Minute)

	reports := make([]*model.ScheduledReport, 0, 5)
	for _, id := range []string{"report-1", "report-2", "report-3", "report-4", "report-5"} {
		reports = append(reports, dailyReport(id, scheduledAt))
	}
	fixture := newSchedulerFixture(t, func() time.Time { return now }, reports...)

	gate := make(chan struct{})
	fixture.genRepo.gate = gate

	// Five due reports against four workers: the tick dispatches four
	// and returns without blocking, leaving the fifth unclaimed.
	require.NoError(t, fixture.scheduler.Execute(context.Background()))
	assert.Len(t, fixture.executionRepo.all(), 4)

	var claimed int
	for _, report := range reports {
		if fixture.reportRepo.get(report.ID).RunningToken.Valid {
			claimed++
		}
	}
	assert.Equal(t, 4, claimed, "the deferred report stays unclaimed for the next tick")

	// A manual run against the full pool is refused instead of queued.
	_, err := fixture.scheduler.RunReportNow(context.Background(), "report-5")
	assert.ErrorIs(t, err, dto.ErrWorkersBusy)

	close(gate)
	assert.Eventually(t, func() bool {
		for _, execution := range fixture.executionRepo.all() {
			if !execution.Status.IsTerminal() {
				return false
			}
		}
		return len(fixture.executionRepo.all()) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerService_RunReportNow(t *testing.T) {
	scheduledAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("runs an enabled report outside its schedule", func(t *testing.T) {
		// Not due for another day, manual trigger runs it anyway.
		now := scheduledAt.Add(-24 * time.Hour)
		fixture := newSchedulerFixture(t, func() time.Time { return now }, dailyReport("report-1", scheduledAt))

		execution, err := fixture.scheduler.RunReportNow(context.Background(), "report-1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusRunning, execution.Status)

		assert.Eventually(t, func() bool {
			got := fixture.executionRepo.get(execution.ID)
			return got != nil && got.Status == model.StatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("rejects disabled reports", func(t *testing.T) {
		report := dailyReport("report-1", scheduledAt)
		report.Enabled = false
		fixture := newSchedulerFixture(t, time.Now, report)

		_, err := fixture.scheduler.RunReportNow(context.Background(), "report-1")
		var validationErr *dto.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})

	t.Run("rejects unknown reports", func(t *testing.T) {
		fixture := newSchedulerFixture(t, time.Now)
		_, err := fixture.scheduler.RunReportNow(context.Background(), "missing")
		assert.ErrorIs(t, err, dto.ErrReportNotFound)
	})

	t.Run("rejects already running reports", func(t *testing.T) {
		report := dailyReport("report-1", scheduledAt)
		report.RunningToken = sql.NullString{String: "busy", Valid: true}
		fixture := newSchedulerFixture(t, time.Now, report)

		_, err := fixture.scheduler.RunReportNow(context.Background(), "report-1")
		assert.ErrorIs(t, err, dto.ErrClaimLost)
	})
}

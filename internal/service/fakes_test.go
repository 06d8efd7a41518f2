package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/utils"

	"gorm.io/datatypes"
)

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.Scheduler{TickInterval: time.Minute, MaxConcurrency: 4},
		Reaper:    config.Reaper{Interval: time.Hour, StaleFactor: 2},
		Retention: config.Retention{PurgeInterval: 24 * time.Hour, MaxAge: 30 * 24 * time.Hour},
		Gemini: config.Gemini{
			QuickTimeout: 30 * time.Second,
			DeepTimeout:  15 * time.Minute,
		},
		Slack: config.SlackConfig{Timeout: 10 * time.Second},
	}
}

func testLogger() *logger.Logger {
	log, _ := logger.New("error", "console")
	return log
}

// fakeReportRepo is an in-memory ScheduledReportRepository with the
// same claim semantics as the SQL implementation.
type fakeReportRepo struct {
	mu      sync.Mutex
	reports map[string]*model.ScheduledReport
}

func newFakeReportRepo(reports ...*model.ScheduledReport) *fakeReportRepo {
	repo := &fakeReportRepo{reports: make(map[string]*model.ScheduledReport)}
	for _, report := range reports {
		copied := *report
		repo.reports[report.ID] = &copied
	}
	return repo
}

func (f *fakeReportRepo) get(id string) *model.ScheduledReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if report, ok := f.reports[id]; ok {
		copied := *report
		return &copied
	}
	return nil
}

func (f *fakeReportRepo) Create(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *report
	f.reports[report.ID] = &copied
	return nil
}

// Update mirrors the SQL repository: scheduling columns are owned by
// the checker and completion paths and never written here.
func (f *fakeReportRepo) Update(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.reports[report.ID]
	if !ok {
		return dto.ErrReportNotFound
	}
	copied := *report
	copied.RunningToken = existing.RunningToken
	copied.LastRun = existing.LastRun
	copied.NextRun = existing.NextRun
	f.reports[report.ID] = &copied
	return nil
}

func (f *fakeReportRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reports, id)
	return nil
}

func (f *fakeReportRepo) FindByID(ctx context.Context, id string) (*model.ScheduledReport, error) {
	if report := f.get(id); report != nil {
		return report, nil
	}
	return nil, dto.ErrReportNotFound
}

func (f *fakeReportRepo) Get(ctx context.Context, param *model.GetScheduledReportParam, opts ...utils.DBOption) ([]model.ScheduledReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ScheduledReport
	for _, report := range f.reports {
		if param.OwnerID != nil && report.OwnerID != *param.OwnerID {
			continue
		}
		if param.Enabled != nil && report.Enabled != *param.Enabled {
			continue
		}
		out = append(out, *report)
	}
	return out, nil
}

func (f *fakeReportRepo) FindDue(ctx context.Context, now time.Time) ([]model.ScheduledReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []model.ScheduledReport
	for _, report := range f.reports {
		if report.Enabled && report.NextRun.Valid && !report.NextRun.Time.After(now) && !report.RunningToken.Valid {
			due = append(due, *report)
		}
	}
	return due, nil
}

func (f *fakeReportRepo) Claim(ctx context.Context, reportID, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.reports[reportID]
	if !ok || !report.Enabled || report.RunningToken.Valid {
		return false, nil
	}
	report.RunningToken.String = token
	report.RunningToken.Valid = true
	return true, nil
}

func (f *fakeReportRepo) ReleaseClaim(ctx context.Context, reportID, token string, lastRun, nextRun time.Time, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.reports[reportID]
	if !ok || !report.RunningToken.Valid || report.RunningToken.String != token {
		return nil
	}
	report.RunningToken.Valid = false
	report.RunningToken.String = ""
	report.LastRun.Time = lastRun
	report.LastRun.Valid = true
	report.NextRun.Time = nextRun
	report.NextRun.Valid = true
	return nil
}

func (f *fakeReportRepo) ClearClaim(ctx context.Context, reportID, token string, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if report, ok := f.reports[reportID]; ok && report.RunningToken.Valid && report.RunningToken.String == token {
		report.RunningToken.Valid = false
		report.RunningToken.String = ""
	}
	return nil
}

func (f *fakeReportRepo) SetNextRun(ctx context.Context, id string, nextRun time.Time, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.reports[id]
	if !ok {
		return dto.ErrReportNotFound
	}
	report.NextRun = sql.NullTime{Time: nextRun, Valid: true}
	return nil
}

func (f *fakeReportRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	report, ok := f.reports[id]
	if !ok {
		return dto.ErrReportNotFound
	}
	report.Enabled = enabled
	return nil
}

func (f *fakeReportRepo) CountEnabled(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, report := range f.reports {
		if report.Enabled {
			count++
		}
	}
	return count, nil
}

// fakeExecutionRepo mirrors the terminal-guard semantics of the SQL
// execution tracker.
type fakeExecutionRepo struct {
	mu         sync.Mutex
	executions map[string]*model.ReportExecution
	sequence   int
}

func newFakeExecutionRepo() *fakeExecutionRepo {
	return &fakeExecutionRepo{executions: make(map[string]*model.ReportExecution)}
}

func (f *fakeExecutionRepo) get(id string) *model.ReportExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	if execution, ok := f.executions[id]; ok {
		copied := *execution
		return &copied
	}
	return nil
}

func (f *fakeExecutionRepo) all() []model.ReportExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ReportExecution, 0, len(f.executions))
	for _, execution := range f.executions {
		out = append(out, *execution)
	}
	return out
}

func (f *fakeExecutionRepo) Start(ctx context.Context, reportID string, startedAt time.Time, opts ...utils.DBOption) (*model.ReportExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	execution := &model.ReportExecution{
		ID:        "exec-" + itoa(f.sequence),
		ReportID:  reportID,
		Status:    model.StatusRunning,
		StartedAt: startedAt,
	}
	f.executions[execution.ID] = execution
	copied := *execution
	return &copied, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (f *fakeExecutionRepo) Complete(ctx context.Context, executionID string, result datatypes.JSON, receipt string, completedAt time.Time, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionID]
	if !ok || execution.Status.IsTerminal() {
		return nil
	}
	execution.Status = model.StatusCompleted
	execution.CompletedAt.Time = completedAt
	execution.CompletedAt.Valid = true
	execution.ResultSummary = result
	if receipt != "" {
		execution.DeliveryReceipt.String = receipt
		execution.DeliveryReceipt.Valid = true
	}
	return nil
}

func (f *fakeExecutionRepo) Fail(ctx context.Context, executionID, errorMessage string, completedAt time.Time, opts ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[executionID]
	if !ok || execution.Status.IsTerminal() {
		return nil
	}
	execution.Status = model.StatusFailed
	execution.CompletedAt.Time = completedAt
	execution.CompletedAt.Valid = true
	execution.ErrorMessage.String = errorMessage
	execution.ErrorMessage.Valid = true
	return nil
}

func (f *fakeExecutionRepo) ListByReport(ctx context.Context, reportID string, limit int) ([]model.ReportExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReportExecution
	for _, execution := range f.executions {
		if execution.ReportID == reportID {
			out = append(out, *execution)
		}
	}
	return out, nil
}

func (f *fakeExecutionRepo) FindStaleRunning(ctx context.Context, startedBefore time.Time) ([]model.ReportExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReportExecution
	for _, execution := range f.executions {
		if !execution.Status.IsTerminal() && execution.StartedAt.Before(startedBefore) {
			out = append(out, *execution)
		}
	}
	return out, nil
}

func (f *fakeExecutionRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for id, execution := range f.executions {
		if execution.StartedAt.Before(cutoff) {
			delete(f.executions, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeExecutionRepo) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, execution := range f.executions {
		if !execution.StartedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeWorkspaceRepo struct {
	mu          sync.Mutex
	credentials map[string]*model.WorkspaceCredential
}

func newFakeWorkspaceRepo(credentials ...*model.WorkspaceCredential) *fakeWorkspaceRepo {
	repo := &fakeWorkspaceRepo{credentials: make(map[string]*model.WorkspaceCredential)}
	for _, credential := range credentials {
		copied := *credential
		repo.credentials[credential.ID] = &copied
	}
	return repo
}

// Upsert mirrors the SQL conflict semantics: a row with the same
// external_team_id keeps its original id.
func (f *fakeWorkspaceRepo) Upsert(ctx context.Context, credential *model.WorkspaceCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.credentials {
		if existing.ExternalTeamID == credential.ExternalTeamID {
			credential.ID = existing.ID
			break
		}
	}
	copied := *credential
	f.credentials[credential.ID] = &copied
	return nil
}

func (f *fakeWorkspaceRepo) FindByID(ctx context.Context, id string) (*model.WorkspaceCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if credential, ok := f.credentials[id]; ok {
		copied := *credential
		return &copied, nil
	}
	return nil, dto.ErrWorkspaceNotFound
}

func (f *fakeWorkspaceRepo) ListActive(ctx context.Context) ([]model.WorkspaceCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WorkspaceCredential
	for _, credential := range f.credentials {
		if credential.IsActive {
			out = append(out, *credential)
		}
	}
	return out, nil
}

func (f *fakeWorkspaceRepo) ListByTenant(ctx context.Context, tenantID string) ([]model.WorkspaceCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WorkspaceCredential
	for _, credential := range f.credentials {
		if credential.TenantID == tenantID {
			out = append(out, *credential)
		}
	}
	return out, nil
}

func (f *fakeWorkspaceRepo) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	credential, ok := f.credentials[id]
	if !ok {
		return dto.ErrWorkspaceNotFound
	}
	credential.IsActive = false
	return nil
}

// fakeGenerationRepo returns canned output or an error. With block set
// it hangs until its context expires; with a gate set it waits for the
// gate to close, letting tests hold workers mid-generation.
type fakeGenerationRepo struct {
	mu       sync.Mutex
	output   string
	err      error
	block    bool
	gate     chan struct{}
	requests []dto.GenerationRequest
}

func (f *fakeGenerationRepo) Generate(ctx context.Context, req dto.GenerationRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	output, err, block, gate := f.output, f.err, f.block, f.gate
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return output, nil
}

// fakeUnitOfWork runs the function directly. The fakes have no
// transactions, so the options pass through untouched.
type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Run(fn func(opts ...utils.DBOption) error) error {
	return fn()
}

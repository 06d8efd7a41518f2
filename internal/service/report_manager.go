package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/internal/repository"
	"insight-reports/internal/schedule"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/messenger"

	"github.com/google/uuid"
)

// ReportManagerService carries the management surface: report CRUD,
// enable/disable, execution history, workspace registration and the
// health summary.
type ReportManagerService interface {
	Create(ctx context.Context, req *dto.CreateReportRequest) (*dto.ReportResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateReportRequest) (*dto.ReportResponse, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*dto.ReportResponse, error)
	List(ctx context.Context, ownerID string) ([]dto.ReportResponse, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*dto.ReportResponse, error)
	ListExecutions(ctx context.Context, reportID string, limit int) ([]dto.ExecutionResponse, error)
	UpsertWorkspace(ctx context.Context, req *dto.UpsertWorkspaceRequest) (*model.WorkspaceCredential, error)
	ListWorkspaces(ctx context.Context, tenantID string) ([]model.WorkspaceCredential, error)
	DeactivateWorkspace(ctx context.Context, id string) error
	Health(ctx context.Context) (*dto.HealthSummary, error)
}

type reportManagerService struct {
	cfg           *config.Config
	log           *logger.Logger
	reportRepo    repository.ScheduledReportRepository
	executionRepo repository.ReportExecutionRepository
	workspaceRepo repository.WorkspaceRepository
	now           func() time.Time
	// verifyCredential checks a delivery secret against its platform
	// before it is stored.
	verifyCredential func(ctx context.Context, platform, secret string) error
}

func NewReportManagerService(
	cfg *config.Config,
	log *logger.Logger,
	reportRepo repository.ScheduledReportRepository,
	executionRepo repository.ReportExecutionRepository,
	workspaceRepo repository.WorkspaceRepository,
	now func() time.Time,
) ReportManagerService {
	return &reportManagerService{
		cfg:           cfg,
		log:           log,
		reportRepo:    reportRepo,
		executionRepo: executionRepo,
		workspaceRepo: workspaceRepo,
		now:           now,
		verifyCredential: func(ctx context.Context, platform, secret string) error {
			sender, err := messenger.New(platform, secret, cfg.Slack.Timeout)
			if err != nil {
				return err
			}
			return sender.Ping(ctx)
		},
	}
}

func (s *reportManagerService) Create(ctx context.Context, req *dto.CreateReportRequest) (*dto.ReportResponse, error) {
	spec := specFromDTO(req.Schedule)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := validateDelivery(req.Delivery); err != nil {
		return nil, err
	}

	next, err := schedule.NextRun(spec, s.now())
	if err != nil {
		return nil, err
	}

	report := &model.ScheduledReport{
		ID:              uuid.NewString(),
		OwnerID:         req.OwnerID,
		Name:            req.Name,
		Description:     req.Description,
		Query:           req.Query,
		Frequency:       model.ReportFrequency(req.Schedule.Frequency),
		TimeOfDay:       req.Schedule.TimeOfDay,
		Timezone:        req.Schedule.Timezone,
		DeliveryKind:    model.DeliveryKind(req.Delivery.Kind),
		DeliveryAddress: req.Delivery.Address,
		WorkspaceID:     req.Delivery.WorkspaceID,
		Enabled:         true,
		Deep:            req.Deep,
		NextRun:         sql.NullTime{Time: next, Valid: true},
	}
	switch report.Frequency {
	case model.FrequencyWeekly:
		report.DayOfWeek = sql.NullInt32{Int32: int32(spec.DayOfWeek), Valid: true}
	case model.FrequencyMonthly:
		report.DayOfMonth = sql.NullInt32{Int32: int32(spec.DayOfMonth), Valid: true}
	}

	if err := s.reportRepo.Create(ctx, report); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Report created",
		logger.StringField("report_id", report.ID),
		logger.StringField("owner_id", report.OwnerID),
		logger.StringField("next_run", next.Format(time.RFC3339)),
	)
	return toReportResponse(report), nil
}

func (s *reportManagerService) Update(ctx context.Context, id string, req *dto.UpdateReportRequest) (*dto.ReportResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		report.Name = *req.Name
	}
	if req.Description != nil {
		report.Description = *req.Description
	}
	if req.Query != nil {
		report.Query = *req.Query
	}
	if req.Deep != nil {
		report.Deep = *req.Deep
	}
	if req.Delivery != nil {
		if err := validateDelivery(*req.Delivery); err != nil {
			return nil, err
		}
		report.DeliveryKind = model.DeliveryKind(req.Delivery.Kind)
		report.DeliveryAddress = req.Delivery.Address
		report.WorkspaceID = req.Delivery.WorkspaceID
	}
	scheduleChanged := req.Schedule != nil
	if scheduleChanged {
		spec := specFromDTO(*req.Schedule)
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		report.Frequency = model.ReportFrequency(req.Schedule.Frequency)
		report.TimeOfDay = req.Schedule.TimeOfDay
		report.Timezone = req.Schedule.Timezone
		report.DayOfWeek = sql.NullInt32{}
		report.DayOfMonth = sql.NullInt32{}
		switch report.Frequency {
		case model.FrequencyWeekly:
			report.DayOfWeek = sql.NullInt32{Int32: int32(spec.DayOfWeek), Valid: true}
		case model.FrequencyMonthly:
			report.DayOfMonth = sql.NullInt32{Int32: int32(spec.DayOfMonth), Valid: true}
		}

		// Schedule changes take effect immediately.
		next, err := schedule.NextRun(spec, s.now())
		if err != nil {
			return nil, err
		}
		report.NextRun = sql.NullTime{Time: next, Valid: true}
	}

	// next_run is written through its own path so an unrelated patch
	// never moves the schedule from a stale read.
	if err := s.reportRepo.Update(ctx, report); err != nil {
		return nil, err
	}
	if scheduleChanged {
		if err := s.reportRepo.SetNextRun(ctx, report.ID, report.NextRun.Time); err != nil {
			return nil, err
		}
	}
	return toReportResponse(report), nil
}

func (s *reportManagerService) Delete(ctx context.Context, id string) error {
	if _, err := s.reportRepo.FindByID(ctx, id); err != nil {
		return err
	}
	return s.reportRepo.Delete(ctx, id)
}

func (s *reportManagerService) GetByID(ctx context.Context, id string) (*dto.ReportResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toReportResponse(report), nil
}

func (s *reportManagerService) List(ctx context.Context, ownerID string) ([]dto.ReportResponse, error) {
	param := &model.GetScheduledReportParam{}
	if ownerID != "" {
		param.OwnerID = &ownerID
	}
	reports, err := s.reportRepo.Get(ctx, param)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ReportResponse, 0, len(reports))
	for i := range reports {
		responses = append(responses, *toReportResponse(&reports[i]))
	}
	return responses, nil
}

// SetEnabled flips the flag. Re-enabling recomputes next_run from now
// so a report disabled for a month doesn't fire a stale backlog.
func (s *reportManagerService) SetEnabled(ctx context.Context, id string, enabled bool) (*dto.ReportResponse, error) {
	report, err := s.reportRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	report.Enabled = enabled
	if enabled {
		next, err := schedule.NextRun(schedule.FromReport(report), s.now())
		if err != nil {
			return nil, err
		}
		report.NextRun = sql.NullTime{Time: next, Valid: true}
		// Move the schedule before flipping the flag so a tick firing
		// in between never claims against the stale next_run.
		if err := s.reportRepo.SetNextRun(ctx, id, next); err != nil {
			return nil, err
		}
	}
	if err := s.reportRepo.SetEnabled(ctx, id, enabled); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Report enabled state changed",
		logger.StringField("report_id", id),
		logger.Field("enabled", enabled),
	)
	return toReportResponse(report), nil
}

func (s *reportManagerService) ListExecutions(ctx context.Context, reportID string, limit int) ([]dto.ExecutionResponse, error) {
	if _, err := s.reportRepo.FindByID(ctx, reportID); err != nil {
		return nil, err
	}
	executions, err := s.executionRepo.ListByReport(ctx, reportID, limit)
	if err != nil {
		return nil, err
	}
	responses := make([]dto.ExecutionResponse, 0, len(executions))
	for i := range executions {
		responses = append(responses, *toExecutionResponse(&executions[i]))
	}
	return responses, nil
}

func (s *reportManagerService) UpsertWorkspace(ctx context.Context, req *dto.UpsertWorkspaceRequest) (*model.WorkspaceCredential, error) {
	if err := s.verifyCredential(ctx, req.Platform, req.AccessSecret); err != nil {
		return nil, &dto.ValidationError{Field: "access_secret", Detail: err.Error()}
	}
	credential := &model.WorkspaceCredential{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		ExternalTeamID: req.ExternalTeamID,
		TeamName:       req.TeamName,
		Platform:       req.Platform,
		AccessSecret:   req.AccessSecret,
		IsActive:       true,
	}
	if err := s.workspaceRepo.Upsert(ctx, credential); err != nil {
		return nil, err
	}
	return credential, nil
}

func (s *reportManagerService) ListWorkspaces(ctx context.Context, tenantID string) ([]model.WorkspaceCredential, error) {
	if tenantID != "" {
		return s.workspaceRepo.ListByTenant(ctx, tenantID)
	}
	return s.workspaceRepo.ListActive(ctx)
}

func (s *reportManagerService) DeactivateWorkspace(ctx context.Context, id string) error {
	return s.workspaceRepo.Deactivate(ctx, id)
}

func (s *reportManagerService) Health(ctx context.Context) (*dto.HealthSummary, error) {
	now := s.now()
	active, err := s.reportRepo.CountEnabled(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.executionRepo.CountStartedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	return &dto.HealthSummary{
		Status:              "ok",
		ActiveReports:       active,
		RecentExecutions24h: recent,
		Timestamp:           now,
	}, nil
}

func specFromDTO(in dto.ScheduleSpec) schedule.Spec {
	spec := schedule.Spec{
		Frequency: model.ReportFrequency(in.Frequency),
		TimeOfDay: in.TimeOfDay,
		Timezone:  in.Timezone,
	}
	if in.DayOfWeek != nil {
		spec.DayOfWeek = *in.DayOfWeek
	}
	if in.DayOfMonth != nil {
		spec.DayOfMonth = *in.DayOfMonth
	}

	// Weekly without an explicit day runs on Sunday (the zero value);
	// monthly defaults to the 1st because Validate rejects day 0.
	if spec.Frequency == model.FrequencyMonthly && in.DayOfMonth == nil {
		spec.DayOfMonth = 1
	}
	return spec
}

func validateDelivery(target dto.DeliveryTarget) error {
	kind := model.DeliveryKind(target.Kind)
	switch kind {
	case model.DeliveryNone:
		return nil
	case model.DeliveryChannel, model.DeliveryDirectMessage:
		if target.Address == "" {
			return &dto.ValidationError{Field: "delivery.address", Detail: "required for channel and direct_message delivery"}
		}
		if target.WorkspaceID == "" {
			return &dto.ValidationError{Field: "delivery.workspace_id", Detail: "required for channel and direct_message delivery"}
		}
		return nil
	default:
		return &dto.ValidationError{Field: "delivery.kind", Detail: "must be channel, direct_message or none"}
	}
}

func toReportResponse(report *model.ScheduledReport) *dto.ReportResponse {
	resp := &dto.ReportResponse{
		ID:          report.ID,
		OwnerID:     report.OwnerID,
		Name:        report.Name,
		Description: report.Description,
		Query:       report.Query,
		Schedule: dto.ScheduleSpec{
			Frequency: string(report.Frequency),
			TimeOfDay: report.TimeOfDay,
			Timezone:  report.Timezone,
		},
		Delivery: dto.DeliveryTarget{
			Kind:        string(report.DeliveryKind),
			Address:     report.DeliveryAddress,
			WorkspaceID: report.WorkspaceID,
		},
		Enabled:   report.Enabled,
		Deep:      report.Deep,
		Running:   report.RunningToken.Valid,
		CreatedAt: report.CreatedAt,
	}
	if report.DayOfWeek.Valid {
		day := int(report.DayOfWeek.Int32)
		resp.Schedule.DayOfWeek = &day
	}
	if report.DayOfMonth.Valid {
		day := int(report.DayOfMonth.Int32)
		resp.Schedule.DayOfMonth = &day
	}
	if report.LastRun.Valid {
		resp.LastRun = &report.LastRun.Time
	}
	if report.NextRun.Valid {
		resp.NextRun = &report.NextRun.Time
	}
	return resp
}

func toExecutionResponse(execution *model.ReportExecution) *dto.ExecutionResponse {
	resp := &dto.ExecutionResponse{
		ID:        execution.ID,
		ReportID:  execution.ReportID,
		Status:    string(execution.Status),
		StartedAt: execution.StartedAt,
	}
	if execution.CompletedAt.Valid {
		resp.CompletedAt = &execution.CompletedAt.Time
	}
	if len(execution.ResultSummary) > 0 {
		var content dto.ReportContent
		if err := json.Unmarshal(execution.ResultSummary, &content); err == nil {
			resp.Result = &content
		}
	}
	if execution.ErrorMessage.Valid {
		resp.ErrorMessage = execution.ErrorMessage.String
	}
	if execution.DeliveryReceipt.Valid {
		resp.DeliveryReceipt = execution.DeliveryReceipt.String
	}
	return resp
}

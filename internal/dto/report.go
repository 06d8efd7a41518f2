package dto

import "time"

type ScheduleSpec struct {
	Frequency  string `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	TimeOfDay  string `json:"time_of_day" validate:"required"`
	Timezone   string `json:"timezone" validate:"required"`
	DayOfWeek  *int   `json:"day_of_week,omitempty"`
	DayOfMonth *int   `json:"day_of_month,omitempty"`
}

type DeliveryTarget struct {
	Kind        string `json:"kind" validate:"required,oneof=channel direct_message none"`
	Address     string `json:"address"`
	WorkspaceID string `json:"workspace_id"`
}

type CreateReportRequest struct {
	OwnerID     string         `json:"owner_id" validate:"required"`
	Name        string         `json:"name" validate:"required,max=255"`
	Description string         `json:"description"`
	Query       string         `json:"query" validate:"required"`
	Schedule    ScheduleSpec   `json:"schedule" validate:"required"`
	Delivery    DeliveryTarget `json:"delivery" validate:"required"`
	Deep        bool           `json:"deep"`
}

type UpdateReportRequest struct {
	Name        *string         `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string         `json:"description,omitempty"`
	Query       *string         `json:"query,omitempty"`
	Schedule    *ScheduleSpec   `json:"schedule,omitempty"`
	Delivery    *DeliveryTarget `json:"delivery,omitempty"`
	Deep        *bool           `json:"deep,omitempty"`
}

type ReportResponse struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Query       string         `json:"query"`
	Schedule    ScheduleSpec   `json:"schedule"`
	Delivery    DeliveryTarget `json:"delivery"`
	Enabled     bool           `json:"enabled"`
	Deep        bool           `json:"deep"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
	NextRun     *time.Time     `json:"next_run,omitempty"`
	Running     bool           `json:"running"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ExecutionResponse struct {
	ID              string         `json:"id"`
	ReportID        string         `json:"report_id"`
	Status          string         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Result          *ReportContent `json:"result,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	DeliveryReceipt string         `json:"delivery_receipt,omitempty"`
}

type UpsertWorkspaceRequest struct {
	TenantID       string `json:"tenant_id" validate:"required"`
	ExternalTeamID string `json:"external_team_id" validate:"required"`
	TeamName       string `json:"team_name"`
	Platform       string `json:"platform" validate:"required,oneof=slack telegram"`
	AccessSecret   string `json:"access_secret" validate:"required"`
}

type HealthSummary struct {
	Status              string    `json:"status"`
	ActiveReports       int64     `json:"active_reports"`
	RecentExecutions24h int64     `json:"recent_executions_24h"`
	Timestamp           time.Time `json:"timestamp"`
}

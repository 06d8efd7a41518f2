package model

import (
	"database/sql"
	"time"
)

type ReportFrequency string

const (
	FrequencyDaily   ReportFrequency = "daily"
	FrequencyWeekly  ReportFrequency = "weekly"
	FrequencyMonthly ReportFrequency = "monthly"
)

type DeliveryKind string

const (
	DeliveryChannel       DeliveryKind = "channel"
	DeliveryDirectMessage DeliveryKind = "direct_message"
	DeliveryNone          DeliveryKind = "none"
)

type ScheduledReport struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	OwnerID     string `gorm:"type:varchar(64);not null;index"`
	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text"`
	Query       string `gorm:"type:text;not null"`

	Frequency  ReportFrequency `gorm:"type:varchar(16);not null"`
	TimeOfDay  string          `gorm:"type:varchar(5);not null"` // "HH:MM"
	Timezone   string          `gorm:"type:varchar(64);not null"`
	DayOfWeek  sql.NullInt32   // weekly only, 0=Sunday
	DayOfMonth sql.NullInt32   // monthly only, 1..31

	DeliveryKind    DeliveryKind `gorm:"type:varchar(16);not null;default:none"`
	DeliveryAddress string       `gorm:"type:varchar(255)"`
	WorkspaceID     string       `gorm:"type:varchar(64)"`

	Enabled      bool `gorm:"not null;default:true"`
	Deep         bool `gorm:"not null;default:false"` // deep analysis mode
	LastRun      sql.NullTime
	NextRun      sql.NullTime   `gorm:"index"`
	RunningToken sql.NullString `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Executions []ReportExecution `gorm:"foreignKey:ReportID"`
}

func (ScheduledReport) TableName() string {
	return "scheduled_reports"
}

type GetScheduledReportParam struct {
	IDs            []string `json:"ids"`
	OwnerID        *string  `json:"owner_id"`
	Enabled        *bool    `json:"enabled"`
	Limit          *int     `json:"limit"`
	WithExecutions *GetReportExecutionParam `json:"with_executions"`
}

type GetReportExecutionParam struct {
	Limit *int `json:"limit"`
}

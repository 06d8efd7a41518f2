package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ReportExecution struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	ReportID string `gorm:"type:uuid;not null;index"`

	Status      ExecutionStatus `gorm:"type:varchar(16);not null"`
	StartedAt   time.Time       `gorm:"not null"`
	CompletedAt sql.NullTime

	ResultSummary   datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage    sql.NullString `gorm:"type:text"`
	DeliveryReceipt sql.NullString `gorm:"type:text"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ReportExecution) TableName() string {
	return "report_executions"
}

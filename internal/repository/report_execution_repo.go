package repository

import (
	"context"
	"database/sql"
	"time"

	"insight-reports/internal/model"
	"insight-reports/pkg/utils"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReportExecutionRepository is the execution tracker: an append-only
// writer with point and range readers. Terminal writes are idempotent.
type ReportExecutionRepository interface {
	Start(ctx context.Context, reportID string, startedAt time.Time, opts ...utils.DBOption) (*model.ReportExecution, error)
	Complete(ctx context.Context, executionID string, result datatypes.JSON, receipt string, completedAt time.Time, opts ...utils.DBOption) error
	Fail(ctx context.Context, executionID, errorMessage string, completedAt time.Time, opts ...utils.DBOption) error
	ListByReport(ctx context.Context, reportID string, limit int) ([]model.ReportExecution, error)
	FindStaleRunning(ctx context.Context, startedBefore time.Time) ([]model.ReportExecution, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountStartedSince(ctx context.Context, since time.Time) (int64, error)
}

type reportExecutionRepository struct {
	db *gorm.DB
}

func NewReportExecutionRepository(db *gorm.DB) ReportExecutionRepository {
	return &reportExecutionRepository{db: db}
}

// Start records a fresh execution. Creation and the pending→running
// flip are collapsed into one write; the row is born running.
func (r *reportExecutionRepository) Start(ctx context.Context, reportID string, startedAt time.Time, opts ...utils.DBOption) (*model.ReportExecution, error) {
	execution := &model.ReportExecution{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		Status:    model.StatusRunning,
		StartedAt: startedAt,
	}
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(execution).Error; err != nil {
		return nil, err
	}
	return execution, nil
}

// Complete finalizes an execution. Calling it on an already-terminal
// row is a no-op, which guards against duplicate completion signals.
func (r *reportExecutionRepository) Complete(ctx context.Context, executionID string, result datatypes.JSON, receipt string, completedAt time.Time, opts ...utils.DBOption) error {
	updates := map[string]interface{}{
		"status":         model.StatusCompleted,
		"completed_at":   sql.NullTime{Time: completedAt, Valid: true},
		"result_summary": result,
	}
	if receipt != "" {
		updates["delivery_receipt"] = sql.NullString{String: receipt, Valid: true}
	}
	return r.finalize(ctx, executionID, updates, opts...)
}

// Fail is terminal and idempotent like Complete.
func (r *reportExecutionRepository) Fail(ctx context.Context, executionID, errorMessage string, completedAt time.Time, opts ...utils.DBOption) error {
	return r.finalize(ctx, executionID, map[string]interface{}{
		"status":        model.StatusFailed,
		"completed_at":  sql.NullTime{Time: completedAt, Valid: true},
		"error_message": sql.NullString{String: errorMessage, Valid: true},
	}, opts...)
}

func (r *reportExecutionRepository) finalize(ctx context.Context, executionID string, updates map[string]interface{}, opts ...utils.DBOption) error {
	// The status guard makes terminal transitions first-writer-wins.
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ReportExecution{}).
		Where("id = ? AND status NOT IN ?", executionID, []model.ExecutionStatus{model.StatusCompleted, model.StatusFailed}).
		Updates(updates).Error
}

func (r *reportExecutionRepository) ListByReport(ctx context.Context, reportID string, limit int) ([]model.ReportExecution, error) {
	var executions []model.ReportExecution
	db := r.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("started_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *reportExecutionRepository) FindStaleRunning(ctx context.Context, startedBefore time.Time) ([]model.ReportExecution, error) {
	var executions []model.ReportExecution
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?", []model.ExecutionStatus{model.StatusPending, model.StatusRunning}, startedBefore).
		Find(&executions).Error
	if err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *reportExecutionRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&model.ReportExecution{})
	return result.RowsAffected, result.Error
}

func (r *reportExecutionRepository) CountStartedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ReportExecution{}).
		Where("started_at >= ?", since).
		Count(&count).Error
	return count, err
}

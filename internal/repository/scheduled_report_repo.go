package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/pkg/utils"

	"gorm.io/gorm"
)

type ScheduledReportRepository interface {
	Create(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error
	Update(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.ScheduledReport, error)
	Get(ctx context.Context, param *model.GetScheduledReportParam, opts ...utils.DBOption) ([]model.ScheduledReport, error)
	FindDue(ctx context.Context, now time.Time) ([]model.ScheduledReport, error)
	Claim(ctx context.Context, reportID, token string) (bool, error)
	ReleaseClaim(ctx context.Context, reportID, token string, lastRun, nextRun time.Time, opts ...utils.DBOption) error
	ClearClaim(ctx context.Context, reportID, token string, opts ...utils.DBOption) error
	SetNextRun(ctx context.Context, id string, nextRun time.Time, opts ...utils.DBOption) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	CountEnabled(ctx context.Context) (int64, error)
}

type scheduledReportRepository struct {
	db *gorm.DB
}

func NewScheduledReportRepository(db *gorm.DB) ScheduledReportRepository {
	return &scheduledReportRepository{db: db}
}

func (r *scheduledReportRepository) Create(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(report).Error
}

// Update writes the management-owned columns only. The scheduling
// columns (running_token, last_run, next_run) belong to the checker and
// the completion handler; writing them from a row read earlier in the
// request would clobber a claim taken in between.
func (r *scheduledReportRepository) Update(ctx context.Context, report *model.ScheduledReport, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledReport{}).
		Where("id = ?", report.ID).
		Select("*").
		Omit("id", "created_at", "running_token", "last_run", "next_run").
		Updates(report).Error
}

func (r *scheduledReportRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ScheduledReport{}).Error
}

func (r *scheduledReportRepository) FindByID(ctx context.Context, id string) (*model.ScheduledReport, error) {
	var report model.ScheduledReport
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dto.ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (r *scheduledReportRepository) Get(ctx context.Context, param *model.GetScheduledReportParam, opts ...utils.DBOption) ([]model.ScheduledReport, error) {
	var reports []model.ScheduledReport
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.ScheduledReport{})

	if len(param.IDs) > 0 {
		db = db.Where("id IN ?", param.IDs)
	}
	if param.OwnerID != nil {
		db = db.Where("owner_id = ?", *param.OwnerID)
	}
	if param.Enabled != nil {
		db = db.Where("enabled = ?", *param.Enabled)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if param.WithExecutions != nil {
		db = db.Preload("Executions", func(db *gorm.DB) *gorm.DB {
			db = db.Order("started_at DESC")
			if param.WithExecutions.Limit != nil {
				db = db.Limit(*param.WithExecutions.Limit)
			}
			return db
		})
	}

	if err := db.Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// FindDue returns enabled, unclaimed reports whose next_run has passed,
// oldest-due first with id breaking ties for deterministic claiming.
func (r *scheduledReportRepository) FindDue(ctx context.Context, now time.Time) ([]model.ScheduledReport, error) {
	var reports []model.ScheduledReport
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_run IS NOT NULL AND next_run <= ? AND running_token IS NULL", true, now).
		Order("next_run ASC, id ASC").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Claim atomically marks the report as running. The conditional update
// succeeds for exactly one of any number of concurrent claimants.
func (r *scheduledReportRepository) Claim(ctx context.Context, reportID, token string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ScheduledReport{}).
		Where("id = ? AND enabled = ? AND running_token IS NULL", reportID, true).
		Update("running_token", token)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseClaim clears the claim and advances the schedule in one
// statement. The token condition keeps a reaped-and-reclaimed report
// from being clobbered by the stale worker.
func (r *scheduledReportRepository) ReleaseClaim(ctx context.Context, reportID, token string, lastRun, nextRun time.Time, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledReport{}).
		Where("id = ? AND running_token = ?", reportID, token).
		Updates(map[string]interface{}{
			"running_token": nil,
			"last_run":      sql.NullTime{Time: lastRun, Valid: true},
			"next_run":      sql.NullTime{Time: nextRun, Valid: true},
		}).Error
}

// ClearClaim drops the claim when the token still matches, leaving
// next_run alone so the report becomes due again. The token condition
// keeps the reaper from wiping a claim that was released and retaken
// after the stale scan.
func (r *scheduledReportRepository) ClearClaim(ctx context.Context, reportID, token string, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledReport{}).
		Where("id = ? AND running_token = ?", reportID, token).
		Update("running_token", nil).Error
}

// SetNextRun is the management path for moving the schedule, used on
// schedule changes and re-enables.
func (r *scheduledReportRepository) SetNextRun(ctx context.Context, id string, nextRun time.Time, opts ...utils.DBOption) error {
	result := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduledReport{}).
		Where("id = ?", id).
		Update("next_run", sql.NullTime{Time: nextRun, Valid: true})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return dto.ErrReportNotFound
	}
	return nil
}

func (r *scheduledReportRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.ScheduledReport{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return dto.ErrReportNotFound
	}
	return nil
}

func (r *scheduledReportRepository) CountEnabled(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ScheduledReport{}).
		Where("enabled = ?", true).
		Count(&count).Error
	return count, err
}

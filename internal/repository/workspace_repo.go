package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/pkg/cache"
	"insight-reports/pkg/common"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceRepository is the workspace registry: tenant-scoped delivery
// credentials with an active flag. Lookups are cache-backed because the
// checker resolves the same few workspaces every tick.
type WorkspaceRepository interface {
	Upsert(ctx context.Context, credential *model.WorkspaceCredential) error
	FindByID(ctx context.Context, id string) (*model.WorkspaceCredential, error)
	ListActive(ctx context.Context) ([]model.WorkspaceCredential, error)
	ListByTenant(ctx context.Context, tenantID string) ([]model.WorkspaceCredential, error)
	Deactivate(ctx context.Context, id string) error
}

type workspaceRepository struct {
	db       *gorm.DB
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewWorkspaceRepository(db *gorm.DB, inmemoryCache cache.Cache, cacheTTL time.Duration) WorkspaceRepository {
	return &workspaceRepository{
		db:       db,
		cache:    inmemoryCache,
		cacheTTL: cacheTTL,
	}
}

func (r *workspaceRepository) cacheKey(id string) string {
	return fmt.Sprintf(common.KEY_WORKSPACE_CREDENTIAL, id)
}

// Upsert inserts or refreshes the credential keyed by external_team_id.
// On conflict the existing row keeps its id, so the persisted row is
// read back into the struct. Cache invalidation uses that id.
func (r *workspaceRepository) Upsert(ctx context.Context, credential *model.WorkspaceCredential) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_team_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tenant_id", "team_name", "platform", "access_secret", "is_active", "updated_at",
			}),
		}, clause.Returning{}).
		Create(credential).Error
	if err != nil {
		return err
	}
	r.cache.Delete(r.cacheKey(credential.ID))
	return nil
}

func (r *workspaceRepository) FindByID(ctx context.Context, id string) (*model.WorkspaceCredential, error) {
	if cached, found := r.cache.Get(r.cacheKey(id)); found {
		if credential, ok := cached.(*model.WorkspaceCredential); ok {
			return credential, nil
		}
	}

	var credential model.WorkspaceCredential
	if err := r.db.WithContext(ctx).First(&credential, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dto.ErrWorkspaceNotFound
		}
		return nil, err
	}

	r.cache.Set(r.cacheKey(id), &credential, r.cacheTTL)
	return &credential, nil
}

func (r *workspaceRepository) ListActive(ctx context.Context) ([]model.WorkspaceCredential, error) {
	var credentials []model.WorkspaceCredential
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&credentials).Error
	if err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *workspaceRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.WorkspaceCredential, error) {
	var credentials []model.WorkspaceCredential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&credentials).Error
	if err != nil {
		return nil, err
	}
	return credentials, nil
}

func (r *workspaceRepository) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.WorkspaceCredential{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return dto.ErrWorkspaceNotFound
	}
	r.cache.Delete(r.cacheKey(id))
	return nil
}

package repository

import (
	"insight-reports/config"
	"insight-reports/pkg/cache"
	"insight-reports/pkg/logger"

	"gorm.io/gorm"
)

type Repository struct {
	ScheduledReportRepo ScheduledReportRepository
	ReportExecutionRepo ReportExecutionRepository
	WorkspaceRepo       WorkspaceRepository
	GenerationRepo      GenerationRepository
	UnitOfWork          UnitOfWork
}

func NewRepository(cfg *config.Config, inmemoryCache cache.Cache, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	generationRepo, err := NewGeminiRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ScheduledReportRepo: NewScheduledReportRepository(db),
		ReportExecutionRepo: NewReportExecutionRepository(db),
		WorkspaceRepo:       NewWorkspaceRepository(db, inmemoryCache, cfg.Cache.DefaultExpiration),
		GenerationRepo:      generationRepo,
		UnitOfWork:          NewUnitOfWork(db),
	}, nil
}

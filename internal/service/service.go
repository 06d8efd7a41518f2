package service

import (
	"time"

	"insight-reports/config"
	"insight-reports/internal/repository"
	"insight-reports/pkg/logger"
)

type Service struct {
	SchedulerService     SchedulerService
	ReportManagerService ReportManagerService
	ReaperService        ReaperService
}

func NewService(cfg *config.Config, log *logger.Logger, repo *repository.Repository) *Service {
	now := time.Now

	generator := NewReportGenerationService(cfg, log, repo.GenerationRepo)
	delivery := NewDeliveryService(cfg, log, repo.WorkspaceRepo)
	runner := NewReportRunner(cfg, log, generator, delivery, repo.ScheduledReportRepo, repo.ReportExecutionRepo, repo.UnitOfWork, now)

	return &Service{
		SchedulerService:     NewSchedulerService(cfg, log, repo.ScheduledReportRepo, repo.ReportExecutionRepo, runner, generator, now),
		ReportManagerService: NewReportManagerService(cfg, log, repo.ScheduledReportRepo, repo.ReportExecutionRepo, repo.WorkspaceRepo, now),
		ReaperService:        NewReaperService(cfg, log, repo.ScheduledReportRepo, repo.ReportExecutionRepo, generator, repo.UnitOfWork, now),
	}
}

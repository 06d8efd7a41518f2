package cmd

import (
	"context"
	"fmt"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"insight-reports/internal/delivery/http"
	"insight-reports/internal/repository"
	"insight-reports/internal/service"
	"insight-reports/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the report scheduler and management API",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo, err := repository.NewRepository(appDep.cfg, appDep.cache, appDep.db.DB, appDep.log)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}

	services := service.NewService(appDep.cfg, appDep.log, repo)
	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.validator, services)

	scheduler, err := startBackgroundJobs(ctx, appDep, services)
	if err != nil {
		log.Fatalf("Failed to start background jobs: %v", err)
	}

	apiServer := NewHTTPServer(ctx, appDep, httpHandler)
	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down gracefully...")

	// Let in-flight jobs finish their current invocation.
	<-scheduler.Stop().Done()

	if err := apiServer.Stop(); err != nil {
		log.Fatalf("Failed to stop HTTP server: %v", err)
	}

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}

// startBackgroundJobs registers the checker tick, the stale-run reaper
// and the retention purge on one cron runner.
func startBackgroundJobs(ctx context.Context, appDep *AppDependency, services *service.Service) (*cron.Cron, error) {
	scheduler := cron.New()

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"checker", fmt.Sprintf("@every %s", appDep.cfg.Scheduler.TickInterval), services.SchedulerService.Execute},
		{"reaper", fmt.Sprintf("@every %s", appDep.cfg.Reaper.Interval), services.ReaperService.ReapStale},
		{"purge", fmt.Sprintf("@every %s", appDep.cfg.Retention.PurgeInterval), services.ReaperService.PurgeExpired},
	}

	for _, job := range jobs {
		job := job
		_, err := scheduler.AddFunc(job.schedule, func() {
			if err := job.run(ctx); err != nil {
				appDep.log.ErrorContext(ctx, "Background job failed",
					logger.StringField("job", job.name),
					logger.ErrorField(err),
				)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("register %s job: %w", job.name, err)
		}
	}

	scheduler.Start()
	appDep.log.Info("Background jobs started",
		logger.StringField("tick_interval", appDep.cfg.Scheduler.TickInterval.String()),
		logger.StringField("reaper_interval", appDep.cfg.Reaper.Interval.String()),
	)
	return scheduler, nil
}

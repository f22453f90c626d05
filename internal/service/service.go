// Package service wraps the importer in the two run modes of the CLI: a
// single one-shot migration, or watch mode, where the incremental import is
// re-run on a cron schedule until shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mattergrate/mattergrate/internal/importer"
)

// Service owns the lifecycle of migration runs for one channel job.
type Service struct {
	importer *importer.Importer
	job      importer.Job
	schedule string
	logger   *slog.Logger
}

// New creates a Service. schedule is a cron expression enabling watch mode;
// empty means a single one-shot run.
func New(imp *importer.Importer, job importer.Job, schedule string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		importer: imp,
		job:      job,
		schedule: schedule,
		logger:   logger.With("component", "service"),
	}
}

// Run executes the configured mode. In one-shot mode it performs exactly one
// migration run. In watch mode it runs once immediately, then re-runs on the
// schedule until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.schedule == "" {
		_, err := s.importer.Run(ctx, s.job)
		return err
	}
	return s.watch(ctx)
}

func (s *Service) watch(ctx context.Context) error {
	s.logger.Info("Starting watch mode", "schedule", s.schedule)

	// First pass right away; scheduled passes only pick up what this one
	// leaves behind.
	if _, err := s.importer.Run(ctx, s.job); err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(s.schedule, true),
		gocron.NewTask(
			func(taskCtx context.Context) {
				s.logger.Info("Running scheduled incremental import")
				startTime := time.Now()
				if _, runErr := s.importer.Run(taskCtx, s.job); runErr != nil {
					s.logger.Error("Scheduled import failed", "error", runErr)
				}
				s.logger.Info("Finished scheduled incremental import", "duration", time.Since(startTime))
			},
			ctx,
		),
		gocron.WithName("incremental-import"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule import job: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start()
		<-gCtx.Done()

		s.logger.Info("Shutdown signal received, stopping scheduler...")
		if shutdownErr := scheduler.Shutdown(); shutdownErr != nil {
			s.logger.Error("Error during scheduler shutdown", "error", shutdownErr)
			return shutdownErr
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s.logger.Info("Watch mode stopped gracefully.")
	return nil
}

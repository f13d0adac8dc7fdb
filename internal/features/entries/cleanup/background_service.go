package entries_cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"debuglens/internal/config"
	entries_core "debuglens/internal/features/entries/core"
)

const retentionCleanupInterval = 1 * time.Minute

// EntryPruner is the part of the entry store the worker needs.
type EntryPruner interface {
	Prune(ctx context.Context, before time.Time, keepExceptions bool) (int64, error)
}

type EntryCleanupBackgroundService struct {
	entryPruner    EntryPruner
	retention      time.Duration
	keepExceptions bool
	logger         *slog.Logger
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEntryCleanupBackgroundService(
	entryPruner EntryPruner,
	retention time.Duration,
	keepExceptions bool,
	logger *slog.Logger,
) *EntryCleanupBackgroundService {
	return &EntryCleanupBackgroundService{
		entryPruner:    entryPruner,
		retention:      retention,
		keepExceptions: keepExceptions,
		logger:         logger,
		now:            time.Now,
	}
}

// StartWorkers starts the retention worker. With no retention configured
// entries are kept forever and nothing is started.
func (s *EntryCleanupBackgroundService) StartWorkers() {
	if s.retention <= 0 {
		s.logger.Info("Entry retention is disabled, cleanup worker not started")
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.logger.Info("Starting entry cleanup background worker",
		slog.Duration("interval", retentionCleanupInterval),
		slog.Duration("retention", s.retention),
		slog.Bool("keepExceptions", s.keepExceptions))

	s.wg.Add(1)
	go s.retentionWorker()
}

func (s *EntryCleanupBackgroundService) StopWorkers() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	s.wg.Wait()
}

func (s *EntryCleanupBackgroundService) ExecuteAllTasksForTest() error {
	if err := s.enforceRetention(context.Background()); err != nil {
		s.logger.Error("Error during retention cleanup in test execution", slog.String("error", err.Error()))
		return err
	}

	return nil
}

func (s *EntryCleanupBackgroundService) retentionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(retentionCleanupInterval)
	defer ticker.Stop()

	for {
		if config.IsShouldShutdown() {
			s.logger.Info("Retention cleanup worker shutting down due to shutdown signal")
			return
		}

		select {
		case <-s.ctx.Done():
			s.logger.Info("Retention cleanup worker shutting down")
			return

		case <-ticker.C:
			if err := s.enforceRetention(s.ctx); err != nil {
				s.logger.Error("Error during retention cleanup", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *EntryCleanupBackgroundService) enforceRetention(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	cutoff := s.now().UTC().Add(-s.retention)

	deleted, err := s.entryPruner.Prune(ctx, cutoff, s.keepExceptions)
	if err != nil {
		return fmt.Errorf("failed to prune entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		s.logger.Info("Retention cleanup completed",
			slog.Time("cutoff", cutoff),
			slog.Int64("deletedEntries", deleted))
	}

	return nil
}

var _ EntryPruner = (*entries_core.EntryRepository)(nil)

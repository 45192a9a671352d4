package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"discord-insight-go/internal/cache"
	"discord-insight-go/internal/config"
	"discord-insight-go/internal/importer"
	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/report"
)

// Scheduler runs the periodic jobs: the import sweep over the export
// directory, the cache sweep, and the weekly report. Every job is
// idempotent, so a failed run is simply retried on the next tick.
type Scheduler struct {
	cron          *cron.Cron
	importEntryID cron.EntryID
	config        *config.Config
	importer      *importer.Importer
	cache         *cache.Cache
	reporter      *report.Reporter
	metrics       *metrics.Metrics
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	jobsAdded     bool
	isRunning     bool
	mu            sync.RWMutex
}

// New creates a new scheduler
func New(cfg *config.Config, imp *importer.Importer, c *cache.Cache, rep *report.Reporter, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		config:   cfg,
		importer: imp,
		cache:    c,
		reporter: rep,
		metrics:  m,
	}
}

// Start starts the scheduler. Safe to call again after Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if !s.jobsAdded {
		importSchedule := fmt.Sprintf("0 */%d * * * *", s.config.Scheduler.ImportIntervalMinutes)
		entryID, err := s.cron.AddFunc(importSchedule, s.runImport)
		if err != nil {
			return fmt.Errorf("failed to add import job: %w", err)
		}
		s.importEntryID = entryID

		sweepSchedule := fmt.Sprintf("0 */%d * * * *", s.config.Scheduler.SweepIntervalMinutes)
		if _, err := s.cron.AddFunc(sweepSchedule, s.runSweep); err != nil {
			return fmt.Errorf("failed to add sweep job: %w", err)
		}

		if s.config.Scheduler.ReportCron != "" {
			if _, err := s.cron.AddFunc(s.config.Scheduler.ReportCron, s.runReport); err != nil {
				return fmt.Errorf("failed to add report job: %w", err)
			}
		}
		s.jobsAdded = true
	}

	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started: import every %d min, sweep every %d min",
		s.config.Scheduler.ImportIntervalMinutes, s.config.Scheduler.SweepIntervalMinutes)
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()

	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunImportOnce runs the import sweep once (for manual triggering) and
// returns its stats.
func (s *Scheduler) RunImportOnce() (importer.Stats, error) {
	logrus.Info("Running import once")
	return s.importOnce()
}

// GetNextRun returns the time of the next scheduled import run
func (s *Scheduler) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	return s.cron.Entry(s.importEntryID).Next
}

// GetLastRun returns the time of the last import run
func (s *Scheduler) GetLastRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	return s.cron.Entry(s.importEntryID).Prev
}

// Wait waits for in-flight jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runImport() {
	s.wg.Add(1)
	defer s.wg.Done()

	if _, err := s.importOnce(); err != nil {
		logrus.Errorf("Import sweep failed: %v", err)
	}
}

func (s *Scheduler) importOnce() (importer.Stats, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.ImportRuns.Inc()
	}

	ctx := s.ctx
	if ctx == nil {
		// Manual run before the first Start.
		ctx = context.Background()
	}
	stats, err := s.importer.ImportPath(ctx, s.config.Importer.InputDir)
	if err != nil {
		return stats, err
	}

	if s.metrics != nil {
		s.metrics.ImportDuration.Observe(time.Since(start).Seconds())
	}
	logrus.Infof("Import sweep completed in %v", time.Since(start))
	return stats, nil
}

func (s *Scheduler) runSweep() {
	s.wg.Add(1)
	defer s.wg.Done()

	removed, err := s.cache.Sweep(s.ctx)
	if err != nil {
		logrus.Errorf("Cache sweep failed: %v", err)
		return
	}
	if removed > 0 {
		logrus.Infof("Cache sweep removed %d expired entries", removed)
	}
}

func (s *Scheduler) runReport() {
	s.wg.Add(1)
	defer s.wg.Done()

	path, err := s.reporter.WriteWeeklyReport(s.ctx)
	if err != nil {
		logrus.Errorf("Weekly report failed: %v", err)
		return
	}
	logrus.Infof("Weekly report written to %s", path)
}

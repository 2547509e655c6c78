package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"real-estate-catalog/internal/catalog"
	"real-estate-catalog/internal/cleanup"
	"real-estate-catalog/internal/config"
	"real-estate-catalog/internal/models"
	"real-estate-catalog/internal/snapshot"
)

// ErrAlreadyRunning is returned by RunNow while another run is in progress.
var ErrAlreadyRunning = errors.New("catalog refresh already running")

// Refresher publishes a fresh catalog. *catalog.View satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Catalog, error)
}

type SnapshotRecorder interface {
	RecordCatalog(ctx context.Context, cat *catalog.Catalog) (*snapshot.RecordResult, error)
}

type Indexer interface {
	IndexCatalog(ctx context.Context, cat *catalog.Catalog) (int, error)
}

type Cleaner interface {
	Run(ctx context.Context, cfg cleanup.CleanupConfig) (*cleanup.CleanupResult, error)
}

// StateStore persists refresh health.
type StateStore interface {
	LoadRefreshState() (*models.RefreshState, error)
	SaveRefreshState(state *models.RefreshState) error
}

// Deps are the collaborators of a scheduled run. Only Refresher is required.
type Deps struct {
	Refresher Refresher
	Snapshots SnapshotRecorder
	Indexer   Indexer
	Cleaner   Cleaner
	State     StateStore
}

// RunResult summarizes one refresh run
type RunResult struct {
	StartedAt     time.Time              `json:"started_at"`
	Duration      time.Duration          `json:"duration"`
	Properties    int                    `json:"properties"`
	ImageFailures int                    `json:"image_failures"`
	Snapshot      *snapshot.RecordResult `json:"snapshot,omitempty"`
	Indexed       int                    `json:"indexed"`
	Cleanup       *cleanup.CleanupResult `json:"cleanup,omitempty"`
	Errors        []string               `json:"errors,omitempty"`
}

// Scheduler refreshes the catalog on a cron schedule and feeds the result to
// the snapshot store, the search index and the retention cleanup.
type Scheduler struct {
	cron      *cron.Cron
	deps      Deps
	config    *config.Config
	logger    *slog.Logger
	now       func() time.Time
	runMu     sync.Mutex
	mu        sync.Mutex
	isRunning bool
	lastRun   *RunResult
}

// NewScheduler creates a new scheduler
func NewScheduler(deps Deps, cfg *config.Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		deps:   deps,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the refresh job and starts the cron runner
func (s *Scheduler) Start() error {
	if !s.config.Scheduler.Enabled {
		s.logger.Info("scheduler disabled in configuration")
		return nil
	}

	spec := cronSpec(s.config.Scheduler.CronSpec)
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("scheduled catalog refresh starting")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.RunNow(ctx); err != nil {
			s.logger.Error("scheduled catalog refresh failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Start()
	s.isRunning = true
	s.logger.Info("scheduler started", "cron", spec)
	return nil
}

// Stop stops the cron runner and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	running := s.isRunning
	s.isRunning = false
	s.mu.Unlock()

	if running {
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	}
}

// LastRun returns the result of the most recent run, or nil.
func (s *Scheduler) LastRun() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// RunNow refreshes the catalog and runs the follow-up steps. A failure in a
// follow-up step is logged and reported in the result without failing the run.
func (s *Scheduler) RunNow(ctx context.Context) (*RunResult, error) {
	if !s.runMu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.runMu.Unlock()

	result := &RunResult{StartedAt: s.now()}
	cat, err := s.deps.Refresher.Refresh(ctx)
	if err != nil {
		s.recordState(result.StartedAt, nil, err)
		return nil, fmt.Errorf("refresh catalog: %w", err)
	}
	result.Properties = len(cat.Properties)
	result.ImageFailures = len(cat.Failures)

	if s.deps.Snapshots != nil {
		res, err := s.deps.Snapshots.RecordCatalog(ctx, cat)
		if err != nil {
			s.logger.Error("snapshot step failed", "err", err)
			result.Errors = append(result.Errors, "snapshot: "+err.Error())
		}
		result.Snapshot = res
	}

	if s.deps.Indexer != nil {
		n, err := s.deps.Indexer.IndexCatalog(ctx, cat)
		if err != nil {
			s.logger.Error("search index step failed", "err", err)
			result.Errors = append(result.Errors, "search: "+err.Error())
		}
		result.Indexed = n
	}

	if s.deps.Cleaner != nil {
		res, err := s.deps.Cleaner.Run(ctx, cleanup.ConfigFromSettings(s.config.Snapshots))
		if err != nil {
			s.logger.Error("cleanup step failed", "err", err)
			result.Errors = append(result.Errors, "cleanup: "+err.Error())
		}
		result.Cleanup = res
	}

	result.Duration = s.now().Sub(result.StartedAt)
	s.recordState(result.StartedAt, cat, nil)

	s.mu.Lock()
	s.lastRun = result
	s.mu.Unlock()

	s.logger.Info("catalog refresh completed",
		"properties", result.Properties,
		"image_failures", result.ImageFailures,
		"indexed", result.Indexed,
		"step_errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func (s *Scheduler) recordState(at time.Time, cat *catalog.Catalog, runErr error) {
	if s.deps.State == nil {
		return
	}
	state, err := s.deps.State.LoadRefreshState()
	if err != nil {
		s.logger.Warn("failed to load refresh state", "err", err)
		return
	}
	if runErr != nil {
		state.RecordFailure(at, runErr)
	} else {
		state.RecordSuccess(at, len(cat.Properties), len(cat.Failures))
	}
	if err := s.deps.State.SaveRefreshState(state); err != nil {
		s.logger.Warn("failed to save refresh state", "err", err)
	}
}

// cronSpec accepts a cron expression or a daily "HH:MM" time.
// Example: "02:30" -> "30 2 * * *"
func cronSpec(value string) string {
	var hour, minute int
	var rest string
	if n, _ := fmt.Sscanf(value, "%d:%d%s", &hour, &minute, &rest); n == 2 &&
		hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}
	if value == "" {
		return "0 2 * * *"
	}
	return value
}

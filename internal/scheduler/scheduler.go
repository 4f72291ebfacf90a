// Package scheduler drives sync runs on a phased timer and serves manual triggers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"repo-leaderboard/internal/config"
	"repo-leaderboard/internal/enrich"
	custom_errors "repo-leaderboard/internal/errors"
	"repo-leaderboard/internal/model"
	"repo-leaderboard/internal/syncer"
)

// Mode selects which stages a run performs.
type Mode string

const (
	ModeRepos  Mode = "repos"
	ModeIssues Mode = "issues"
	ModeAll    Mode = "all"
)

// ParseMode validates a requested run mode. An empty mode means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeRepos, ModeIssues:
		return Mode(s), nil
	}
	return "", &custom_errors.ErrUnknownMode{Mode: s}
}

// Syncer is the sync surface the scheduler drives.
type Syncer interface {
	SyncRepos(ctx context.Context) (int, error)
	DiscoverTrending(ctx context.Context) (int, error)
	SyncIssues(ctx context.Context) (syncer.IssueSyncResult, error)
}

// Enricher runs the LLM passes after an issue sync.
type Enricher interface {
	Run(ctx context.Context) enrich.Report
}

// Store is the subset of the store gateway the scheduler needs.
type Store interface {
	GetOrCreateFirstDeployAt(ctx context.Context, now time.Time) (time.Time, error)
	GetSyncStatus(ctx context.Context, staleBefore time.Time) (model.SyncStatus, error)
	PruneStarHistory(ctx context.Context, before time.Time) (int64, error)
	InvalidateCache()
}

// SyncResult is reported for every requested run.
type SyncResult struct {
	Success    bool   `json:"success"`
	Count      int    `json:"count"`
	IssueCount int    `json:"issueCount"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	Mode       Mode   `json:"mode"`
	RunID      string `json:"runId,omitempty"`
}

// Status is the operator view of pending work and scheduler state.
type Status struct {
	model.SyncStatus
	SyncInProgress bool       `json:"syncInProgress"`
	Phase          Phase      `json:"phase,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
}

// Options configures timing and maintenance.
type Options struct {
	Schedule
	SyncOnStartup       bool
	StartupDelay        time.Duration
	IssueSyncCooldown   time.Duration
	HistoryRetention    time.Duration
	MaintenanceInterval time.Duration
}

// OptionsFromConfig copies the scheduler settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Schedule: Schedule{
			Phase1Duration: cfg.Phase1Duration,
			Phase1Interval: cfg.Phase1Interval,
			Phase2Interval: cfg.Phase2Interval,
		},
		SyncOnStartup:       cfg.SyncOnStartup,
		StartupDelay:        cfg.StartupDelay,
		IssueSyncCooldown:   cfg.IssueSyncCooldown,
		HistoryRetention:    cfg.HistoryRetention,
		MaintenanceInterval: cfg.MaintenanceInterval,
	}
}

// Scheduler runs at most one sync at a time, either on its timer or on demand.
type Scheduler struct {
	syncer   Syncer
	enricher Enricher
	store    Store
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	running   atomic.Bool
	startOnce sync.Once
	startErr  error

	mu              sync.Mutex
	firstDeploy     time.Time
	nextRun         time.Time
	lastMaintenance time.Time
}

// New creates a Scheduler. Start must be called to arm its timer.
func New(syn Syncer, enricher Enricher, store Store, logger *slog.Logger, opts Options) *Scheduler {
	return &Scheduler{
		syncer:   syn,
		enricher: enricher,
		store:    store,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Start loads the first deployment time and arms the timer in a background
// goroutine that stops with ctx. Only the first call has any effect.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		firstDeploy, err := s.store.GetOrCreateFirstDeployAt(ctx, s.now())
		if err != nil {
			s.startErr = fmt.Errorf("load first deploy time: %w", err)
			return
		}
		s.mu.Lock()
		s.firstDeploy = firstDeploy
		s.mu.Unlock()

		delay, phase := NextWake(s.now(), firstDeploy, s.opts.Schedule)
		if s.opts.SyncOnStartup {
			delay = s.opts.StartupDelay
		}
		s.logger.Info("Scheduler started",
			"first_deploy_at", firstDeploy.Format(time.RFC3339),
			"phase", phase,
			"first_run_in", delay.String())
		go s.loop(ctx, delay)
	})
	return s.startErr
}

func (s *Scheduler) loop(ctx context.Context, delay time.Duration) {
	s.setNextRun(delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if _, err := s.Trigger(ctx, ModeAll); err != nil {
				s.logger.Error("Scheduled sync failed to start", "error", err)
			}
			if _, err := s.RunMaintenance(ctx); err != nil {
				s.logger.Error("Maintenance failed", "error", err)
			}

			delay, phase := s.nextWake()
			s.setNextRun(delay)
			s.logger.Info("Next sync scheduled", "phase", phase, "in", delay.String())
			timer.Reset(delay)
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			return
		}
	}
}

func (s *Scheduler) nextWake() (time.Duration, Phase) {
	s.mu.Lock()
	firstDeploy := s.firstDeploy
	s.mu.Unlock()
	return NextWake(s.now(), firstDeploy, s.opts.Schedule)
}

func (s *Scheduler) setNextRun(d time.Duration) {
	s.mu.Lock()
	s.nextRun = s.now().Add(d)
	s.mu.Unlock()
}

// Trigger performs one run in mode unless a run is already in flight, in
// which case it reports an unsuccessful result without running anything.
func (s *Scheduler) Trigger(ctx context.Context, mode Mode) (SyncResult, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return SyncResult{}, err
	}
	if mode == "" {
		mode = ModeAll
	}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Sync already in progress, skipping", "mode", mode)
		return SyncResult{Success: false, Mode: mode, Message: "sync already in progress"}, nil
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "mode", mode)
	start := s.now()
	logger.Info("Sync run started")

	result, err := s.run(ctx, logger, mode)
	result.Mode = mode
	result.RunID = runID
	if err != nil {
		logger.Error("Sync run failed", "error", err, "duration", s.now().Sub(start).String())
		result.Success = false
		result.Message = "sync failed"
		result.Error = err.Error()
		return result, nil
	}

	result.Success = true
	result.Message = fmt.Sprintf("synced %d repositories and %d issues", result.Count, result.IssueCount)
	logger.Info("Sync run finished",
		"count", result.Count,
		"issue_count", result.IssueCount,
		"duration", s.now().Sub(start).String())
	return result, nil
}

// run performs the stages of one run. Metadata sync and trending discovery
// touch disjoint rows and run concurrently; issue sync, enrichment and
// insights run in order after them.
func (s *Scheduler) run(ctx context.Context, logger *slog.Logger, mode Mode) (SyncResult, error) {
	var result SyncResult
	defer s.store.InvalidateCache()

	if mode == ModeRepos || mode == ModeAll {
		var updated, discovered int
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := s.syncer.SyncRepos(gctx)
			updated = n
			return err
		})
		g.Go(func() error {
			n, err := s.syncer.DiscoverTrending(gctx)
			discovered = n
			return err
		})
		if err := g.Wait(); err != nil {
			return result, fmt.Errorf("repository stage: %w", err)
		}
		result.Count = updated + discovered
		logger.Info("Repository stage finished", "updated", updated, "discovered", discovered)
	}

	if mode == ModeIssues || mode == ModeAll {
		issues, err := s.syncer.SyncIssues(ctx)
		if err != nil {
			return result, fmt.Errorf("issue stage: %w", err)
		}
		result.IssueCount = issues.Issues

		report := s.enricher.Run(ctx)
		logger.Info("Enrichment finished",
			"summaries", report.Summary.Saved,
			"aiml", report.AIML.Saved,
			"build_plans", report.BuildPlan.Saved,
			"insights", report.Insights.Generated)
	}
	return result, nil
}

// Running reports whether a sync is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Status returns pending-work counts and scheduler state.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	counts, err := s.store.GetSyncStatus(ctx, s.now().Add(-s.opts.IssueSyncCooldown))
	if err != nil {
		return Status{}, err
	}
	st := Status{SyncStatus: counts, SyncInProgress: s.Running()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.firstDeploy.IsZero() {
		_, st.Phase = NextWake(s.now(), s.firstDeploy, s.opts.Schedule)
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRunAt = &next
	}
	return st, nil
}

// RunMaintenance prunes old star history when the maintenance interval has
// passed since the last prune in this process. It reports whether it pruned.
func (s *Scheduler) RunMaintenance(ctx context.Context) (bool, error) {
	now := s.now()
	s.mu.Lock()
	due := s.lastMaintenance.IsZero() || now.Sub(s.lastMaintenance) >= s.opts.MaintenanceInterval
	s.mu.Unlock()
	if !due {
		return false, nil
	}

	pruned, err := s.store.PruneStarHistory(ctx, now.Add(-s.opts.HistoryRetention))
	if err != nil {
		return false, fmt.Errorf("prune star history: %w", err)
	}
	s.mu.Lock()
	s.lastMaintenance = now
	s.mu.Unlock()

	s.logger.Info("Pruned star history", "rows", pruned, "retention", s.opts.HistoryRetention.String())
	return true, nil
}

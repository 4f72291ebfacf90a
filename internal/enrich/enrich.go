// Package enrich runs the LLM passes over synced issues and synthesizes
// per-repository opportunity insights.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repo-leaderboard/internal/config"
	"repo-leaderboard/internal/llm"
	"repo-leaderboard/internal/model"
)

// Store is the subset of the store gateway the enrichment passes use.
type Store interface {
	ListPendingEnrichment(ctx context.Context, pass model.EnrichmentPass, limit int) ([]model.PendingIssue, error)
	SaveIssueSummary(ctx context.Context, s model.IssueSummary, contentHash string, at time.Time) error
	SaveAimlClassification(ctx context.Context, c model.AimlClassification, contentHash string, at time.Time) error
	SaveBuildPlan(ctx context.Context, p model.IssueBuildPlan, contentHash string, at time.Time) error
	ListInsightCandidates(ctx context.Context) ([]model.InsightCandidate, error)
	ListInsightIssues(ctx context.Context, repoID int64, limit int) ([]model.InsightIssue, error)
	SaveRepoInsights(ctx context.Context, repoID int64, payload []byte, at time.Time) error
	InvalidateCache()
}

// Completers binds an LLM client to each pass. A nil client disables its pass.
type Completers struct {
	Summary   llm.Completer
	AIML      llm.Completer
	BuildPlan llm.Completer
	Insights  llm.Completer
}

// CompletersFromConfig builds one client per provider and hands it to every
// pass cfg.Passes enables.
func CompletersFromConfig(cfg *config.Config) (Completers, error) {
	clients := make(map[string]llm.Completer)
	get := func(p config.PassConfig) (llm.Completer, error) {
		if !p.Enabled {
			return nil, nil
		}
		if c, ok := clients[p.Provider]; ok {
			return c, nil
		}
		c, err := llm.New(p.Provider, llm.Options{
			APIKey:  cfg.APIKey(p.Provider),
			Model:   cfg.Model(p.Provider),
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		clients[p.Provider] = c
		return c, nil
	}

	var out Completers
	var err error
	if out.Summary, err = get(cfg.Passes.Summary); err != nil {
		return out, fmt.Errorf("summary pass: %w", err)
	}
	if out.AIML, err = get(cfg.Passes.AIML); err != nil {
		return out, fmt.Errorf("aiml pass: %w", err)
	}
	if out.BuildPlan, err = get(cfg.Passes.BuildPlan); err != nil {
		return out, fmt.Errorf("build plan pass: %w", err)
	}
	if out.Insights, err = get(cfg.Passes.Insights); err != nil {
		return out, fmt.Errorf("insights: %w", err)
	}
	return out, nil
}

// Options tunes pacing and the insight caps.
type Options struct {
	BatchDelay         time.Duration
	InsightsRepoLimit  int
	InsightsIssueLimit int
}

// OptionsFromConfig copies the enrichment settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchDelay:         cfg.LLMBatchDelay,
		InsightsRepoLimit:  cfg.InsightsRepoLimit,
		InsightsIssueLimit: cfg.InsightsIssueLimit,
	}
}

// PassResult counts the work done by one enrichment pass.
type PassResult struct {
	Selected      int
	Saved         int
	FailedBatches int
	Salvaged      int
}

// Report summarises one enrichment run.
type Report struct {
	Summary   PassResult
	AIML      PassResult
	BuildPlan PassResult
	Insights  InsightResult
}

// Enricher runs the enrichment passes and the insight synthesizer.
type Enricher struct {
	store  Store
	llms   Completers
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// NewEnricher creates an Enricher.
func NewEnricher(store Store, llms Completers, logger *slog.Logger, opts Options) *Enricher {
	if opts.InsightsRepoLimit <= 0 {
		opts.InsightsRepoLimit = 5
	}
	if opts.InsightsIssueLimit <= 0 {
		opts.InsightsIssueLimit = 40
	}
	return &Enricher{
		store:  store,
		llms:   llms,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// Run executes the summary, AI/ML and build-plan passes, then insight
// synthesis. A failing pass is logged and does not stop the others.
func (e *Enricher) Run(ctx context.Context) Report {
	var report Report
	var err error

	if report.Summary, err = e.Summarize(ctx); err != nil {
		e.logger.Error("Summary pass failed", "error", err)
	}
	if report.AIML, err = e.ClassifyAIML(ctx); err != nil {
		e.logger.Error("AI/ML classification pass failed", "error", err)
	}
	if report.BuildPlan, err = e.PlanBuilds(ctx); err != nil {
		e.logger.Error("Build plan pass failed", "error", err)
	}
	if report.Insights, err = e.SynthesizeInsights(ctx); err != nil {
		e.logger.Error("Insight synthesis failed", "error", err)
	}

	if report.Summary.Saved+report.AIML.Saved+report.BuildPlan.Saved+report.Insights.Generated > 0 {
		e.store.InvalidateCache()
	}
	return report
}

// batchFunc enriches one batch and returns how many issues it saved.
type batchFunc func(ctx context.Context, c llm.Completer, batch []model.PendingIssue) (saved int, salvaged bool, err error)

type passSpec struct {
	pass      model.EnrichmentPass
	limit     int
	batchSize int
}

// runPass selects pending issues for spec.pass and feeds them to fn in
// batches. A failed batch is logged and skipped.
func (e *Enricher) runPass(ctx context.Context, spec passSpec, c llm.Completer, fn batchFunc) (PassResult, error) {
	var result PassResult
	logger := e.logger.With("pass", string(spec.pass))
	if c == nil {
		logger.Debug("Pass disabled, skipping")
		return result, nil
	}

	pending, err := e.store.ListPendingEnrichment(ctx, spec.pass, spec.limit)
	if err != nil {
		return result, fmt.Errorf("list pending %s: %w", spec.pass, err)
	}
	result.Selected = len(pending)
	if len(pending) == 0 {
		logger.Debug("Nothing to enrich")
		return result, nil
	}

	for start := 0; start < len(pending); start += spec.batchSize {
		end := min(start+spec.batchSize, len(pending))
		saved, salvaged, err := fn(ctx, c, pending[start:end])
		result.Saved += saved
		if salvaged {
			result.Salvaged++
		}
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.FailedBatches++
			logger.Warn("Enrichment batch failed", "batch_start", start, "batch_size", end-start, "error", err)
		}

		if end < len(pending) {
			if err := sleepCtx(ctx, e.opts.BatchDelay); err != nil {
				return result, err
			}
		}
	}

	logger.Info("Pass finished",
		"selected", result.Selected,
		"saved", result.Saved,
		"failed_batches", result.FailedBatches,
		"salvaged_batches", result.Salvaged)
	return result, nil
}

// hashesByID indexes a batch so replies can only touch issues that were sent.
func hashesByID(batch []model.PendingIssue) map[int64]string {
	m := make(map[int64]string, len(batch))
	for _, p := range batch {
		m[p.ID] = p.ContentHash
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

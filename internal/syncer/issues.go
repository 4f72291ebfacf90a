package syncer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"repo-leaderboard/internal/database"
	"repo-leaderboard/internal/github"
	"repo-leaderboard/internal/model"
)

const (
	// WatermarkBuffer is subtracted from the watermark when building a delta fetch.
	WatermarkBuffer = 60 * time.Second
	// DeltaMaxPages bounds one delta fetch. Delta pages are read oldest update
	// first, so whatever is left over arrives on the next run.
	DeltaMaxPages = 10
)

// IssueSyncResult summarises one issue sync run.
type IssueSyncResult struct {
	Repos  int
	Issues int
	Closed int64
}

// SelectIssueSyncBatch picks up to limit repositories for issue sync.
// Repositories synced within cooldown are excluded. The rest are ordered
// never-synced first, then discovered before static, then stalest first.
func SelectIssueSyncBatch(candidates []model.IssueSyncCandidate, now time.Time, cooldown time.Duration, limit int) []model.IssueSyncCandidate {
	eligible := make([]model.IssueSyncCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.IssuesSyncedAt != nil && now.Sub(*c.IssuesSyncedAt) < cooldown {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		aNever, bNever := a.IssuesSyncedAt == nil, b.IssuesSyncedAt == nil
		if aNever != bNever {
			return aNever
		}
		aDisc, bDisc := a.Source == model.SourceDiscovered, b.Source == model.SourceDiscovered
		if aDisc != bDisc {
			return aDisc
		}
		if aNever {
			return a.RepoID < b.RepoID
		}
		return a.IssuesSyncedAt.Before(*b.IssuesSyncedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}

// ShouldCloseMissing reports whether a fetch is trusted as the complete open
// issue list. Only an unfiltered full fetch that came back below the page-size
// ceiling qualifies. A repository with exactly pageSize open issues is treated
// as truncated, so its stale issues stay open until the count changes. A label
// filter hides open issues that merely lost the label, so it never closes.
func ShouldCloseMissing(fullFetch, labelFiltered bool, fetched, pageSize int) bool {
	return fullFetch && !labelFiltered && fetched < pageSize
}

// NextWatermark returns latest, the newest updated_at the fetch saw, or now
// when the fetch returned nothing. It never moves an existing watermark
// backwards.
func NextWatermark(prev *time.Time, latest, now time.Time) time.Time {
	if latest.IsZero() {
		latest = now
	}
	if prev != nil && prev.After(latest) {
		return *prev
	}
	return latest
}

// SyncIssues runs an issue sync over the prioritized batch of repositories.
// A failing repository is logged and skipped.
func (s *Syncer) SyncIssues(ctx context.Context) (IssueSyncResult, error) {
	var result IssueSyncResult

	candidates, err := s.store.ListIssueSyncCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("list issue sync candidates: %w", err)
	}
	batch := SelectIssueSyncBatch(candidates, s.now(), s.opts.IssueSyncCooldown, s.opts.IssueBatchSize)
	s.logger.Info("Starting issue sync", "candidates", len(candidates), "selected", len(batch))

	for i, c := range batch {
		n, closed, err := s.SyncRepoIssues(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Error("Failed to sync issues", "repo", c.FullName, "error", err)
		} else {
			result.Repos++
			result.Issues += n
			result.Closed += closed
		}

		if i < len(batch)-1 {
			if err := sleepCtx(ctx, s.opts.IssueRepoDelay); err != nil {
				return result, err
			}
		}
	}

	s.store.InvalidateCache()
	s.logger.Info("Issue sync finished", "repos", result.Repos, "issues", result.Issues, "closed", result.Closed)
	return result, nil
}

// SyncRepoIssues fetches and commits the issues of one repository. With a
// watermark it performs a delta fetch of all states since the watermark minus
// WatermarkBuffer, oldest update first; without one it fetches one page of
// open issues.
func (s *Syncer) SyncRepoIssues(ctx context.Context, c model.IssueSyncCandidate) (int, int64, error) {
	logger := s.logger.With("repo", c.FullName, "repo_id", c.RepoID)
	startedAt := s.now()

	q := github.IssueQuery{
		State:   model.IssueStateOpen,
		Labels:  s.opts.IssueLabels,
		PerPage: s.opts.IssuePageSize,
	}
	fullFetch := c.Watermark == nil
	if !fullFetch {
		q.State = "all"
		q.Since = c.Watermark.Add(-WatermarkBuffer)
		q.Ascending = true
		q.MaxPages = DeltaMaxPages
	}

	page, err := s.ghClient.ListIssues(ctx, c.Owner, c.Name, q)
	if err != nil {
		return 0, 0, fmt.Errorf("list issues: %w", err)
	}

	issues := page.Issues
	for i := range issues {
		issues[i].RepoID = c.RepoID
		issues[i].RepoFullName = c.FullName
		issues[i].OpportunityType = ClassifyOpportunity(issues[i].Labels)
		issues[i].ContentHash = ContentHash(issues[i].Title, issues[i].Body)
	}

	syncedAt := s.now()
	commit := database.IssueSyncCommit{
		RepoID:       c.RepoID,
		Issues:       issues,
		CloseMissing: ShouldCloseMissing(fullFetch, len(q.Labels) > 0, page.Fetched, s.opts.IssuePageSize),
		StartedAt:    startedAt,
		Watermark:    NextWatermark(c.Watermark, page.Latest, syncedAt),
		SyncedAt:     syncedAt,
	}
	closed, err := s.store.CommitIssueSync(ctx, commit)
	if err != nil {
		return 0, 0, fmt.Errorf("commit issues: %w", err)
	}

	logger.Info("Synced issues",
		"full_fetch", fullFetch,
		"fetched", page.Fetched,
		"issues", len(issues),
		"closed", closed,
		"watermark", commit.Watermark.Format(time.RFC3339))
	return len(issues), closed, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"repo-leaderboard/internal/cache"
	"repo-leaderboard/internal/model"
)

// Store is the gateway every component writes and reads through.
// Dashboard reads are served from a TTL cache that is cleared in full by
// InvalidateCache after any write-producing phase. A page read before a purge
// is never stored after it.
type Store struct {
	*Queries
	pool       *pgxpool.Pool
	repoCache  *cache.Cache[model.RepoPage]
	issueCache *cache.Cache[model.IssuePage]
}

// NewStore wraps pool with typed queries and read caches.
func NewStore(pool *pgxpool.Pool, cacheSize int, cacheTTL time.Duration) *Store {
	return &Store{
		Queries:    New(pool),
		pool:       pool,
		repoCache:  cache.New[model.RepoPage](cacheSize, cacheTTL),
		issueCache: cache.New[model.IssuePage](cacheSize, cacheTTL),
	}
}

// InvalidateCache clears every cached read.
func (s *Store) InvalidateCache() {
	s.repoCache.InvalidateAll()
	s.issueCache.InvalidateAll()
}

// ListRepos serves leaderboard pages through the read cache.
func (s *Store) ListRepos(ctx context.Context, q RepoQuery) (model.RepoPage, error) {
	key := cache.Key(q.Category, q.Search, q.Sort, q.Page, q.Limit)
	if page, ok := s.repoCache.Get(key); ok {
		return page, nil
	}
	gen := s.repoCache.Generation()
	page, err := s.Queries.ListRepos(ctx, q)
	if err != nil {
		return model.RepoPage{}, err
	}
	s.repoCache.SetAt(key, page, gen)
	return page, nil
}

// ListIssues serves issue pages through the read cache.
func (s *Store) ListIssues(ctx context.Context, q IssueQuery) (model.IssuePage, error) {
	key := cache.Key(q.Difficulty, q.Label, q.Search, q.Sort, q.Page, q.Limit, q.AIML)
	if page, ok := s.issueCache.Get(key); ok {
		return page, nil
	}
	gen := s.issueCache.Generation()
	page, err := s.Queries.ListIssues(ctx, q)
	if err != nil {
		return model.IssuePage{}, err
	}
	s.issueCache.SetAt(key, page, gen)
	return page, nil
}

// IssueSyncCommit is everything one repository's issue sync writes.
type IssueSyncCommit struct {
	RepoID       int64
	Issues       []model.Issue
	CloseMissing bool
	StartedAt    time.Time
	Watermark    time.Time
	SyncedAt     time.Time
}

// CommitIssueSync upserts the fetched issues, closes missing ones when
// requested, and advances the watermark in a single transaction. The
// repository's issues_changed_at moves only when a row actually changed.
// It returns the number of issues closed by absence.
func (s *Store) CommitIssueSync(ctx context.Context, c IssueSyncCommit) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	qtx := New(tx)
	seen := make([]int64, 0, len(c.Issues))
	var changed bool
	for _, issue := range c.Issues {
		rowChanged, err := qtx.UpsertIssue(ctx, issue, c.SyncedAt)
		if err != nil {
			return 0, err
		}
		changed = changed || rowChanged
		seen = append(seen, issue.GithubID)
	}

	var closed int64
	if c.CloseMissing {
		closed, err = qtx.CloseMissingIssues(ctx, c.RepoID, seen, c.StartedAt, c.SyncedAt)
		if err != nil {
			return 0, fmt.Errorf("close missing issues: %w", err)
		}
	}

	if err := qtx.UpdateIssueSyncState(ctx, c.RepoID, c.Watermark, c.SyncedAt, changed || closed > 0); err != nil {
		return 0, fmt.Errorf("update issue watermark: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return closed, nil
}

// Ping checks connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

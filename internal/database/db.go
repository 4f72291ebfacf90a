// Package database is the store gateway: typed queries over Postgres,
// transactional issue commits, and cached dashboard reads.
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"repo-leaderboard/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries runs every statement against a DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Querier is the full set of typed store operations.
type Querier interface {
	UpsertRepository(ctx context.Context, repo *model.Repository) (int64, error)
	GetRepoLastSynced(ctx context.Context) (map[string]time.Time, error)
	InsertStarHistorySnapshot(ctx context.Context, repoID int64, stars, forks int, now time.Time) (bool, error)
	RecomputeRanks(ctx context.Context) error
	PruneStarHistory(ctx context.Context, before time.Time) (int64, error)

	ListIssueSyncCandidates(ctx context.Context) ([]model.IssueSyncCandidate, error)
	UpsertIssue(ctx context.Context, issue model.Issue, syncedAt time.Time) (bool, error)
	CloseMissingIssues(ctx context.Context, repoID int64, seen []int64, startedAt, closedAt time.Time) (int64, error)
	UpdateIssueSyncState(ctx context.Context, repoID int64, watermark, syncedAt time.Time, changed bool) error

	ListPendingEnrichment(ctx context.Context, pass model.EnrichmentPass, limit int) ([]model.PendingIssue, error)
	SaveIssueSummary(ctx context.Context, s model.IssueSummary, contentHash string, at time.Time) error
	SaveAimlClassification(ctx context.Context, c model.AimlClassification, contentHash string, at time.Time) error
	SaveBuildPlan(ctx context.Context, p model.IssueBuildPlan, contentHash string, at time.Time) error

	ListInsightCandidates(ctx context.Context) ([]model.InsightCandidate, error)
	ListInsightIssues(ctx context.Context, repoID int64, limit int) ([]model.InsightIssue, error)
	SaveRepoInsights(ctx context.Context, repoID int64, payload []byte, at time.Time) error

	GetOrCreateFirstDeployAt(ctx context.Context, now time.Time) (time.Time, error)
	GetSyncStatus(ctx context.Context, staleBefore time.Time) (model.SyncStatus, error)
	GetLastSynced(ctx context.Context) (*time.Time, error)

	ListRepos(ctx context.Context, q RepoQuery) (model.RepoPage, error)
	ListIssues(ctx context.Context, q IssueQuery) (model.IssuePage, error)
	GetStarHistory(ctx context.Context, fullName string, since time.Time) ([]model.HistoryPoint, error)
}

var _ Querier = (*Queries)(nil)

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

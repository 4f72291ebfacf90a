package database

import (
	"context"
	"fmt"
	"time"

	"repo-leaderboard/internal/model"
)

const firstDeployKey = "first_deploy_at"

// GetOrCreateFirstDeployAt returns the persisted first deployment time,
// recording now when none exists yet.
func (q *Queries) GetOrCreateFirstDeployAt(ctx context.Context, now time.Time) (time.Time, error) {
	_, err := q.db.Exec(ctx,
		`INSERT INTO app_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		firstDeployKey, now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return time.Time{}, err
	}

	var raw string
	if err := q.db.QueryRow(ctx, `SELECT value FROM app_meta WHERE key = $1`, firstDeployKey).Scan(&raw); err != nil {
		return time.Time{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored %s is not a timestamp: %w", firstDeployKey, err)
	}
	return at, nil
}

// GetSyncStatus counts pending work. Repositories whose last issue sync is
// before staleBefore count as overdue.
func (q *Queries) GetSyncStatus(ctx context.Context, staleBefore time.Time) (model.SyncStatus, error) {
	var s model.SyncStatus
	err := q.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM repos WHERE issues_synced_at IS NULL OR issues_synced_at < $1),
			(SELECT COUNT(*) FROM issues WHERE state = 'open' AND llm_content_hash IS DISTINCT FROM content_hash),
			(SELECT COUNT(*) FROM issues WHERE state = 'open' AND aiml_content_hash IS DISTINCT FROM content_hash),
			(SELECT COUNT(*) FROM issues WHERE state = 'open' AND neo_content_hash IS DISTINCT FROM content_hash),
			(SELECT COUNT(*) FROM issues WHERE state = 'open'),
			(SELECT MAX(last_synced) FROM repos)`, staleBefore,
	).Scan(&s.ReposPendingIssueSync, &s.PendingSummary, &s.PendingAIML, &s.PendingBuildPlan, &s.TotalIssues, &s.LastSynced)
	return s, err
}

// GetLastSynced returns the most recent repository metadata sync, if any.
func (q *Queries) GetLastSynced(ctx context.Context) (*time.Time, error) {
	var at *time.Time
	err := q.db.QueryRow(ctx, `SELECT MAX(last_synced) FROM repos`).Scan(&at)
	return at, err
}

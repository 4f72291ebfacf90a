package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"repo-leaderboard/internal/model"
)

const (
	// SnapshotMinInterval is how long an unchanged star count waits before it is recorded again.
	SnapshotMinInterval = 6 * time.Hour
)

const upsertRepository = `
INSERT INTO repos (
    full_name, owner, name, description, category, language, topics, homepage,
    stars, forks, open_issues, watchers, created_at, pushed_at, last_synced, source
) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (full_name) DO UPDATE SET
    owner       = EXCLUDED.owner,
    name        = EXCLUDED.name,
    description = EXCLUDED.description,
    category    = EXCLUDED.category,
    language    = EXCLUDED.language,
    topics      = EXCLUDED.topics,
    homepage    = EXCLUDED.homepage,
    stars       = EXCLUDED.stars,
    forks       = EXCLUDED.forks,
    open_issues = EXCLUDED.open_issues,
    watchers    = EXCLUDED.watchers,
    created_at  = EXCLUDED.created_at,
    pushed_at   = EXCLUDED.pushed_at,
    last_synced = EXCLUDED.last_synced,
    source      = CASE WHEN repos.source = 'static' THEN 'static' ELSE EXCLUDED.source END
RETURNING id`

// UpsertRepository inserts or updates a repository keyed by full name and returns its id.
func (q *Queries) UpsertRepository(ctx context.Context, repo *model.Repository) (int64, error) {
	topics := repo.Topics
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return 0, err
	}

	lastSynced := repo.LastSynced
	if lastSynced.IsZero() {
		lastSynced = time.Now()
	}

	var id int64
	err = q.db.QueryRow(ctx, upsertRepository,
		repo.FullName, repo.Owner, repo.Name, repo.Description, string(repo.Category), repo.Language,
		string(topicsJSON), repo.Homepage, repo.Stars, repo.Forks, repo.OpenIssues, repo.Watchers,
		nullTime(repo.RepoCreatedAt), nullTime(repo.PushedAt), lastSynced, string(repo.Source),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert repository %s: %w", repo.FullName, err)
	}
	return id, nil
}

// GetRepoLastSynced maps every repository's full name to its last metadata sync.
func (q *Queries) GetRepoLastSynced(ctx context.Context) (map[string]time.Time, error) {
	rows, err := q.db.Query(ctx, `SELECT full_name, last_synced FROM repos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

// ShouldRecordSnapshot reports whether a new star snapshot adds information
// over prev: counts changed, or prev is at least SnapshotMinInterval old.
func ShouldRecordSnapshot(prev *model.StarSnapshot, stars, forks int, now time.Time) bool {
	if prev == nil {
		return true
	}
	if prev.Stars != stars || prev.Forks != forks {
		return true
	}
	return now.Sub(prev.RecordedAt) >= SnapshotMinInterval
}

// InsertStarHistorySnapshot appends a snapshot unless it duplicates a recent one.
// It reports whether a row was written.
func (q *Queries) InsertStarHistorySnapshot(ctx context.Context, repoID int64, stars, forks int, now time.Time) (bool, error) {
	var prev model.StarSnapshot
	err := q.db.QueryRow(ctx, `
		SELECT repo_id, stars, forks, recorded_at FROM star_history
		WHERE repo_id = $1 ORDER BY recorded_at DESC LIMIT 1`, repoID,
	).Scan(&prev.RepoID, &prev.Stars, &prev.Forks, &prev.RecordedAt)

	var last *model.StarSnapshot
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return false, err
	default:
		last = &prev
	}

	if !ShouldRecordSnapshot(last, stars, forks, now) {
		return false, nil
	}

	_, err = q.db.Exec(ctx,
		`INSERT INTO star_history (repo_id, stars, forks, recorded_at) VALUES ($1, $2, $3, $4)`,
		repoID, stars, forks, now)
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecomputeRanks sets rank to one plus the number of repositories with strictly more stars.
func (q *Queries) RecomputeRanks(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repos SET rank = (
			SELECT COUNT(*) + 1 FROM repos r2 WHERE r2.stars > repos.stars
		)`)
	return err
}

// PruneStarHistory deletes snapshots recorded before the cutoff.
func (q *Queries) PruneStarHistory(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM star_history WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repo-leaderboard/internal/model"
)

// ListIssueSyncCandidates returns every repository with its issue sync bookkeeping.
func (q *Queries) ListIssueSyncCandidates(ctx context.Context) ([]model.IssueSyncCandidate, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, full_name, owner, name, source, issues_last_synced_at, issues_synced_at
		FROM repos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IssueSyncCandidate
	for rows.Next() {
		var c model.IssueSyncCandidate
		var source string
		if err := rows.Scan(&c.RepoID, &c.FullName, &c.Owner, &c.Name, &source, &c.Watermark, &c.IssuesSyncedAt); err != nil {
			return nil, err
		}
		c.Source = model.Source(source)
		out = append(out, c)
	}
	return out, rows.Err()
}

const upsertIssue = `
WITH prev AS (
    SELECT state, updated_at, content_hash FROM issues WHERE github_id = $1
)
INSERT INTO issues (
    github_id, repo_id, repo_full_name, number, title, body, html_url, state, labels,
    comments, created_at, updated_at, closed_at, last_synced, opportunity_type, content_hash
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (github_id) DO UPDATE SET
    number           = EXCLUDED.number,
    title            = EXCLUDED.title,
    body             = EXCLUDED.body,
    html_url         = EXCLUDED.html_url,
    labels           = EXCLUDED.labels,
    comments         = EXCLUDED.comments,
    updated_at       = EXCLUDED.updated_at,
    last_synced      = EXCLUDED.last_synced,
    opportunity_type = EXCLUDED.opportunity_type,
    content_hash     = EXCLUDED.content_hash,
    state            = CASE WHEN issues.state = 'closed' THEN 'closed' ELSE EXCLUDED.state END,
    closed_at        = CASE WHEN issues.state = 'closed' THEN issues.closed_at ELSE EXCLUDED.closed_at END
RETURNING NOT EXISTS (
    SELECT 1 FROM prev
    WHERE prev.state = issues.state
      AND prev.content_hash = issues.content_hash
      AND prev.updated_at IS NOT DISTINCT FROM issues.updated_at
)`

// UpsertIssue inserts or updates an issue keyed by its GitHub id and reports
// whether the stored row changed. State only moves from open to closed: a
// closed row keeps its state and closed_at whatever the fetch says.
func (q *Queries) UpsertIssue(ctx context.Context, issue model.Issue, syncedAt time.Time) (bool, error) {
	labels := issue.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return false, err
	}

	var closedAt *time.Time
	if issue.State == model.IssueStateClosed {
		closedAt = issue.ClosedAt
		if closedAt == nil {
			closedAt = &syncedAt
		}
	}

	var changed bool
	err = q.db.QueryRow(ctx, upsertIssue,
		issue.GithubID, issue.RepoID, issue.RepoFullName, issue.Number, issue.Title, issue.Body,
		issue.HTMLURL, issue.State, string(labelsJSON), issue.Comments,
		nullTime(issue.CreatedAt), nullTime(issue.UpdatedAt), closedAt, syncedAt,
		string(issue.OpportunityType), issue.ContentHash,
	).Scan(&changed)
	if err != nil {
		return false, fmt.Errorf("upsert issue %s#%d: %w", issue.RepoFullName, issue.Number, err)
	}
	return changed, nil
}

// CloseMissingIssues closes open issues of a repository that were neither in
// the seen set nor synced since startedAt.
func (q *Queries) CloseMissingIssues(ctx context.Context, repoID int64, seen []int64, startedAt, closedAt time.Time) (int64, error) {
	if seen == nil {
		seen = []int64{}
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE issues SET state = 'closed', closed_at = $4
		WHERE repo_id = $1
		  AND state = 'open'
		  AND NOT (github_id = ANY($2))
		  AND last_synced < $3`,
		repoID, seen, startedAt, closedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateIssueSyncState stores the issue watermark and the wall-clock sync time.
// When changed is set, syncedAt also becomes the time the repository's issue
// data last changed.
func (q *Queries) UpdateIssueSyncState(ctx context.Context, repoID int64, watermark, syncedAt time.Time, changed bool) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repos SET
			issues_last_synced_at = $2,
			issues_synced_at = $3,
			issues_changed_at = CASE WHEN $4 THEN $3 ELSE issues_changed_at END
		WHERE id = $1`,
		repoID, watermark, syncedAt, changed)
	return err
}

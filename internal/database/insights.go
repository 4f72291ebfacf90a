package database

import (
	"context"
	"time"

	"repo-leaderboard/internal/model"
)

// ListInsightCandidates returns discovered repositories with open issues, most starred first.
func (q *Queries) ListInsightCandidates(ctx context.Context) ([]model.InsightCandidate, error) {
	rows, err := q.db.Query(ctx, `
		SELECT r.id, r.full_name, r.stars, r.issues_changed_at, r.insights_generated_at, r.opportunity_insights
		FROM repos r
		WHERE r.source = 'discovered'
		  AND EXISTS (SELECT 1 FROM issues i WHERE i.repo_id = r.id AND i.state = 'open')
		ORDER BY r.stars DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InsightCandidate
	for rows.Next() {
		var c model.InsightCandidate
		if err := rows.Scan(&c.RepoID, &c.FullName, &c.Stars, &c.IssuesChangedAt, &c.InsightsGeneratedAt, &c.Insights); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListInsightIssues returns a repository's open issues ranked by engagement.
func (q *Queries) ListInsightIssues(ctx context.Context, repoID int64, limit int) ([]model.InsightIssue, error) {
	rows, err := q.db.Query(ctx, `
		SELECT number, title, COALESCE(llm_summary, ''), comments, opportunity_type
		FROM issues
		WHERE repo_id = $1 AND state = 'open'
		ORDER BY comments DESC, updated_at DESC NULLS LAST
		LIMIT $2`, repoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.InsightIssue
	for rows.Next() {
		var i model.InsightIssue
		var kind string
		if err := rows.Scan(&i.Number, &i.Title, &i.Summary, &i.Comments, &kind); err != nil {
			return nil, err
		}
		i.OpportunityType = model.OpportunityType(kind)
		out = append(out, i)
	}
	return out, rows.Err()
}

// SaveRepoInsights stores a synthesized insight payload.
func (q *Queries) SaveRepoInsights(ctx context.Context, repoID int64, payload []byte, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE repos SET opportunity_insights = $2::jsonb, insights_generated_at = $3
		WHERE id = $1`, repoID, string(payload), at)
	return err
}

package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repo-leaderboard/internal/model"
)

// passHashColumn names the column holding the content hash a pass last processed.
var passHashColumn = map[model.EnrichmentPass]string{
	model.PassSummary:   "llm_content_hash",
	model.PassAIML:      "aiml_content_hash",
	model.PassBuildPlan: "neo_content_hash",
}

// ListPendingEnrichment selects open issues whose content hash differs from
// the hash stored for pass, most recently updated first.
func (q *Queries) ListPendingEnrichment(ctx context.Context, pass model.EnrichmentPass, limit int) ([]model.PendingIssue, error) {
	col, ok := passHashColumn[pass]
	if !ok {
		return nil, fmt.Errorf("unknown enrichment pass %q", pass)
	}

	rows, err := q.db.Query(ctx, fmt.Sprintf(`
		SELECT id, title, body, content_hash FROM issues
		WHERE state = 'open' AND %s IS DISTINCT FROM content_hash
		ORDER BY updated_at DESC NULLS LAST
		LIMIT $1`, col), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PendingIssue
	for rows.Next() {
		var p model.PendingIssue
		if err := rows.Scan(&p.ID, &p.Title, &p.Body, &p.ContentHash); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveIssueSummary stores the summary pass result and the hash it was computed from.
func (q *Queries) SaveIssueSummary(ctx context.Context, s model.IssueSummary, contentHash string, at time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE issues SET
			llm_summary      = $2,
			llm_solvability  = $3,
			llm_difficulty   = $4,
			llm_analyzed_at  = $5,
			llm_content_hash = $6
		WHERE id = $1`,
		s.ID, s.Summary, s.Solvability, string(s.Difficulty), at, contentHash)
	return err
}

// SaveAimlClassification stores the AI/ML pass result.
func (q *Queries) SaveAimlClassification(ctx context.Context, c model.AimlClassification, contentHash string, at time.Time) error {
	categories := c.Categories
	if categories == nil {
		categories = []model.AimlCategory{}
	}
	raw, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		UPDATE issues SET
			is_aiml_issue      = $2,
			aiml_categories    = $3::jsonb,
			aiml_classified_at = $4,
			aiml_content_hash  = $5
		WHERE id = $1`,
		c.ID, c.IsAIML, string(raw), at, contentHash)
	return err
}

// SaveBuildPlan stores the build-plan pass result.
func (q *Queries) SaveBuildPlan(ctx context.Context, p model.IssueBuildPlan, contentHash string, at time.Time) error {
	raw, err := json.Marshal(p.Plan)
	if err != nil {
		return err
	}
	_, err = q.db.Exec(ctx, `
		UPDATE issues SET
			neo_approach     = $2::jsonb,
			neo_generated_at = $3,
			neo_content_hash = $4
		WHERE id = $1`,
		p.ID, string(raw), at, contentHash)
	return err
}

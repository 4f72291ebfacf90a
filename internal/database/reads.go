package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repo-leaderboard/internal/model"
)

// RepoQuery filters and pages the leaderboard.
type RepoQuery struct {
	Category string
	Search   string
	Sort     string
	Page     int
	Limit    int
}

// IssueQuery filters and pages open issues.
type IssueQuery struct {
	Difficulty string
	Label      string
	Search     string
	Sort       string
	AIML       bool
	Page       int
	Limit      int
}

var repoSorts = map[string]string{
	"stars":     "r.stars DESC",
	"growth24h": "growth_24h DESC, r.stars DESC",
	"growth7d":  "growth_7d DESC, r.stars DESC",
	"newest":    "r.created_at DESC NULLS LAST",
	"name":      "r.full_name ASC",
}

var issueSorts = map[string]string{
	"solvability": "i.llm_solvability DESC NULLS LAST",
	"newest":      "i.created_at DESC NULLS LAST",
	"comments":    "i.comments DESC",
}

func pageOffset(page, limit int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 24
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// ListRepos returns a page of the leaderboard with 24h and 7d star growth.
func (q *Queries) ListRepos(ctx context.Context, rq RepoQuery) (model.RepoPage, error) {
	orderBy, ok := repoSorts[rq.Sort]
	if !ok {
		orderBy = repoSorts["stars"]
	}
	limit, offset := pageOffset(rq.Page, rq.Limit)

	rows, err := q.db.Query(ctx, fmt.Sprintf(`
		WITH day AS (
			SELECT DISTINCT ON (repo_id) repo_id, stars FROM star_history
			WHERE recorded_at <= now() - interval '24 hours'
			ORDER BY repo_id, recorded_at DESC
		), week AS (
			SELECT DISTINCT ON (repo_id) repo_id, stars FROM star_history
			WHERE recorded_at <= now() - interval '7 days'
			ORDER BY repo_id, recorded_at DESC
		)
		SELECT r.id, r.full_name, r.owner, r.name, r.description, r.category, r.language, r.topics,
		       r.homepage, r.stars, r.forks, r.open_issues, r.watchers, COALESCE(r.rank, 0),
		       r.created_at, r.pushed_at, r.last_synced, r.source,
		       COALESCE(r.stars - d.stars, 0) AS growth_24h,
		       COALESCE(r.stars - w.stars, 0) AS growth_7d,
		       COUNT(*) OVER () AS total
		FROM repos r
		LEFT JOIN day d ON d.repo_id = r.id
		LEFT JOIN week w ON w.repo_id = r.id
		WHERE ($1::text = '' OR r.category = $1)
		  AND ($2::text = '' OR r.full_name ILIKE '%%' || $2 || '%%' OR r.description ILIKE '%%' || $2 || '%%')
		ORDER BY %s
		LIMIT $3 OFFSET $4`, orderBy),
		rq.Category, rq.Search, limit, offset)
	if err != nil {
		return model.RepoPage{}, err
	}
	defer rows.Close()

	page := model.RepoPage{Repos: []model.RepoWithGrowth{}}
	for rows.Next() {
		var r model.RepoWithGrowth
		var category, source string
		var topics []byte
		var createdAt, pushedAt *time.Time
		if err := rows.Scan(&r.ID, &r.FullName, &r.Owner, &r.Name, &r.Description, &category, &r.Language, &topics,
			&r.Homepage, &r.Stars, &r.Forks, &r.OpenIssues, &r.Watchers, &r.Rank,
			&createdAt, &pushedAt, &r.LastSynced, &source,
			&r.Growth24h, &r.Growth7d, &page.Total); err != nil {
			return model.RepoPage{}, err
		}
		r.Category = model.Category(category)
		r.Source = model.Source(source)
		r.RepoCreatedAt = derefTime(createdAt)
		r.PushedAt = derefTime(pushedAt)
		if err := json.Unmarshal(topics, &r.Topics); err != nil {
			return model.RepoPage{}, fmt.Errorf("decode topics of %s: %w", r.FullName, err)
		}
		page.Repos = append(page.Repos, r)
	}
	if err := rows.Err(); err != nil {
		return model.RepoPage{}, err
	}

	page.LastSynced, err = q.GetLastSynced(ctx)
	return page, err
}

// ListIssues returns a page of open issues with difficulty statistics.
func (q *Queries) ListIssues(ctx context.Context, iq IssueQuery) (model.IssuePage, error) {
	orderBy, ok := issueSorts[iq.Sort]
	if !ok {
		orderBy = issueSorts["solvability"]
	}
	limit, offset := pageOffset(iq.Page, iq.Limit)

	rows, err := q.db.Query(ctx, fmt.Sprintf(`
		SELECT i.github_id, i.repo_id, i.repo_full_name, i.number, i.title, i.body, i.html_url, i.state,
		       i.labels, i.comments, i.created_at, i.updated_at, i.closed_at, i.opportunity_type, i.content_hash,
		       i.llm_summary, i.llm_solvability, i.llm_difficulty, i.is_aiml_issue, i.aiml_categories,
		       i.neo_approach, r.stars, r.language, r.category,
		       COUNT(*) OVER () AS total
		FROM issues i
		JOIN repos r ON r.id = i.repo_id
		WHERE i.state = 'open'
		  AND ($1::text = '' OR i.llm_difficulty = $1)
		  AND ($2::text = '' OR i.labels ? $2)
		  AND ($3::text = '' OR i.title ILIKE '%%' || $3 || '%%' OR i.llm_summary ILIKE '%%' || $3 || '%%')
		  AND (NOT $4::boolean OR i.is_aiml_issue)
		ORDER BY %s
		LIMIT $5 OFFSET $6`, orderBy),
		iq.Difficulty, iq.Label, iq.Search, iq.AIML, limit, offset)
	if err != nil {
		return model.IssuePage{}, err
	}
	defer rows.Close()

	page := model.IssuePage{Issues: []model.IssueListItem{}}
	for rows.Next() {
		item, total, err := scanIssueListItem(rows)
		if err != nil {
			return model.IssuePage{}, err
		}
		page.Total = total
		page.Issues = append(page.Issues, item)
	}
	if err := rows.Err(); err != nil {
		return model.IssuePage{}, err
	}

	if page.Stats, err = q.issueStats(ctx); err != nil {
		return model.IssuePage{}, err
	}
	page.LastSynced, err = q.GetLastSynced(ctx)
	return page, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssueListItem(row rowScanner) (model.IssueListItem, int, error) {
	var it model.IssueListItem
	var labels, aimlCategories, plan []byte
	var createdAt, updatedAt *time.Time
	var kind, category string
	var difficulty *string
	var total int

	err := row.Scan(&it.GithubID, &it.RepoID, &it.RepoFullName, &it.Number, &it.Title, &it.Body, &it.HTMLURL, &it.State,
		&labels, &it.Comments, &createdAt, &updatedAt, &it.ClosedAt, &kind, &it.ContentHash,
		&it.Summary, &it.Solvability, &difficulty, &it.IsAIML, &aimlCategories,
		&plan, &it.RepoStars, &it.RepoLanguage, &category, &total)
	if err != nil {
		return it, 0, err
	}

	it.CreatedAt = derefTime(createdAt)
	it.UpdatedAt = derefTime(updatedAt)
	it.OpportunityType = model.OpportunityType(kind)
	it.RepoCategory = model.Category(category)
	if difficulty != nil {
		d := model.Difficulty(*difficulty)
		it.Difficulty = &d
	}
	if err := json.Unmarshal(labels, &it.Labels); err != nil {
		return it, 0, fmt.Errorf("decode labels of issue %d: %w", it.GithubID, err)
	}
	if len(aimlCategories) > 0 {
		if err := json.Unmarshal(aimlCategories, &it.AimlCategories); err != nil {
			return it, 0, fmt.Errorf("decode categories of issue %d: %w", it.GithubID, err)
		}
	}
	if len(plan) > 0 {
		var p model.BuildPlan
		if err := json.Unmarshal(plan, &p); err != nil {
			return it, 0, fmt.Errorf("decode build plan of issue %d: %w", it.GithubID, err)
		}
		it.BuildPlan = &p
	}
	return it, total, nil
}

func (q *Queries) issueStats(ctx context.Context) (model.IssueStats, error) {
	var s model.IssueStats
	err := q.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE llm_difficulty = 'beginner'),
			COUNT(*) FILTER (WHERE llm_difficulty = 'intermediate'),
			COUNT(*) FILTER (WHERE llm_difficulty = 'advanced'),
			COUNT(*) FILTER (WHERE llm_difficulty IS NULL OR llm_difficulty NOT IN ('beginner', 'intermediate', 'advanced')),
			COUNT(*) FILTER (WHERE is_aiml_issue)
		FROM issues WHERE state = 'open'`,
	).Scan(&s.Beginner, &s.Intermediate, &s.Advanced, &s.Unanalyzed, &s.AIML)
	return s, err
}

// GetStarHistory returns a repository's snapshots recorded since the given time, oldest first.
func (q *Queries) GetStarHistory(ctx context.Context, fullName string, since time.Time) ([]model.HistoryPoint, error) {
	rows, err := q.db.Query(ctx, `
		SELECT h.stars, h.forks, h.recorded_at
		FROM star_history h
		JOIN repos r ON r.id = h.repo_id
		WHERE lower(r.full_name) = lower($1) AND h.recorded_at >= $2
		ORDER BY h.recorded_at ASC`, fullName, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []model.HistoryPoint{}
	for rows.Next() {
		var p model.HistoryPoint
		if err := rows.Scan(&p.Stars, &p.Forks, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

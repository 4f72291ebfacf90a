package model

import "time"

// RepoWithGrowth is a leaderboard row.
type RepoWithGrowth struct {
	Repository
	Growth24h int `json:"growth_24h"`
	Growth7d  int `json:"growth_7d"`
}

// RepoPage is a page of leaderboard rows.
type RepoPage struct {
	Repos      []RepoWithGrowth `json:"repos"`
	Total      int              `json:"total"`
	LastSynced *time.Time       `json:"lastSynced"`
}

// IssueListItem is an open issue joined with its enrichment and repository columns.
type IssueListItem struct {
	Issue
	Summary        *string        `json:"llm_summary"`
	Solvability    *int           `json:"llm_solvability"`
	Difficulty     *Difficulty    `json:"llm_difficulty"`
	IsAIML         bool           `json:"is_aiml_issue"`
	AimlCategories []AimlCategory `json:"aiml_categories"`
	BuildPlan      *BuildPlan     `json:"neo_approach"`
	RepoStars      int            `json:"repo_stars"`
	RepoLanguage   *string        `json:"repo_language"`
	RepoCategory   Category       `json:"repo_category"`
}

// IssueStats counts open issues per difficulty tier.
type IssueStats struct {
	Beginner     int `json:"beginner"`
	Intermediate int `json:"intermediate"`
	Advanced     int `json:"advanced"`
	Unanalyzed   int `json:"unanalyzed"`
	AIML         int `json:"aiml"`
}

// IssuePage is a page of open issues.
type IssuePage struct {
	Issues     []IssueListItem `json:"issues"`
	Total      int             `json:"total"`
	Stats      IssueStats      `json:"stats"`
	LastSynced *time.Time      `json:"lastSynced"`
}

// HistoryPoint is one star-history sample for charts.
type HistoryPoint struct {
	Stars      int       `json:"stars"`
	Forks      int       `json:"forks"`
	RecordedAt time.Time `json:"recorded_at"`
}

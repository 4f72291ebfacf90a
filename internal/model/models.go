// internal/model/models.go
package model

import (
	"time"
)

// Category groups tracked repositories on the leaderboard.
type Category string

const (
	CategoryAIML Category = "AI/ML"
	CategorySWE  Category = "SWE"
)

// Source records how a repository entered the leaderboard.
type Source string

const (
	SourceStatic     Source = "static"
	SourceDiscovered Source = "discovered"
)

// Issue states as reported by GitHub.
const (
	IssueStateOpen   = "open"
	IssueStateClosed = "closed"
)

// Repository represents the metadata of a GitHub repository.
type Repository struct {
	ID            int64     `json:"id"`
	FullName      string    `json:"full_name"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	Category      Category  `json:"category"`
	Language      *string   `json:"language"`
	Topics        []string  `json:"topics"`
	Homepage      *string   `json:"homepage"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	OpenIssues    int       `json:"open_issues"`
	Watchers      int       `json:"watchers"`
	Rank          int       `json:"rank"`
	RepoCreatedAt time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	LastSynced    time.Time `json:"last_synced"`
	Source        Source    `json:"source"`
}

// StarSnapshot is a point-in-time observation of a repository's stars and forks.
type StarSnapshot struct {
	RepoID     int64     `json:"repo_id"`
	Stars      int       `json:"stars"`
	Forks      int       `json:"forks"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Issue is a GitHub issue as fetched from the API, after pull requests are removed.
type Issue struct {
	GithubID        int64           `json:"github_id"`
	RepoID          int64           `json:"repo_id"`
	RepoFullName    string          `json:"repo_full_name"`
	Number          int             `json:"number"`
	Title           string          `json:"title"`
	Body            string          `json:"body"`
	HTMLURL         string          `json:"html_url"`
	State           string          `json:"state"`
	Labels          []string        `json:"labels"`
	Comments        int             `json:"comments"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ClosedAt        *time.Time      `json:"closed_at"`
	OpportunityType OpportunityType `json:"opportunity_type"`
	ContentHash     string          `json:"content_hash"`
}

// IssueSyncCandidate is a repository considered for the next issue sync batch.
type IssueSyncCandidate struct {
	RepoID         int64
	FullName       string
	Owner          string
	Name           string
	Source         Source
	Watermark      *time.Time
	IssuesSyncedAt *time.Time
}

// SyncStatus summarises pending work for operators.
type SyncStatus struct {
	ReposPendingIssueSync int        `json:"reposPendingIssueSync"`
	PendingSummary        int        `json:"pendingLlmEnrichment"`
	PendingAIML           int        `json:"pendingAimlClassification"`
	PendingBuildPlan      int        `json:"pendingNeoApproaches"`
	TotalIssues           int        `json:"totalIssues"`
	LastSynced            *time.Time `json:"lastSynced"`
}

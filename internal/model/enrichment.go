package model

import "time"

// OpportunityType is derived from issue labels.
type OpportunityType string

const (
	OpportunityBug         OpportunityType = "bug"
	OpportunityFeature     OpportunityType = "feature"
	OpportunityImprovement OpportunityType = "improvement"
)

// OpportunityTypes lists the types in the order insights are presented.
var OpportunityTypes = []OpportunityType{OpportunityBug, OpportunityFeature, OpportunityImprovement}

// Difficulty is the tier assigned by the summary pass.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// DifficultyForSolvability maps a 0-10 solvability score onto its band.
func DifficultyForSolvability(score int) Difficulty {
	switch {
	case score >= 7:
		return DifficultyBeginner
	case score >= 4:
		return DifficultyIntermediate
	default:
		return DifficultyAdvanced
	}
}

// AimlCategory tags an AI/ML relevant issue.
type AimlCategory string

const (
	AimlAgentBuilding    AimlCategory = "agent_building"
	AimlMemoryContext    AimlCategory = "memory_context"
	AimlModelIntegration AimlCategory = "model_integration"
	AimlTraining         AimlCategory = "training"
	AimlInference        AimlCategory = "inference"
	AimlEmbeddings       AimlCategory = "embeddings"
	AimlEvaluation       AimlCategory = "evaluation"
	AimlToolsPlugins     AimlCategory = "tools_plugins"
)

// AimlCategories is the fixed enumeration accepted from the classifier.
var AimlCategories = []AimlCategory{
	AimlAgentBuilding, AimlMemoryContext, AimlModelIntegration, AimlTraining,
	AimlInference, AimlEmbeddings, AimlEvaluation, AimlToolsPlugins,
}

// Effort is the build-plan effort estimate.
type Effort string

const (
	EffortUnderHour  Effort = "under_1h"
	EffortFewHours   Effort = "1_4h"
	EffortOneDay     Effort = "1_day"
	EffortFewDays    Effort = "2_3_days"
	EffortWeekOrMore Effort = "1_week_plus"
)

var Efforts = []Effort{EffortUnderHour, EffortFewHours, EffortOneDay, EffortFewDays, EffortWeekOrMore}

// Urgency ranks an insight theme.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// EnrichmentPass names one of the LLM passes over issues.
type EnrichmentPass string

const (
	PassSummary   EnrichmentPass = "summary"
	PassAIML      EnrichmentPass = "aiml"
	PassBuildPlan EnrichmentPass = "build_plan"
)

// PendingIssue is an issue selected for an enrichment pass.
type PendingIssue struct {
	ID          int64
	Title       string
	Body        string
	ContentHash string
}

// IssueSummary is the validated output of the summary pass for one issue.
type IssueSummary struct {
	ID          int64
	Summary     string
	Solvability int
	Difficulty  Difficulty
}

// AimlClassification is the validated output of the AI/ML pass for one issue.
type AimlClassification struct {
	ID         int64
	IsAIML     bool
	Categories []AimlCategory
}

// BuildPlan describes how an autonomous coding agent would resolve an issue.
type BuildPlan struct {
	Summary    string   `json:"summary"`
	Steps      []string `json:"steps"`
	Effort     Effort   `json:"effort"`
	Confidence int      `json:"confidence"`
}

// IssueBuildPlan pairs a plan with the issue it was generated for.
type IssueBuildPlan struct {
	ID   int64
	Plan BuildPlan
}

// Theme is one clustered opportunity card.
type Theme struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	IssueCount        int     `json:"issue_count"`
	TotalComments     int     `json:"total_comments"`
	Urgency           Urgency `json:"urgency"`
	SuggestedApproach string  `json:"suggested_approach"`
}

// OpportunityInsights is the stored insight payload of a repository.
// A nil category means the repository had no open issues of that type.
type OpportunityInsights struct {
	Bugs         []Theme   `json:"bugs"`
	Features     []Theme   `json:"features"`
	Improvements []Theme   `json:"improvements"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// InsightCandidate is a repository considered for insight synthesis.
type InsightCandidate struct {
	RepoID              int64
	FullName            string
	Stars               int
	IssuesChangedAt     *time.Time
	InsightsGeneratedAt *time.Time
	Insights            []byte
}

// InsightIssue is an open issue fed into insight synthesis.
type InsightIssue struct {
	Number          int
	Title           string
	Summary         string
	Comments        int
	OpportunityType OpportunityType
}

package enrich

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"repo-leaderboard/internal/llm"
	"repo-leaderboard/internal/model"
)

const (
	summaryLimit     = 50
	summaryBatchSize = 5
	summaryBodyLimit = 500
	summaryMaxTokens = 1024
	summaryMaxLength = 120

	aimlLimit     = 100
	aimlBatchSize = 10
	aimlBodyLimit = 300
	aimlMaxTokens = 1024

	buildPlanLimit     = 30
	buildPlanBatchSize = 5
	buildPlanBodyLimit = 600
	buildPlanMaxTokens = 2048
	buildPlanMaxSteps  = 4
)

// Summarize runs the summary, solvability and difficulty pass.
func (e *Enricher) Summarize(ctx context.Context) (PassResult, error) {
	spec := passSpec{pass: model.PassSummary, limit: summaryLimit, batchSize: summaryBatchSize}
	return e.runPass(ctx, spec, e.llms.Summary, e.summarizeBatch)
}

// ClassifyAIML runs the AI/ML relevance pass.
func (e *Enricher) ClassifyAIML(ctx context.Context) (PassResult, error) {
	spec := passSpec{pass: model.PassAIML, limit: aimlLimit, batchSize: aimlBatchSize}
	return e.runPass(ctx, spec, e.llms.AIML, e.classifyBatch)
}

// PlanBuilds runs the build-plan pass.
func (e *Enricher) PlanBuilds(ctx context.Context) (PassResult, error) {
	spec := passSpec{pass: model.PassBuildPlan, limit: buildPlanLimit, batchSize: buildPlanBatchSize}
	return e.runPass(ctx, spec, e.llms.BuildPlan, e.planBatch)
}

type summaryReply struct {
	ID          int64   `json:"id"`
	Summary     string  `json:"summary"`
	Solvability float64 `json:"solvability"`
	Difficulty  string  `json:"difficulty"`
}

type aimlReply struct {
	ID         int64    `json:"id"`
	IsAIML     bool     `json:"is_aiml"`
	Categories []string `json:"categories"`
}

type buildPlanReply struct {
	ID         int64    `json:"id"`
	Summary    string   `json:"summary"`
	Steps      []string `json:"steps"`
	Effort     string   `json:"effort"`
	Confidence float64  `json:"confidence"`
}

func (e *Enricher) summarizeBatch(ctx context.Context, c llm.Completer, batch []model.PendingIssue) (int, bool, error) {
	text, err := c.Complete(ctx, summaryPrompt(batch), summaryMaxTokens)
	if err != nil {
		return 0, false, err
	}
	replies, salvaged, err := llm.DecodeArray[summaryReply](text)
	if err != nil {
		return 0, false, err
	}

	hashes := hashesByID(batch)
	at := e.now()
	saved := 0
	for _, r := range replies {
		hash, ok := hashes[r.ID]
		if !ok {
			continue
		}
		s, ok := validateSummary(r)
		if !ok {
			continue
		}
		if err := e.store.SaveIssueSummary(ctx, s, hash, at); err != nil {
			return saved, salvaged, fmt.Errorf("save summary for issue %d: %w", r.ID, err)
		}
		saved++
	}
	return saved, salvaged, nil
}

// validateSummary clamps the score to 0-10 and derives the difficulty from
// its band, so the tier always agrees with the score.
func validateSummary(r summaryReply) (model.IssueSummary, bool) {
	summary := truncate(strings.TrimSpace(r.Summary), summaryMaxLength)
	if summary == "" {
		return model.IssueSummary{}, false
	}
	score := clampScore(r.Solvability, 0, 10)
	return model.IssueSummary{
		ID:          r.ID,
		Summary:     summary,
		Solvability: score,
		Difficulty:  model.DifficultyForSolvability(score),
	}, true
}

func (e *Enricher) classifyBatch(ctx context.Context, c llm.Completer, batch []model.PendingIssue) (int, bool, error) {
	text, err := c.Complete(ctx, aimlPrompt(batch), aimlMaxTokens)
	if err != nil {
		return 0, false, err
	}
	replies, salvaged, err := llm.DecodeArray[aimlReply](text)
	if err != nil {
		return 0, false, err
	}

	hashes := hashesByID(batch)
	at := e.now()
	saved := 0
	for _, r := range replies {
		hash, ok := hashes[r.ID]
		if !ok {
			continue
		}
		if err := e.store.SaveAimlClassification(ctx, validateAiml(r), hash, at); err != nil {
			return saved, salvaged, fmt.Errorf("save classification for issue %d: %w", r.ID, err)
		}
		saved++
	}
	return saved, salvaged, nil
}

// validateAiml keeps only known categories, once each. Non-AI/ML issues carry none.
func validateAiml(r aimlReply) model.AimlClassification {
	out := model.AimlClassification{ID: r.ID, IsAIML: r.IsAIML}
	if !r.IsAIML {
		return out
	}
	for _, raw := range r.Categories {
		cat := model.AimlCategory(strings.ToLower(strings.TrimSpace(raw)))
		if slices.Contains(model.AimlCategories, cat) && !slices.Contains(out.Categories, cat) {
			out.Categories = append(out.Categories, cat)
		}
	}
	return out
}

func (e *Enricher) planBatch(ctx context.Context, c llm.Completer, batch []model.PendingIssue) (int, bool, error) {
	text, err := c.Complete(ctx, buildPlanPrompt(batch), buildPlanMaxTokens)
	if err != nil {
		return 0, false, err
	}
	replies, salvaged, err := llm.DecodeArray[buildPlanReply](text)
	if err != nil {
		return 0, false, err
	}

	hashes := hashesByID(batch)
	at := e.now()
	saved := 0
	for _, r := range replies {
		hash, ok := hashes[r.ID]
		if !ok {
			continue
		}
		plan, ok := validateBuildPlan(r)
		if !ok {
			e.logger.Debug("Dropping invalid build plan", "issue_id", r.ID, "effort", r.Effort)
			continue
		}
		if err := e.store.SaveBuildPlan(ctx, plan, hash, at); err != nil {
			return saved, salvaged, fmt.Errorf("save build plan for issue %d: %w", r.ID, err)
		}
		saved++
	}
	return saved, salvaged, nil
}

// validateBuildPlan rejects plans with no summary, no steps or an unknown
// effort. Steps are capped and confidence is clamped to 1-10.
func validateBuildPlan(r buildPlanReply) (model.IssueBuildPlan, bool) {
	effort := model.Effort(strings.TrimSpace(r.Effort))
	if !slices.Contains(model.Efforts, effort) {
		return model.IssueBuildPlan{}, false
	}
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return model.IssueBuildPlan{}, false
	}
	var steps []string
	for _, s := range r.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
		if len(steps) == buildPlanMaxSteps {
			break
		}
	}
	if len(steps) == 0 {
		return model.IssueBuildPlan{}, false
	}
	return model.IssueBuildPlan{
		ID: r.ID,
		Plan: model.BuildPlan{
			Summary:    summary,
			Steps:      steps,
			Effort:     effort,
			Confidence: clampScore(r.Confidence, 1, 10),
		},
	}, true
}

func summaryPrompt(batch []model.PendingIssue) string {
	return `For each GitHub issue below, reply with a JSON array and nothing else. One object per issue:
{ "id": <number>, "summary": "<one sentence, at most 120 characters>", "solvability": <0-10>, "difficulty": "<beginner|intermediate|advanced>" }

Solvability is how easily an outside contributor could resolve the issue:
- beginner (7-10): documentation, small bugs, tests, typos
- intermediate (4-6): moderate features, refactors, fixes that need some codebase context
- advanced (0-3): architectural changes, vague requirements, deep domain knowledge

` + formatIssues(batch, summaryBodyLimit) + `

Reply with the JSON array only.`
}

func aimlPrompt(batch []model.PendingIssue) string {
	cats := make([]string, len(model.AimlCategories))
	for i, c := range model.AimlCategories {
		cats[i] = string(c)
	}
	return `Decide for each GitHub issue below whether it concerns AI or machine learning work.

Allowed categories (include only those that apply, or an empty array when the issue is not AI/ML):
` + strings.Join(cats, ", ") + `

Reply with a JSON array and nothing else:
[{ "id": <number>, "is_aiml": <true|false>, "categories": [<category>, ...] }]

` + formatIssues(batch, aimlBodyLimit) + `

Reply with the JSON array only.`
}

func buildPlanPrompt(batch []model.PendingIssue) string {
	efforts := make([]string, len(model.Efforts))
	for i, e := range model.Efforts {
		efforts[i] = string(e)
	}
	return `You are planning work for an autonomous coding agent. For each GitHub issue below, describe how the agent would resolve it.
Reply with a JSON array and nothing else. One object per issue:
{ "id": <number>, "summary": "<one sentence approach>", "steps": ["<2 to 4 short steps, each starting with a verb>"], "effort": "<` + strings.Join(efforts, "|") + `>", "confidence": <1-10> }

Confidence is how likely the agent is to land a correct fix without human help.

` + formatIssues(batch, buildPlanBodyLimit) + `

Reply with the JSON array only.`
}

// formatIssues renders a batch as numbered issue blocks with truncated bodies.
func formatIssues(batch []model.PendingIssue, bodyLimit int) string {
	blocks := make([]string, len(batch))
	for i, p := range batch {
		blocks[i] = fmt.Sprintf("Issue %d (id=%d):\nTitle: %s\nBody: %s",
			i+1, p.ID, p.Title, truncate(strings.TrimSpace(p.Body), bodyLimit))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

func clampScore(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return lo
	}
	n := int(math.Round(v))
	return max(lo, min(hi, n))
}

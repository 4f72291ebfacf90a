package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"repo-leaderboard/internal/llm"
	"repo-leaderboard/internal/model"
)

const (
	insightsMaxTokens = 2048
	maxThemes         = 4
)

// InsightResult counts the work done by one insight synthesis run.
type InsightResult struct {
	Candidates int
	Generated  int
	Skipped    int
}

// NeedsInsights reports whether a repository's insights must be (re)generated:
// never generated, older than the last change to the repository's issue data,
// or stored in a shape this version cannot read. A sync that changed nothing
// does not make insights stale.
func NeedsInsights(c model.InsightCandidate) bool {
	if c.InsightsGeneratedAt == nil {
		return true
	}
	if c.IssuesChangedAt != nil && c.IssuesChangedAt.After(*c.InsightsGeneratedAt) {
		return true
	}
	return !isCurrentInsights(c.Insights)
}

func isCurrentInsights(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for _, key := range []string{"bugs", "features", "improvements"} {
		if _, ok := fields[key]; !ok {
			return false
		}
	}
	return true
}

// SynthesizeInsights clusters the open issues of the top stale repositories
// into themes. A repository whose reply cannot be parsed is skipped without a write.
func (e *Enricher) SynthesizeInsights(ctx context.Context) (InsightResult, error) {
	var result InsightResult
	c := e.llms.Insights
	if c == nil {
		e.logger.Debug("Insight synthesis disabled, skipping")
		return result, nil
	}

	all, err := e.store.ListInsightCandidates(ctx)
	if err != nil {
		return result, fmt.Errorf("list insight candidates: %w", err)
	}
	var due []model.InsightCandidate
	for _, cand := range all {
		if NeedsInsights(cand) {
			due = append(due, cand)
		}
		if len(due) == e.opts.InsightsRepoLimit {
			break
		}
	}
	result.Candidates = len(due)

	for i, cand := range due {
		logger := e.logger.With("repo", cand.FullName)
		if err := e.synthesizeRepo(ctx, c, cand); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Skipped++
			logger.Warn("Skipping insights", "error", err)
		} else {
			result.Generated++
			logger.Info("Generated insights")
		}

		if i < len(due)-1 {
			if err := sleepCtx(ctx, e.opts.BatchDelay); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (e *Enricher) synthesizeRepo(ctx context.Context, c llm.Completer, cand model.InsightCandidate) error {
	issues, err := e.store.ListInsightIssues(ctx, cand.RepoID, e.opts.InsightsIssueLimit)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	if len(issues) == 0 {
		return errors.New("no open issues")
	}

	text, err := c.Complete(ctx, insightsPrompt(cand.FullName, issues), insightsMaxTokens)
	if err != nil {
		return err
	}
	reply, err := llm.DecodeObject[model.OpportunityInsights](text)
	if err != nil {
		return err
	}

	insights := groundInsights(reply, issues)
	insights.GeneratedAt = e.now()
	payload, err := json.Marshal(insights)
	if err != nil {
		return err
	}
	return e.store.SaveRepoInsights(ctx, cand.RepoID, payload, insights.GeneratedAt)
}

// groundInsights drops every category that has no supporting issues, so it is
// stored as null, and cleans the themes of the rest.
func groundInsights(reply model.OpportunityInsights, issues []model.InsightIssue) model.OpportunityInsights {
	present := make(map[model.OpportunityType]bool)
	for _, i := range issues {
		present[i.OpportunityType] = true
	}
	pick := func(kind model.OpportunityType, themes []model.Theme) []model.Theme {
		if !present[kind] {
			return nil
		}
		return cleanThemes(themes)
	}
	return model.OpportunityInsights{
		Bugs:         pick(model.OpportunityBug, reply.Bugs),
		Features:     pick(model.OpportunityFeature, reply.Features),
		Improvements: pick(model.OpportunityImprovement, reply.Improvements),
	}
}

func cleanThemes(themes []model.Theme) []model.Theme {
	out := make([]model.Theme, 0, len(themes))
	for _, t := range themes {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		t.Urgency = model.Urgency(strings.ToLower(strings.TrimSpace(string(t.Urgency))))
		switch t.Urgency {
		case model.UrgencyHigh, model.UrgencyMedium, model.UrgencyLow:
		default:
			t.Urgency = model.UrgencyMedium
		}
		t.IssueCount = max(t.IssueCount, 1)
		t.TotalComments = max(t.TotalComments, 0)
		out = append(out, t)
		if len(out) == maxThemes {
			break
		}
	}
	return out
}

func insightsPrompt(fullName string, issues []model.InsightIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Below are the most discussed open issues of the GitHub repository %s, tagged by type.\n", fullName)
	b.WriteString(`Group them into 2 to 4 themes per type (bug, feature, improvement). Only build themes from the listed issues.
If a type has no issues, set it to null.

Reply with a single JSON object and nothing else:
{
  "bugs": [{ "title": "...", "description": "...", "issue_count": <n>, "total_comments": <n>, "urgency": "<high|medium|low>", "suggested_approach": "<technical approach>" }] | null,
  "features": [ ...same shape... ] | null,
  "improvements": [ ...same shape... ] | null
}

Issues:
`)
	for _, i := range issues {
		fmt.Fprintf(&b, "- [%s] #%d %s (comments: %d)", i.OpportunityType, i.Number, i.Title, i.Comments)
		if i.Summary != "" {
			fmt.Fprintf(&b, ": %s", i.Summary)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

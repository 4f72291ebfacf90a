package syncer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"repo-leaderboard/internal/model"
)

var aimlTopics = map[string]bool{
	"llm": true, "large-language-model": true, "language-model": true, "machine-learning": true,
	"deep-learning": true, "neural-network": true, "nlp": true, "natural-language-processing": true,
	"computer-vision": true, "generative-ai": true, "stable-diffusion": true, "ai-agent": true,
	"rag": true, "retrieval-augmented-generation": true, "embeddings": true, "fine-tuning": true,
	"transformers": true, "pytorch": true, "tensorflow": true, "reinforcement-learning": true,
	"chatgpt": true, "gpt": true, "openai": true, "huggingface": true, "diffusion-model": true,
	"multimodal": true, "ai": true, "artificial-intelligence": true, "ml": true, "inference": true,
	"quantization": true,
}

var aimlLanguages = map[string]bool{"Python": true, "Jupyter Notebook": true}

var aimlNameRe = regexp.MustCompile(`llm|gpt|ai|ml|model|train|infer|diffus|embed|vector`)

// TrendingQuery is one repository search run during discovery.
type TrendingQuery struct {
	Label string
	Query string
}

// TrendingQueries builds the discovery searches relative to now.
func TrendingQueries(now time.Time) []TrendingQuery {
	since3m := now.AddDate(0, -3, 0).Format("2006-01-02")
	since6m := now.AddDate(0, -6, 0).Format("2006-01-02")
	return []TrendingQuery{
		{Label: "new Python", Query: fmt.Sprintf("created:>%s stars:>500 language:Python", since3m)},
		{Label: "new LLM", Query: fmt.Sprintf("created:>%s stars:>300 topic:llm", since3m)},
		{Label: "new AI agents", Query: fmt.Sprintf("created:>%s stars:>300 topic:ai-agent", since3m)},
		{Label: "new GenAI", Query: fmt.Sprintf("created:>%s stars:>300 topic:generative-ai", since3m)},
		{Label: "new TS", Query: fmt.Sprintf("created:>%s stars:>500 language:TypeScript", since3m)},
		{Label: "new Rust", Query: fmt.Sprintf("created:>%s stars:>500 language:Rust", since3m)},
		{Label: "new Go", Query: fmt.Sprintf("created:>%s stars:>500 language:Go", since3m)},
		{Label: "viral recent", Query: fmt.Sprintf("pushed:>%s stars:>5000 created:>%s", since6m, since6m)},
	}
}

// Categorize decides AI/ML vs SWE. A topic allowlist match wins; otherwise
// Python and notebook repositories with topics fall back to a name pattern.
func Categorize(topics []string, language *string, fullName string) model.Category {
	for _, t := range topics {
		if aimlTopics[strings.ToLower(t)] {
			return model.CategoryAIML
		}
	}
	if language != nil && aimlLanguages[*language] && len(topics) > 0 {
		if aimlNameRe.MatchString(strings.ToLower(fullName)) {
			return model.CategoryAIML
		}
	}
	return model.CategorySWE
}

// DiscoverTrending runs the trending searches and upserts new repositories as
// discovered. Failed searches are logged and skipped. It returns the number of
// repositories stored.
func (s *Syncer) DiscoverTrending(ctx context.Context) (int, error) {
	static := make(map[string]bool, len(s.staticRepos))
	for _, r := range s.staticRepos {
		static[strings.ToLower(r.FullName())] = true
	}
	seen := make(map[string]bool)

	queries := TrendingQueries(s.now())
	s.logger.Info("Starting trending discovery", "queries", len(queries))

	discovered := 0
	for i, q := range queries {
		logger := s.logger.With("query", q.Label)

		results, err := s.ghClient.SearchRepositories(ctx, q.Query, s.opts.TrendingPerPage)
		if err != nil {
			if ctx.Err() != nil {
				return discovered, ctx.Err()
			}
			logger.Warn("Trending search failed", "error", err)
			results = nil
		}

		added := 0
		for _, repo := range results {
			key := strings.ToLower(repo.FullName)
			if key == "" || seen[key] || static[key] {
				continue
			}
			seen[key] = true

			if err := s.storeDiscovered(ctx, repo); err != nil {
				logger.Error("Failed to store discovered repository", "repo", repo.FullName, "error", err)
				continue
			}
			added++
		}
		discovered += added
		logger.Debug("Trending search done", "results", len(results), "added", added)

		if i < len(queries)-1 {
			if err := sleepCtx(ctx, s.opts.TrendingQueryDelay); err != nil {
				return discovered, err
			}
		}
	}

	if discovered > 0 {
		if err := s.store.RecomputeRanks(ctx); err != nil {
			return discovered, fmt.Errorf("recompute ranks: %w", err)
		}
	}
	s.store.InvalidateCache()
	s.logger.Info("Trending discovery finished", "discovered", discovered)
	return discovered, nil
}

func (s *Syncer) storeDiscovered(ctx context.Context, repo *model.Repository) error {
	now := s.now()
	repo.Category = Categorize(repo.Topics, repo.Language, repo.FullName)
	repo.Source = model.SourceDiscovered
	repo.LastSynced = now

	repoID, err := s.store.UpsertRepository(ctx, repo)
	if err != nil {
		return err
	}
	if _, err := s.store.InsertStarHistorySnapshot(ctx, repoID, repo.Stars, repo.Forks, now); err != nil {
		return fmt.Errorf("record star snapshot: %w", err)
	}
	return nil
}

package syncer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-leaderboard/internal/model"
)

func strPtr(s string) *string { return &s }

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		topics   []string
		language *string
		fullName string
		want     model.Category
	}{
		{"allowlisted topic", []string{"cli", "LLM"}, strPtr("Go"), "acme/tool", model.CategoryAIML},
		{"python with topics and ai name", []string{"tooling"}, strPtr("Python"), "acme/vector-store", model.CategoryAIML},
		{"notebook with topics and model name", []string{"course"}, strPtr("Jupyter Notebook"), "acme/model-zoo", model.CategoryAIML},
		{"python without topics", nil, strPtr("Python"), "acme/llm-kit", model.CategorySWE},
		{"ai name in another language", []string{"web"}, strPtr("Rust"), "acme/gpt-proxy", model.CategorySWE},
		{"no signal", []string{"web"}, nil, "acme/widget", model.CategorySWE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.topics, tt.language, tt.fullName))
		})
	}
}

func TestTrendingQueries(t *testing.T) {
	queries := TrendingQueries(testNow)

	require.Len(t, queries, 8)
	assert.Equal(t, "created:>2024-03-01 stars:>500 language:Python", queries[0].Query)
	assert.Equal(t, "pushed:>2023-12-01 stars:>5000 created:>2023-12-01", queries[7].Query)
}

func TestSyncer_DiscoverTrending(t *testing.T) {
	ctx := context.Background()
	store, gh := new(MockStore), new(MockGitHub)
	s := newTestSyncer(t, store, gh, []string{"Acme/Agents"}, nil)

	newRepo := &model.Repository{FullName: "newco/fastkv", Language: strPtr("Go"), Topics: []string{"database"}, Stars: 900, Forks: 12}
	aiRepo := &model.Repository{FullName: "newco/agentkit", Topics: []string{"ai-agent"}, Stars: 700, Forks: 5}
	staticDup := &model.Repository{FullName: "acme/agents", Stars: 50}

	gh.On("SearchRepositories", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "language:Python")
	}), 20).Return(nil, errors.New("403 secondary rate limit"))
	gh.On("SearchRepositories", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "topic:llm")
	}), 20).Return([]*model.Repository{aiRepo, staticDup}, nil)
	gh.On("SearchRepositories", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.Contains(q, "language:Go")
	}), 20).Return([]*model.Repository{newRepo, aiRepo}, nil)
	gh.On("SearchRepositories", mock.Anything, mock.Anything, 20).Return([]*model.Repository{}, nil)

	store.On("UpsertRepository", mock.Anything, mock.MatchedBy(func(r *model.Repository) bool {
		return r.FullName == "newco/agentkit" && r.Category == model.CategoryAIML && r.Source == model.SourceDiscovered
	})).Return(int64(10), nil).Once()
	store.On("UpsertRepository", mock.Anything, mock.MatchedBy(func(r *model.Repository) bool {
		return r.FullName == "newco/fastkv" && r.Category == model.CategorySWE && r.Source == model.SourceDiscovered
	})).Return(int64(11), nil).Once()
	store.On("InsertStarHistorySnapshot", mock.Anything, int64(10), 700, 5, testNow).Return(true, nil)
	store.On("InsertStarHistorySnapshot", mock.Anything, int64(11), 900, 12, testNow).Return(true, nil)
	store.On("RecomputeRanks", ctx).Return(nil).Once()
	store.On("InvalidateCache").Return().Once()

	discovered, err := s.DiscoverTrending(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, discovered)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "UpsertRepository", 2)
}

// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-leaderboard/internal/database"
	custom_errors "repo-leaderboard/internal/errors"
	"repo-leaderboard/internal/github"
	"repo-leaderboard/internal/model"
)

// MockStore is a mock of the Store interface.
type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) UpsertRepository(ctx context.Context, repo *model.Repository) (int64, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) GetRepoLastSynced(ctx context.Context) (map[string]time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]time.Time), args.Error(1)
}
func (m *MockStore) InsertStarHistorySnapshot(ctx context.Context, repoID int64, stars, forks int, now time.Time) (bool, error) {
	args := m.Called(ctx, repoID, stars, forks, now)
	return args.Bool(0), args.Error(1)
}
func (m *MockStore) RecomputeRanks(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockStore) ListIssueSyncCandidates(ctx context.Context) ([]model.IssueSyncCandidate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.IssueSyncCandidate), args.Error(1)
}
func (m *MockStore) CommitIssueSync(ctx context.Context, c database.IssueSyncCommit) (int64, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) InvalidateCache() {
	m.Called()
}

// MockGitHub is a mock of the GitHubClient interface.
type MockGitHub struct {
	mock.Mock
}

var _ GitHubClient = (*MockGitHub)(nil)

func (m *MockGitHub) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	args := m.Called(ctx, owner, name)
	repo, _ := args.Get(0).(*model.Repository)
	return repo, args.Error(1)
}
func (m *MockGitHub) ListIssues(ctx context.Context, owner, name string, q github.IssueQuery) (github.IssuePage, error) {
	args := m.Called(ctx, owner, name, q)
	return args.Get(0).(github.IssuePage), args.Error(1)
}
func (m *MockGitHub) SearchRepositories(ctx context.Context, query string, perPage int) ([]*model.Repository, error) {
	args := m.Called(ctx, query, perPage)
	repos, _ := args.Get(0).([]*model.Repository)
	return repos, args.Error(1)
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestSyncer(t *testing.T, store Store, gh GitHubClient, aiml, swe []string) *Syncer {
	t.Helper()
	s, err := NewSyncer(store, gh, testLogger(), aiml, swe, Options{
		RepoSyncCooldown:  11 * time.Hour,
		RepoBatchSize:     2,
		TrendingPerPage:   20,
		IssueBatchSize:    20,
		IssueSyncCooldown: 12 * time.Hour,
		IssuePageSize:     100,
	})
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	return s
}

func TestNewSyncer_RejectsInvalidRepos(t *testing.T) {
	_, err := NewSyncer(new(MockStore), new(MockGitHub), testLogger(), []string{"not-a-repo"}, nil, Options{})

	var formatErr *custom_errors.ErrInvalidRepoFormat
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "not-a-repo", formatErr.Repo)
}

func TestSyncer_SyncRepos(t *testing.T) {
	ctx := context.Background()

	t.Run("updates due repos and skips those in cooldown", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, []string{"acme/agents"}, []string{"acme/widget", "acme/fresh"})

		store.On("GetRepoLastSynced", ctx).Return(map[string]time.Time{
			"acme/fresh":  testNow.Add(-time.Hour),
			"acme/widget": testNow.Add(-20 * time.Hour),
		}, nil)
		gh.On("GetRepository", mock.Anything, "acme", "agents").
			Return(&model.Repository{FullName: "acme/agents", Owner: "acme", Name: "agents", Stars: 50, Forks: 2}, nil)
		gh.On("GetRepository", mock.Anything, "acme", "widget").
			Return(&model.Repository{FullName: "acme/widget", Owner: "acme", Name: "widget", Stars: 1200, Forks: 30}, nil)
		store.On("UpsertRepository", mock.Anything, mock.MatchedBy(func(r *model.Repository) bool {
			return r.FullName == "acme/agents" && r.Category == model.CategoryAIML && r.Source == model.SourceStatic
		})).Return(int64(1), nil)
		store.On("UpsertRepository", mock.Anything, mock.MatchedBy(func(r *model.Repository) bool {
			return r.FullName == "acme/widget" && r.Category == model.CategorySWE
		})).Return(int64(2), nil)
		store.On("InsertStarHistorySnapshot", mock.Anything, int64(1), 50, 2, testNow).Return(true, nil)
		store.On("InsertStarHistorySnapshot", mock.Anything, int64(2), 1200, 30, testNow).Return(true, nil)
		store.On("RecomputeRanks", ctx).Return(nil).Once()
		store.On("InvalidateCache").Return().Once()

		updated, err := s.SyncRepos(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, updated)
		gh.AssertNotCalled(t, "GetRepository", mock.Anything, "acme", "fresh")
		store.AssertExpectations(t)
	})

	t.Run("a failing repo is skipped without aborting the batch", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, []string{"acme/broken", "acme/widget"})

		store.On("GetRepoLastSynced", ctx).Return(map[string]time.Time{}, nil)
		gh.On("GetRepository", mock.Anything, "acme", "broken").Return(nil, errors.New("502 bad gateway"))
		gh.On("GetRepository", mock.Anything, "acme", "widget").
			Return(&model.Repository{FullName: "acme/widget", Stars: 1200, Forks: 30}, nil)
		store.On("UpsertRepository", mock.Anything, mock.Anything).Return(int64(2), nil)
		store.On("InsertStarHistorySnapshot", mock.Anything, int64(2), 1200, 30, testNow).Return(false, nil)
		store.On("RecomputeRanks", ctx).Return(nil)
		store.On("InvalidateCache").Return()

		updated, err := s.SyncRepos(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, updated)
	})

	t.Run("nothing due still invalidates the cache but skips ranks", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, []string{"acme/widget"})

		store.On("GetRepoLastSynced", ctx).Return(map[string]time.Time{"acme/widget": testNow}, nil)
		store.On("InvalidateCache").Return().Once()

		updated, err := s.SyncRepos(ctx)

		require.NoError(t, err)
		assert.Zero(t, updated)
		store.AssertNotCalled(t, "RecomputeRanks", mock.Anything)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, []string{"acme/widget"})

		store.On("GetRepoLastSynced", ctx).Return(map[string]time.Time(nil), errors.New("connection refused"))

		_, err := s.SyncRepos(ctx)

		require.Error(t, err)
	})
}

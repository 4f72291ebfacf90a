package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-leaderboard/internal/database"
	"repo-leaderboard/internal/github"
	"repo-leaderboard/internal/model"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestSelectIssueSyncBatch(t *testing.T) {
	t.Run("never synced first, recent syncs excluded", func(t *testing.T) {
		a := model.IssueSyncCandidate{RepoID: 1, FullName: "acme/a", Source: model.SourceStatic}
		b := model.IssueSyncCandidate{RepoID: 2, FullName: "acme/b", Source: model.SourceDiscovered, IssuesSyncedAt: timePtr(testNow.Add(-time.Hour))}
		c := model.IssueSyncCandidate{RepoID: 3, FullName: "acme/c", Source: model.SourceStatic, IssuesSyncedAt: timePtr(testNow.Add(-20 * time.Hour))}

		got := SelectIssueSyncBatch([]model.IssueSyncCandidate{b, c, a}, testNow, 12*time.Hour, 2)

		require.Len(t, got, 2)
		assert.Equal(t, "acme/a", got[0].FullName)
		assert.Equal(t, "acme/c", got[1].FullName)
	})

	t.Run("discovered before static, then stalest first", func(t *testing.T) {
		staticOld := model.IssueSyncCandidate{RepoID: 1, Source: model.SourceStatic, IssuesSyncedAt: timePtr(testNow.Add(-72 * time.Hour))}
		discNewer := model.IssueSyncCandidate{RepoID: 2, Source: model.SourceDiscovered, IssuesSyncedAt: timePtr(testNow.Add(-13 * time.Hour))}
		discOlder := model.IssueSyncCandidate{RepoID: 3, Source: model.SourceDiscovered, IssuesSyncedAt: timePtr(testNow.Add(-30 * time.Hour))}
		neverStatic := model.IssueSyncCandidate{RepoID: 4, Source: model.SourceStatic}
		neverDisc := model.IssueSyncCandidate{RepoID: 5, Source: model.SourceDiscovered}

		got := SelectIssueSyncBatch([]model.IssueSyncCandidate{staticOld, discNewer, discOlder, neverStatic, neverDisc}, testNow, 12*time.Hour, 0)

		var ids []int64
		for _, c := range got {
			ids = append(ids, c.RepoID)
		}
		assert.Equal(t, []int64{5, 4, 3, 2, 1}, ids)
	})
}

func TestShouldCloseMissing(t *testing.T) {
	assert.True(t, ShouldCloseMissing(true, false, 3, 100))
	assert.False(t, ShouldCloseMissing(true, false, 100, 100), "a full page may be truncated")
	assert.False(t, ShouldCloseMissing(false, false, 3, 100), "delta fetches never close")
	assert.False(t, ShouldCloseMissing(false, false, 0, 100))
	assert.False(t, ShouldCloseMissing(true, true, 3, 100), "a label filter hides open issues")
}

func TestNextWatermark(t *testing.T) {
	t1 := testNow.Add(-3 * time.Hour)
	t2 := testNow.Add(-2 * time.Hour)
	t3 := testNow.Add(-1 * time.Hour)

	t.Run("latest updated_at, not wall clock", func(t *testing.T) {
		assert.Equal(t, t2, NextWatermark(timePtr(t1), t2, testNow))
	})

	t.Run("wall clock when nothing returned", func(t *testing.T) {
		assert.Equal(t, testNow, NextWatermark(timePtr(t1), time.Time{}, testNow))
	})

	t.Run("never moves backwards", func(t *testing.T) {
		assert.Equal(t, t3, NextWatermark(timePtr(t3), t1, testNow))
	})
}

func TestSyncer_SyncRepoIssues(t *testing.T) {
	ctx := context.Background()
	t1 := time.Date(2024, 5, 30, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC)
	t3 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	fetched := []model.Issue{
		{GithubID: 101, Number: 1, Title: "Crash on start", Body: "boom", State: "open", Labels: []string{"bug", "good first issue"}, UpdatedAt: t1},
		{GithubID: 102, Number: 2, Title: "Docs typo", State: "open", Labels: []string{"documentation"}, UpdatedAt: t3},
		{GithubID: 103, Number: 3, Title: "Faster build", State: "open", UpdatedAt: t2},
	}
	widget := model.IssueSyncCandidate{RepoID: 7, FullName: "acme/widget", Owner: "acme", Name: "widget", Source: model.SourceDiscovered}

	t.Run("full fetch classifies, hashes and closes missing issues", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)

		gh.On("ListIssues", ctx, "acme", "widget", github.IssueQuery{State: "open", PerPage: 100}).
			Return(github.IssuePage{Issues: append([]model.Issue(nil), fetched...), Fetched: 3, Latest: t3}, nil)

		var commit database.IssueSyncCommit
		store.On("CommitIssueSync", ctx, mock.Anything).Run(func(args mock.Arguments) {
			commit = args.Get(1).(database.IssueSyncCommit)
		}).Return(int64(1), nil)

		n, closed, err := s.SyncRepoIssues(ctx, widget)

		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, int64(1), closed)
		assert.True(t, commit.CloseMissing)
		assert.Equal(t, t3, commit.Watermark)
		assert.Equal(t, int64(7), commit.RepoID)
		require.Len(t, commit.Issues, 3)
		assert.Equal(t, model.OpportunityBug, commit.Issues[0].OpportunityType)
		assert.Equal(t, model.OpportunityImprovement, commit.Issues[1].OpportunityType)
		assert.Equal(t, model.OpportunityImprovement, commit.Issues[2].OpportunityType)
		assert.Equal(t, ContentHash("Crash on start", "boom"), commit.Issues[0].ContentHash)
		assert.Equal(t, "acme/widget", commit.Issues[0].RepoFullName)
	})

	t.Run("delta fetch uses the buffered watermark and never closes", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)
		withMark := widget
		withMark.Watermark = timePtr(t3)
		withMark.IssuesSyncedAt = timePtr(testNow.Add(-time.Hour))

		gh.On("ListIssues", ctx, "acme", "widget", github.IssueQuery{
			State: "all", Since: t3.Add(-time.Minute), PerPage: 100, Ascending: true, MaxPages: DeltaMaxPages,
		}).Return(github.IssuePage{Issues: []model.Issue{fetched[1]}, Fetched: 1, Latest: t3}, nil)
		store.On("CommitIssueSync", ctx, mock.MatchedBy(func(c database.IssueSyncCommit) bool {
			return !c.CloseMissing && c.Watermark.Equal(t3) && len(c.Issues) == 1
		})).Return(int64(0), nil)

		n, closed, err := s.SyncRepoIssues(ctx, withMark)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Zero(t, closed)
		store.AssertExpectations(t)
	})

	t.Run("a truncated delta only advances the watermark over what was seen", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)
		withMark := widget
		withMark.Watermark = timePtr(t1)

		// The oldest updates come first; t2 is the newest update on the last page read.
		gh.On("ListIssues", ctx, "acme", "widget", mock.MatchedBy(func(q github.IssueQuery) bool {
			return q.Ascending && q.MaxPages == DeltaMaxPages && q.State == "all"
		})).Return(github.IssuePage{
			Issues:  []model.Issue{fetched[0], fetched[2]},
			Fetched: DeltaMaxPages * 100,
			Latest:  t2,
		}, nil)
		store.On("CommitIssueSync", ctx, mock.MatchedBy(func(c database.IssueSyncCommit) bool {
			return !c.CloseMissing && c.Watermark.Equal(t2)
		})).Return(int64(0), nil)

		_, _, err := s.SyncRepoIssues(ctx, withMark)

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("a label filter disables closure", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)
		s.opts.IssueLabels = []string{"bug"}

		gh.On("ListIssues", ctx, "acme", "widget", github.IssueQuery{State: "open", Labels: []string{"bug"}, PerPage: 100}).
			Return(github.IssuePage{Issues: []model.Issue{fetched[0]}, Fetched: 1, Latest: t1}, nil)
		store.On("CommitIssueSync", ctx, mock.MatchedBy(func(c database.IssueSyncCommit) bool {
			return !c.CloseMissing
		})).Return(int64(0), nil)

		_, _, err := s.SyncRepoIssues(ctx, widget)

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("a full page disables closure", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)

		gh.On("ListIssues", ctx, "acme", "widget", mock.Anything).
			Return(github.IssuePage{Issues: append([]model.Issue(nil), fetched...), Fetched: 100}, nil)
		store.On("CommitIssueSync", ctx, mock.MatchedBy(func(c database.IssueSyncCommit) bool {
			return !c.CloseMissing
		})).Return(int64(0), nil)

		_, _, err := s.SyncRepoIssues(ctx, widget)

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("fetch failure commits nothing", func(t *testing.T) {
		store, gh := new(MockStore), new(MockGitHub)
		s := newTestSyncer(t, store, gh, nil, nil)

		gh.On("ListIssues", ctx, "acme", "widget", mock.Anything).Return(github.IssuePage{}, errors.New("timeout"))

		_, _, err := s.SyncRepoIssues(ctx, widget)

		require.Error(t, err)
		store.AssertNotCalled(t, "CommitIssueSync", mock.Anything, mock.Anything)
	})
}

func TestSyncer_SyncIssues(t *testing.T) {
	ctx := context.Background()
	store, gh := new(MockStore), new(MockGitHub)
	s := newTestSyncer(t, store, gh, nil, nil)

	store.On("ListIssueSyncCandidates", ctx).Return([]model.IssueSyncCandidate{
		{RepoID: 1, FullName: "acme/broken", Owner: "acme", Name: "broken", Source: model.SourceDiscovered},
		{RepoID: 2, FullName: "acme/widget", Owner: "acme", Name: "widget", Source: model.SourceDiscovered},
		{RepoID: 3, FullName: "acme/recent", Owner: "acme", Name: "recent", IssuesSyncedAt: timePtr(testNow.Add(-time.Hour))},
	}, nil)
	gh.On("ListIssues", ctx, "acme", "broken", mock.Anything).Return(github.IssuePage{}, errors.New("404"))
	gh.On("ListIssues", ctx, "acme", "widget", mock.Anything).
		Return(github.IssuePage{Issues: []model.Issue{{GithubID: 9, Title: "x", UpdatedAt: testNow}}, Fetched: 1, Latest: testNow}, nil)
	store.On("CommitIssueSync", ctx, mock.Anything).Return(int64(2), nil)
	store.On("InvalidateCache").Return().Once()

	result, err := s.SyncIssues(ctx)

	require.NoError(t, err)
	assert.Equal(t, IssueSyncResult{Repos: 1, Issues: 1, Closed: 2}, result)
	gh.AssertNotCalled(t, "ListIssues", ctx, "acme", "recent", mock.Anything)
	store.AssertExpectations(t)
}

// internal/github/client_test.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a httptest server and a github client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return testClientFor(t, server)
}

func testClientFor(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client, err := NewClient("", logger, WithTimeout(time.Second))
	require.NoError(t, err)

	// Point the underlying client at the test server.
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.gh = github.NewClient(server.Client())
	client.gh.BaseURL = base

	return client
}

func TestClient_GetRepository(t *testing.T) {
	t.Run("translates repository metadata", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/acme/widget", r.URL.Path)
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "4999")
			fmt.Fprintln(w, `{
				"id": 1, "name": "widget", "full_name": "acme/widget", "owner": {"login": "acme"},
				"description": "A widget", "language": "Go", "topics": ["cli"],
				"stargazers_count": 1200, "forks_count": 30, "open_issues_count": 3, "watchers_count": 1200,
				"created_at": "2024-01-01T00:00:00Z", "pushed_at": "2024-06-01T00:00:00Z"
			}`)
		})
		client := setupTestClient(t, handler)

		repo, err := client.GetRepository(context.Background(), "acme", "widget")

		require.NoError(t, err)
		assert.Equal(t, "acme/widget", repo.FullName)
		assert.Equal(t, "acme", repo.Owner)
		assert.Equal(t, 1200, repo.Stars)
		assert.Equal(t, 30, repo.Forks)
		assert.Equal(t, []string{"cli"}, repo.Topics)
		require.NotNil(t, repo.Language)
		assert.Equal(t, "Go", *repo.Language)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), repo.PushedAt.UTC())
	})

	t.Run("returns api errors", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client := setupTestClient(t, handler)

		_, err := client.GetRepository(context.Background(), "acme", "missing")

		require.Error(t, err)
		var ghErr *github.ErrorResponse
		require.ErrorAs(t, err, &ghErr)
		assert.Equal(t, http.StatusNotFound, ghErr.Response.StatusCode)
	})

	t.Run("times out hung calls", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
		client := setupTestClient(t, handler)
		client.timeout = 50 * time.Millisecond

		_, err := client.GetRepository(context.Background(), "acme", "slow")

		require.Error(t, err)
	})
}

func TestClient_ListIssues(t *testing.T) {
	t.Run("sends delta parameters oldest first and strips pull requests", func(t *testing.T) {
		since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/acme/widget/issues", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "all", q.Get("state"))
			assert.Equal(t, "updated", q.Get("sort"))
			assert.Equal(t, "asc", q.Get("direction"))
			assert.Equal(t, "100", q.Get("per_page"))
			assert.Equal(t, since.Format(time.RFC3339), q.Get("since"))
			fmt.Fprintln(w, `[
				{"id": 11, "number": 1, "title": "Crash on start", "body": "boom", "state": "open",
				 "labels": [{"name": "bug"}], "comments": 4,
				 "created_at": "2024-05-01T00:00:00Z", "updated_at": "2024-05-02T00:00:00Z"},
				{"id": 12, "number": 2, "title": "Add flag", "state": "open",
				 "pull_request": {"url": "https://api.github.com/repos/acme/widget/pulls/2"},
				 "created_at": "2024-05-01T00:00:00Z", "updated_at": "2024-05-03T00:00:00Z"},
				{"id": 13, "number": 3, "title": "Old", "state": "closed",
				 "created_at": "2024-04-01T00:00:00Z", "updated_at": "2024-05-04T00:00:00Z",
				 "closed_at": "2024-05-04T00:00:00Z"}
			]`)
		})
		client := setupTestClient(t, handler)

		page, err := client.ListIssues(context.Background(), "acme", "widget", IssueQuery{
			State:     "all",
			Since:     since,
			PerPage:   100,
			Ascending: true,
		})

		require.NoError(t, err)
		assert.Equal(t, 3, page.Fetched)
		assert.Equal(t, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), page.Latest.UTC())
		issues := page.Issues
		require.Len(t, issues, 2)
		assert.Equal(t, int64(11), issues[0].GithubID)
		assert.Equal(t, []string{"bug"}, issues[0].Labels)
		assert.Equal(t, 4, issues[0].Comments)
		assert.Nil(t, issues[0].ClosedAt)
		assert.Equal(t, "closed", issues[1].State)
		require.NotNil(t, issues[1].ClosedAt)
	})

	t.Run("follows next pages up to the page bound", func(t *testing.T) {
		var requests int
		var serverURL string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			page := r.URL.Query().Get("page")
			if page == "" {
				page = "1"
			}
			next := map[string]string{"1": "2", "2": "3"}[page]
			if next != "" {
				w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widget/issues?page=%s>; rel="next"`, serverURL, next))
			}
			fmt.Fprintf(w, `[{"id": %s, "number": %s, "title": "Issue", "state": "open",
				"created_at": "2024-05-01T00:00:00Z", "updated_at": "2024-05-0%sT00:00:00Z"}]`, page, page, page)
		})
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		serverURL = server.URL
		client := testClientFor(t, server)

		page, err := client.ListIssues(context.Background(), "acme", "widget", IssueQuery{
			State: "all", PerPage: 1, Ascending: true, MaxPages: 2,
		})

		require.NoError(t, err)
		assert.Equal(t, 2, requests)
		assert.Equal(t, 2, page.Fetched)
		require.Len(t, page.Issues, 2)
		assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), page.Latest.UTC())
	})

	t.Run("full fetch omits since and reads one page", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.URL.Query().Get("since"))
			assert.Equal(t, "open", r.URL.Query().Get("state"))
			assert.Equal(t, "desc", r.URL.Query().Get("direction"))
			fmt.Fprintln(w, `[]`)
		})
		client := setupTestClient(t, handler)

		page, err := client.ListIssues(context.Background(), "acme", "widget", IssueQuery{State: "open", PerPage: 100})

		require.NoError(t, err)
		assert.Empty(t, page.Issues)
		assert.Zero(t, page.Fetched)
	})
}

func TestClient_SearchRepositories(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/repositories", r.URL.Path)
		assert.Equal(t, "stars:>500 language:Go", r.URL.Query().Get("q"))
		assert.Equal(t, "stars", r.URL.Query().Get("sort"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "20", r.URL.Query().Get("per_page"))
		fmt.Fprintln(w, `{"total_count": 1, "items": [
			{"id": 5, "name": "fastkv", "full_name": "newco/fastkv", "owner": {"login": "newco"},
			 "language": "Go", "stargazers_count": 900}
		]}`)
	})
	client := setupTestClient(t, handler)

	repos, err := client.SearchRepositories(context.Background(), "stars:>500 language:Go", 20)

	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "newco/fastkv", repos[0].FullName)
	assert.Equal(t, 900, repos[0].Stars)
	assert.Empty(t, repos[0].Topics)
}

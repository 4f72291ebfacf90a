// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"repo-leaderboard/internal/model"
)

const defaultTimeout = 30 * time.Second

// Client is a wrapper around the go-github client.
type Client struct {
	gh      *github.Client
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client) error

// WithTimeout bounds every API call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithEnterpriseURL points the client at a GitHub Enterprise instance.
func WithEnterpriseURL(baseURL string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return nil
		}
		gh, err := c.gh.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return err
		}
		c.gh = gh
		return nil
	}
}

// NewClient creates and configures a new Client instance.
// A non-empty token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	var gh *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		gh = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		logger.Warn("GITHUB_TOKEN not set, using unauthenticated API access")
		gh = github.NewClient(nil)
	}

	c := &Client{gh: gh, logger: logger, timeout: defaultTimeout}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// GetRepository fetches repository details and translates them to our internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	c.logRate(resp, err)
	if err != nil {
		return nil, err
	}
	return toInternalRepository(repo), nil
}

// IssueQuery selects issues for a repository. Ascending sorts oldest update
// first. MaxPages bounds pagination; zero or one fetches a single page.
type IssueQuery struct {
	State     string
	Labels    []string
	Since     time.Time
	PerPage   int
	Ascending bool
	MaxPages  int
}

// IssuePage is the result of one issue listing. Fetched counts every item the
// API returned, pull requests included, and is what page-size ceilings compare
// against. Latest is the newest updated_at among those items.
type IssuePage struct {
	Issues  []model.Issue
	Fetched int
	Latest  time.Time
}

// ListIssues fetches issues sorted by update time, following pagination up to
// q.MaxPages. Pull requests are removed from the result.
func (c *Client) ListIssues(ctx context.Context, owner, name string, q IssueQuery) (IssuePage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	direction := "desc"
	if q.Ascending {
		direction = "asc"
	}
	opts := &github.IssueListByRepoOptions{
		State:     q.State,
		Labels:    q.Labels,
		Since:     q.Since,
		Sort:      "updated",
		Direction: direction,
		ListOptions: github.ListOptions{
			PerPage: q.PerPage,
		},
	}

	var page IssuePage
	for pages := 1; ; pages++ {
		c.logger.Debug("Fetching issues page", "owner", owner, "repo", name, "since", q.Since, "state", q.State, "page", opts.Page)
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, name, opts)
		c.logRate(resp, err)
		if err != nil {
			return IssuePage{}, err
		}

		page.Fetched += len(issues)
		for _, issue := range issues {
			if updated := issue.GetUpdatedAt().Time; updated.After(page.Latest) {
				page.Latest = updated
			}
			if issue.IsPullRequest() {
				continue
			}
			page.Issues = append(page.Issues, toInternalIssue(issue))
		}

		if resp.NextPage == 0 || pages >= q.MaxPages {
			break
		}
		opts.Page = resp.NextPage
	}
	return page, nil
}

// SearchRepositories runs a repository search ordered by stars.
func (c *Client) SearchRepositories(ctx context.Context, query string, perPage int) ([]*model.Repository, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := &github.SearchOptions{
		Sort:  "stars",
		Order: "desc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	result, resp, err := c.gh.Search.Repositories(ctx, query, opts)
	c.logRate(resp, err)
	if err != nil {
		return nil, err
	}

	repos := make([]*model.Repository, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		repos = append(repos, toInternalRepository(r))
	}
	return repos, nil
}

func (c *Client) logRate(resp *github.Response, err error) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		c.logger.Warn("GitHub rate limit exceeded", "reset", rateErr.Rate.Reset.Time)
		return
	}
	if resp != nil && resp.Rate.Limit > 0 {
		c.logger.Debug("GitHub rate limit", "remaining", resp.Rate.Remaining, "limit", resp.Rate.Limit)
	}
}

// toInternalRepository translates a github.Repository object to our internal model.Repository.
func toInternalRepository(r *github.Repository) *model.Repository {
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	return &model.Repository{
		FullName:      r.GetFullName(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		Description:   r.Description,
		Language:      r.Language,
		Topics:        topics,
		Homepage:      r.Homepage,
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		Watchers:      r.GetWatchersCount(),
		RepoCreatedAt: r.GetCreatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
	}
}

// toInternalIssue translates a github.Issue object to our internal model.Issue.
func toInternalIssue(i *github.Issue) model.Issue {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		labels = append(labels, l.GetName())
	}

	var closedAt *time.Time
	if i.ClosedAt != nil {
		t := i.ClosedAt.Time
		closedAt = &t
	}

	return model.Issue{
		GithubID:  i.GetID(),
		Number:    i.GetNumber(),
		Title:     i.GetTitle(),
		Body:      i.GetBody(),
		HTMLURL:   i.GetHTMLURL(),
		State:     i.GetState(),
		Labels:    labels,
		Comments:  i.GetComments(),
		CreatedAt: i.GetCreatedAt().Time,
		UpdatedAt: i.GetUpdatedAt().Time,
		ClosedAt:  closedAt,
	}
}

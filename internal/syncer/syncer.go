// internal/syncer/syncer.go
package syncer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"repo-leaderboard/internal/config"
	"repo-leaderboard/internal/database"
	custom_errors "repo-leaderboard/internal/errors"
	"repo-leaderboard/internal/github"
	"repo-leaderboard/internal/model"
)

// GitHubClient is the subset of the GitHub API the syncers use.
type GitHubClient interface {
	GetRepository(ctx context.Context, owner, name string) (*model.Repository, error)
	ListIssues(ctx context.Context, owner, name string, q github.IssueQuery) (github.IssuePage, error)
	SearchRepositories(ctx context.Context, query string, perPage int) ([]*model.Repository, error)
}

// Store is the subset of the store gateway the syncers write through.
type Store interface {
	UpsertRepository(ctx context.Context, repo *model.Repository) (int64, error)
	GetRepoLastSynced(ctx context.Context) (map[string]time.Time, error)
	InsertStarHistorySnapshot(ctx context.Context, repoID int64, stars, forks int, now time.Time) (bool, error)
	RecomputeRanks(ctx context.Context) error
	ListIssueSyncCandidates(ctx context.Context) ([]model.IssueSyncCandidate, error)
	CommitIssueSync(ctx context.Context, c database.IssueSyncCommit) (int64, error)
	InvalidateCache()
}

// RepoIdentifier holds a statically tracked repository.
type RepoIdentifier struct {
	Owner    string
	Name     string
	Category model.Category
}

// FullName returns owner/name.
func (r RepoIdentifier) FullName() string {
	return r.Owner + "/" + r.Name
}

// Options tunes batching, pacing and cooldowns.
type Options struct {
	RepoSyncCooldown   time.Duration
	RepoBatchSize      int
	RepoBatchDelay     time.Duration
	TrendingPerPage    int
	TrendingQueryDelay time.Duration
	IssueBatchSize     int
	IssueSyncCooldown  time.Duration
	IssuePageSize      int
	IssueLabels        []string
	IssueRepoDelay     time.Duration
}

// OptionsFromConfig copies the syncer settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RepoSyncCooldown:   cfg.RepoSyncCooldown,
		RepoBatchSize:      cfg.RepoBatchSize,
		RepoBatchDelay:     cfg.RepoBatchDelay,
		TrendingPerPage:    cfg.TrendingPerPage,
		TrendingQueryDelay: cfg.TrendingQueryDelay,
		IssueBatchSize:     cfg.IssueSyncBatchSize,
		IssueSyncCooldown:  cfg.IssueSyncCooldown,
		IssuePageSize:      cfg.IssuePageSize,
		IssueLabels:        cfg.IssueLabels,
		IssueRepoDelay:     cfg.IssueRepoDelay,
	}
}

// Syncer pulls repository metadata, trending repositories and issues into the store.
type Syncer struct {
	store       Store
	ghClient    GitHubClient
	logger      *slog.Logger
	staticRepos []RepoIdentifier
	opts        Options
	now         func() time.Time
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store Store, ghClient GitHubClient, logger *slog.Logger, aimlRepos, sweRepos []string, opts Options) (*Syncer, error) {
	aiml, err := parseRepoIdentifiers(aimlRepos, model.CategoryAIML)
	if err != nil {
		return nil, err
	}
	swe, err := parseRepoIdentifiers(sweRepos, model.CategorySWE)
	if err != nil {
		return nil, err
	}
	if opts.RepoBatchSize <= 0 {
		opts.RepoBatchSize = 1
	}

	return &Syncer{
		store:       store,
		ghClient:    ghClient,
		logger:      logger,
		staticRepos: append(aiml, swe...),
		opts:        opts,
		now:         time.Now,
	}, nil
}

// StaticRepos returns the statically tracked repositories.
func (s *Syncer) StaticRepos() []RepoIdentifier {
	return s.staticRepos
}

func parseRepoIdentifiers(repos []string, category model.Category) ([]RepoIdentifier, error) {
	var identifiers []RepoIdentifier
	for _, r := range repos {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		parts := strings.Split(r, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &custom_errors.ErrInvalidRepoFormat{Repo: r}
		}
		identifiers = append(identifiers, RepoIdentifier{Owner: parts[0], Name: parts[1], Category: category})
	}
	return identifiers, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

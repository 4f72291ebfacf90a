package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"repo-leaderboard/internal/model"
)

// SyncRepos refreshes metadata for every static repository outside its
// cooldown, in batches separated by a fixed delay. A failing repository is
// logged and skipped. It returns the number of repositories updated.
func (s *Syncer) SyncRepos(ctx context.Context) (int, error) {
	lastSynced, err := s.store.GetRepoLastSynced(ctx)
	if err != nil {
		return 0, fmt.Errorf("load last synced times: %w", err)
	}
	synced := make(map[string]bool, len(lastSynced))
	now := s.now()
	for name, at := range lastSynced {
		if now.Sub(at) < s.opts.RepoSyncCooldown {
			synced[strings.ToLower(name)] = true
		}
	}

	var due []RepoIdentifier
	for _, r := range s.staticRepos {
		if synced[strings.ToLower(r.FullName())] {
			continue
		}
		due = append(due, r)
	}
	s.logger.Info("Starting repository metadata sync", "due", len(due), "skipped", len(s.staticRepos)-len(due))

	var updated int64
	size := s.opts.RepoBatchSize
	for start := 0; start < len(due); start += size {
		batch := due[start:min(start+size, len(due))]

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			id := id // per-iteration copy; go.mod targets go1.21 loop semantics
			g.Go(func() error {
				if err := s.syncRepo(gctx, id); err != nil {
					if !errors.Is(err, context.Canceled) {
						s.logger.Error("Failed to sync repository", "repo", id.FullName(), "error", err)
					}
					return nil
				}
				atomic.AddInt64(&updated, 1)
				return nil
			})
		}
		_ = g.Wait()

		if start+size < len(due) {
			if err := sleepCtx(ctx, s.opts.RepoBatchDelay); err != nil {
				return int(updated), err
			}
		}
	}

	if updated > 0 {
		if err := s.store.RecomputeRanks(ctx); err != nil {
			return int(updated), fmt.Errorf("recompute ranks: %w", err)
		}
	}
	s.store.InvalidateCache()
	s.logger.Info("Repository metadata sync finished", "updated", updated)
	return int(updated), nil
}

// syncRepo fetches, upserts and snapshots a single static repository.
func (s *Syncer) syncRepo(ctx context.Context, id RepoIdentifier) error {
	logger := s.logger.With("repo", id.FullName())

	repo, err := s.ghClient.GetRepository(ctx, id.Owner, id.Name)
	if err != nil {
		return err
	}
	now := s.now()
	repo.Category = id.Category
	repo.Source = model.SourceStatic
	repo.LastSynced = now
	if repo.FullName == "" {
		repo.FullName = id.FullName()
	}

	repoID, err := s.store.UpsertRepository(ctx, repo)
	if err != nil {
		return err
	}
	recorded, err := s.store.InsertStarHistorySnapshot(ctx, repoID, repo.Stars, repo.Forks, now)
	if err != nil {
		return fmt.Errorf("record star snapshot: %w", err)
	}
	logger.Debug("Repository synced", "repo_id", repoID, "stars", repo.Stars, "snapshot", recorded)
	return nil
}

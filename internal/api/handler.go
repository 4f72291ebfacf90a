// internal/api/handler.go
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"repo-leaderboard/internal/database"
	custom_errors "repo-leaderboard/internal/errors"
	"repo-leaderboard/internal/model"
	"repo-leaderboard/internal/scheduler"
)

// Reader serves the cached dashboard reads.
type Reader interface {
	ListRepos(ctx context.Context, q database.RepoQuery) (model.RepoPage, error)
	ListIssues(ctx context.Context, q database.IssueQuery) (model.IssuePage, error)
	GetStarHistory(ctx context.Context, fullName string, since time.Time) ([]model.HistoryPoint, error)
	Ping(ctx context.Context) error
}

// SyncService triggers runs and reports pending work.
type SyncService interface {
	Trigger(ctx context.Context, mode scheduler.Mode) (scheduler.SyncResult, error)
	Status(ctx context.Context) (scheduler.Status, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db         Reader
	sync       SyncService
	cronSecret string
	logger     *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db Reader, sync SyncService, cronSecret string, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:         db,
		sync:       sync,
		cronSecret: cronSecret,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)

	// A full run outlives the read timeout.
	r.With(h.requireCronSecret).Post("/v1/sync", h.triggerSync)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", h.healthCheck)
		r.Route("/v1", func(r chi.Router) {
			r.Get("/sync/status", h.syncStatus)
			r.Get("/repos", h.listRepos)
			r.Get("/repos/{owner}/{name}/history", h.starHistory)
			r.Get("/issues", h.listIssues)
		})
	})

	return r
}

// requireCronSecret rejects requests without the configured bearer token.
// With no secret configured every request passes.
func (h *Handler) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cronSecret != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) != 1 {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// healthCheck reports whether the store is reachable.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerSync runs a sync in the requested mode and reports its outcome.
// POST /v1/sync?mode=repos|issues|all
func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	mode, err := scheduler.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run continues if the caller disconnects.
	result, err := h.sync.Trigger(context.WithoutCancel(r.Context()), mode)
	if err != nil {
		var modeErr *custom_errors.ErrUnknownMode
		if errors.As(err, &modeErr) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to trigger sync", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	status := http.StatusOK
	switch {
	case result.Success:
	case result.RunID == "":
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	respondWithJSON(w, status, result)
}

// syncStatus handles GET /v1/sync/status.
func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.sync.Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to get sync status", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// listRepos handles GET /v1/repos?category=&q=&sort=&page=&limit=
func (h *Handler) listRepos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	repos, err := h.db.ListRepos(r.Context(), database.RepoQuery{
		Category: q.Get("category"),
		Search:   strings.TrimSpace(q.Get("q")),
		Sort:     q.Get("sort"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, repos)
}

// listIssues handles GET /v1/issues?difficulty=&label=&q=&sort=&aiml=&page=&limit=
func (h *Handler) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	var aiml bool
	if raw := q.Get("aiml"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'aiml' parameter. Must be true or false.")
			return
		}
		aiml = v
	}

	difficulty := q.Get("difficulty")
	switch model.Difficulty(difficulty) {
	case "", model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced:
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid 'difficulty' parameter. Must be beginner, intermediate or advanced.")
		return
	}

	issues, err := h.db.ListIssues(r.Context(), database.IssueQuery{
		Difficulty: difficulty,
		Label:      q.Get("label"),
		Search:     strings.TrimSpace(q.Get("q")),
		Sort:       q.Get("sort"),
		AIML:       aiml,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		h.logger.Error("Failed to list issues", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, issues)
}

// starHistory handles GET /v1/repos/{owner}/{name}/history?days=N
func (h *Handler) starHistory(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	days, err := intParam(r, "days", 30)
	if err != nil || days <= 0 || days > 365 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'days' parameter. Must be an integer between 1 and 365.")
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	points, err := h.db.GetStarHistory(r.Context(), owner+"/"+name, since)
	if err != nil {
		h.logger.Error("Failed to get star history", "repo", owner+"/"+name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, points)
}

func pageParams(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	page, err := intParam(r, "page", 1)
	if err != nil || page < 1 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'page' parameter. Must be a positive integer.")
		return 0, 0, false
	}
	limit, err = intParam(r, "limit", 24)
	if err != nil || limit <= 0 || limit > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return 0, 0, false
	}
	return page, limit, true
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

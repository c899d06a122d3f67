package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
	"jobboard-backend/internal/repository"
	"jobboard-backend/pkg/api"
)

// JobsHandler serves the public job board endpoints.
type JobsHandler struct {
	jobs   *repository.JobRepository
	logger *zap.Logger
}

// NewJobsHandler constructs the handler.
func NewJobsHandler(jobs *repository.JobRepository, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{jobs: jobs, logger: logger}
}

// List serves GET /jobs: the approved listing, paginated. Interactive
// renders get high batch priority.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)

	if term := r.URL.Query().Get("q"); term != "" {
		jobs, err := h.jobs.Search(r.Context(), term, page.Limit)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		api.Success(w, http.StatusOK, api.ListResponse{Items: jobs})
		return
	}

	jobs, count, err := h.jobs.ListApproved(r.Context(), page, persistence.PriorityHigh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.ListResponse{Items: jobs, Count: count})
}

// Get serves GET /jobs/{jobId}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, job)
}

// pageFromQuery parses limit/offset query parameters.
func pageFromQuery(r *http.Request) cache.Page {
	q := r.URL.Query()
	page := cache.Page{}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		page.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		page.Offset = v
	}
	return page
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/repository"
	"jobboard-backend/pkg/api"
)

// AdminHandler serves the admin console endpoints: application review and
// job management.
type AdminHandler struct {
	applications *repository.ApplicationRepository
	jobs         *repository.JobRepository
	logger       *zap.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(applications *repository.ApplicationRepository, jobs *repository.JobRepository, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{applications: applications, jobs: jobs, logger: logger}
}

// ListApplications serves GET /admin/applications with status/search
// filtering.
func (h *AdminHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := cache.Filter{
		Status: q.Get("status"),
		Search: q.Get("q"),
	}

	apps, count, err := h.applications.List(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.ListResponse{Items: apps, Count: count})
}

// CountApplications serves GET /admin/applications/count for dashboard
// aggregates.
func (h *AdminHandler) CountApplications(w http.ResponseWriter, r *http.Request) {
	filter := cache.Filter{Status: r.URL.Query().Get("status")}
	count, err := h.applications.Count(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]int64{"count": count})
}

// ApproveApplication serves POST /admin/applications/{applicationId}/approve.
func (h *AdminHandler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationId")
	if err := h.applications.Approve(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": repository.ApplicationStatusApproved})
}

// RejectApplication serves POST /admin/applications/{applicationId}/reject.
func (h *AdminHandler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationId")
	if err := h.applications.Reject(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": repository.ApplicationStatusRejected})
}

// CreateJob serves POST /admin/jobs.
func (h *AdminHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.jobs.Create(r.Context(), &repository.Job{
		Title:       req.Title,
		Company:     req.Company,
		Description: req.Description,
		Location:    req.Location,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, created)
}

// UpdateJob serves PUT /admin/jobs/{jobId} with a partial update.
func (h *AdminHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := make(map[string]interface{})
	if req.Title != "" {
		patch["title"] = req.Title
	}
	if req.Company != "" {
		patch["company"] = req.Company
	}
	if req.Description != "" {
		patch["description"] = req.Description
	}
	if req.Location != "" {
		patch["location"] = req.Location
	}
	if req.Status != "" {
		patch["status"] = req.Status
	}

	updated, err := h.jobs.Update(r.Context(), chi.URLParam(r, "jobId"), patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, updated)
}

// DeleteJob serves DELETE /admin/jobs/{jobId}.
func (h *AdminHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Delete(r.Context(), chi.URLParam(r, "jobId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusNoContent, nil)
}

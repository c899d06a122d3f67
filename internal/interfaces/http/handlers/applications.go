package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"jobboard-backend/internal/repository"
	"jobboard-backend/pkg/api"
)

// ApplicationsHandler serves the public application intake endpoint.
type ApplicationsHandler struct {
	applications *repository.ApplicationRepository
	logger       *zap.Logger
}

// NewApplicationsHandler constructs the handler.
func NewApplicationsHandler(applications *repository.ApplicationRepository, logger *zap.Logger) *ApplicationsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationsHandler{applications: applications, logger: logger}
}

// Submit serves POST /applications.
func (h *ApplicationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.applications.Create(r.Context(), &repository.Application{
		JobID:      req.JobID,
		FullName:   req.FullName,
		Email:      req.Email,
		TelegramID: req.TelegramID,
		CoverNote:  req.CoverNote,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	api.Success(w, http.StatusCreated, created)
}

// Package handlers contains the thin REST layer over the repositories.
// Handlers translate repository and resilience-layer errors into HTTP
// statuses; they hold no business logic of their own.
package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/pkg/api"
)

// writeError maps an error from the data-access layer onto a response.
// Pool exhaustion surfaces as a generic "service busy" 503 so callers
// retry; validation failures carry field-level messages.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unclassified error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	switch {
	case apperrors.IsValidation(err):
		api.ErrorDetailed(w, http.StatusBadRequest, api.ErrorResponse{
			Error:  appErr.Message,
			Code:   appErr.Code,
			Fields: appErr.Fields,
		})
	case apperrors.IsNotFound(err):
		api.ErrorDetailed(w, http.StatusNotFound, api.ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		})
	case apperrors.IsConflict(err):
		api.ErrorDetailed(w, http.StatusConflict, api.ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		})
	case apperrors.IsPoolTimeout(err):
		logger.Warn("pool exhausted", zap.Error(err))
		api.ErrorDetailed(w, http.StatusServiceUnavailable, api.ErrorResponse{
			Error: "service busy, please retry",
			Code:  appErr.Code,
		})
	case apperrors.IsTimeout(err):
		api.Error(w, http.StatusGatewayTimeout, "backend timeout")
	default:
		logger.Error("request failed", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

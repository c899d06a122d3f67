package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/pkg/api"
)

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name: "validation maps to 400 with fields",
			err: apperrors.Validation("INVALID_INPUT", "input validation failed").
				WithField("Email", "must be a valid email address").Build(),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "not found maps to 404",
			err:        apperrors.NotFound("JOB_NOT_FOUND", "job missing").Build(),
			wantStatus: http.StatusNotFound,
			wantCode:   "JOB_NOT_FOUND",
		},
		{
			name:       "conflict maps to 409",
			err:        apperrors.Conflict(apperrors.CodeDuplicateEntry, "already applied").Build(),
			wantStatus: http.StatusConflict,
			wantCode:   apperrors.CodeDuplicateEntry,
		},
		{
			name:       "pool timeout maps to 503",
			err:        apperrors.Timeout(apperrors.CodePoolTimeout, "no connection became available").Build(),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.CodePoolTimeout,
		},
		{
			name:       "other timeout maps to 504",
			err:        apperrors.Timeout("BACKEND_TIMEOUT", "slow backend").Build(),
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "unclassified maps to 500",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, zap.NewNop(), tt.err)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body api.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body.Code)
			}
		})
	}
}

func TestWriteErrorValidationFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), apperrors.Validation("INVALID_INPUT", "input validation failed").
		WithField("FullName", "is required").
		Build())

	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "is required", body.Fields["FullName"])
}

func TestPoolTimeoutResponseHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zap.NewNop(), apperrors.Timeout(apperrors.CodePoolTimeout, "no connection became available").
		WithOperation("Acquire").Build())

	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "service busy, please retry", body.Error)
}

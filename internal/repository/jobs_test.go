package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/internal/infrastructure/cache"
)

func TestJobCreateValidation(t *testing.T) {
	tests := []struct {
		name      string
		job       Job
		wantField string
	}{
		{
			name:      "missing title",
			job:       Job{Company: "Acme"},
			wantField: "Title",
		},
		{
			name:      "title too short",
			job:       Job{Title: "Go", Company: "Acme"},
			wantField: "Title",
		},
		{
			name:      "missing company",
			job:       Job{Title: "Backend Engineer"},
			wantField: "Company",
		},
	}

	repo := NewJobRepository(newTestDeps(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Create(context.Background(), &tt.job)
			require.Error(t, err)
			require.True(t, apperrors.IsValidation(err), "want validation error, got %v", err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Contains(t, appErr.Fields, tt.wantField)
		})
	}
}

func TestJobUpdateRejectsEmptyPatch(t *testing.T) {
	repo := NewJobRepository(newTestDeps(t))

	_, err := repo.Update(context.Background(), "some-id", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err), "want validation error, got %v", err)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name string
		in   cache.Page
		want cache.Page
	}{
		{"defaults applied", cache.Page{}, cache.Page{Limit: defaultPageLimit}},
		{"negative offset clamped", cache.Page{Limit: 10, Offset: -5}, cache.Page{Limit: 10}},
		{"limit capped", cache.Page{Limit: 5000}, cache.Page{Limit: maxPageLimit}},
		{"valid passthrough", cache.Page{Limit: 50, Offset: 100}, cache.Page{Limit: 50, Offset: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePage(tt.in))
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultPageLimit, clampLimit(0))
	assert.Equal(t, defaultPageLimit, clampLimit(-1))
	assert.Equal(t, defaultPageLimit, clampLimit(maxPageLimit+1))
	assert.Equal(t, maxPageLimit, clampLimit(maxPageLimit))
	assert.Equal(t, 35, clampLimit(35))
}

func TestDecodeJobs(t *testing.T) {
	jobs, err := decodeJobs([]byte(`[{"id":"1","title":"Backend Engineer","company":"Acme","status":"approved"}]`))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Backend Engineer", jobs[0].Title)
	assert.Equal(t, JobStatusApproved, jobs[0].Status)

	jobs, err = decodeJobs(nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
)

// Job statuses.
const (
	JobStatusDraft    = "draft"
	JobStatusApproved = "approved"
	JobStatusArchived = "archived"
)

const jobsTable = "jobs"

// Job is one job posting row.
type Job struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title" validate:"required,min=3,max=200"`
	Company     string    `json:"company" validate:"required,min=2,max=120"`
	Description string    `json:"description,omitempty" validate:"max=10000"`
	Location    string    `json:"location,omitempty" validate:"max=200"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// JobRepository provides cached reads and invalidating writes over the
// jobs table.
type JobRepository struct {
	baseRepository
	validate *validator.Validate
}

// NewJobRepository constructs the repository with shared infrastructure
// injected.
func NewJobRepository(deps Deps) *JobRepository {
	return &JobRepository{
		baseRepository: newBaseRepository(jobsTable, deps),
		validate:       newValidator(),
	}
}

// Create validates and inserts a job posting.
func (r *JobRepository) Create(ctx context.Context, job *Job) (*Job, error) {
	if err := r.validate.Struct(job); err != nil {
		return nil, validationError("CreateJob", err)
	}
	if job.Status == "" {
		job.Status = JobStatusDraft
	}

	res, err := r.write(ctx, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(jobsTable).
			Insert(job, false, "", "representation", "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "CreateJob", "insert failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	created, err := decodeJobs(res.Data)
	if err != nil || len(created) == 0 {
		return nil, apperrors.Internal("DECODE_FAILED", "could not decode created job").WithCause(err).Build()
	}
	r.logger.Info("job created", zap.String("title", job.Title))
	return &created[0], nil
}

// Update applies a partial update and invalidates cached job queries.
func (r *JobRepository) Update(ctx context.Context, id string, patch map[string]interface{}) (*Job, error) {
	if len(patch) == 0 {
		return nil, apperrors.Validation("EMPTY_UPDATE", "no fields to update").Build()
	}

	res, err := r.write(ctx, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(jobsTable).
			Update(patch, "representation", "").
			Eq("id", id).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "UpdateJob", "update failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := decodeJobs(res.Data)
	if err != nil {
		return nil, apperrors.Internal("DECODE_FAILED", "could not decode updated job").WithCause(err).Build()
	}
	if len(updated) == 0 {
		return nil, apperrors.NotFound("JOB_NOT_FOUND", fmt.Sprintf("job %s not found", id)).Build()
	}
	return &updated[0], nil
}

// Delete removes a job posting.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	_, err := r.write(ctx, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		_, _, err := conn.From(jobsTable).
			Delete("", "").
			Eq("id", id).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "DeleteJob", "delete failed")
		}
		return persistence.QueryResult{}, nil
	})
	return err
}

// GetByID returns one job at high batch priority.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	key := cache.Key(jobsTable, "get", cache.Page{}, cache.Filter{}, map[string]string{"id": id})
	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.PublicTTL, persistence.PriorityHigh, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(jobsTable).
			Select("*", "", false).
			Eq("id", id).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "GetJob", "select failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	jobs, err := decodeJobs(entry.Data)
	if err != nil {
		return nil, apperrors.Internal("DECODE_FAILED", "could not decode job").WithCause(err).Build()
	}
	if len(jobs) == 0 {
		return nil, apperrors.NotFound("JOB_NOT_FOUND", fmt.Sprintf("job %s not found", id)).Build()
	}
	return &jobs[0], nil
}

// ListApproved is the public, read-mostly listing. It gets the longest
// TTL; priority depends on the caller (interactive renders pass high,
// background prefetches low).
func (r *JobRepository) ListApproved(ctx context.Context, page cache.Page, priority persistence.Priority) ([]Job, *int64, error) {
	page = normalizePage(page)
	filter := cache.Filter{Status: JobStatusApproved}
	key := cache.Key(jobsTable, "list-approved", page, filter, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.PublicTTL, priority, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, count, err := conn.From(jobsTable).
			Select("*", "exact", false).
			Eq("status", JobStatusApproved).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			Range(page.Offset, page.Offset+page.Limit-1, "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "ListApprovedJobs", "select failed")
		}
		return persistence.QueryResult{Data: data, Count: &count}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	jobs, err := decodeJobs(entry.Data)
	if err != nil {
		return nil, nil, apperrors.Internal("DECODE_FAILED", "could not decode jobs").WithCause(err).Build()
	}
	return jobs, entry.Count, nil
}

// Search matches job titles against the term.
func (r *JobRepository) Search(ctx context.Context, term string, limit int) ([]Job, error) {
	limit = clampLimit(limit)
	key := cache.Key(jobsTable, "search", cache.Page{Limit: limit}, cache.Filter{Search: term}, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.ListTTL, persistence.PriorityMedium, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(jobsTable).
			Select("*", "", false).
			Eq("status", JobStatusApproved).
			Ilike("title", "%"+term+"%").
			Range(0, limit-1, "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "SearchJobs", "search failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeJobs(entry.Data)
}

// Count returns the number of jobs matching the filter, at the shortest
// TTL and lowest batch priority.
func (r *JobRepository) Count(ctx context.Context, filter cache.Filter) (int64, error) {
	key := cache.Key(jobsTable, "count", cache.Page{}, filter, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.CountTTL, persistence.PriorityLow, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		q := conn.From(jobsTable).Select("id", "exact", true)
		q = applyFilter(q, filter, "title")
		_, count, err := q.Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "CountJobs", "count failed")
		}
		return persistence.QueryResult{Count: &count}, nil
	})
	if err != nil {
		return 0, err
	}
	if entry.Count == nil {
		return 0, nil
	}
	return *entry.Count, nil
}

func decodeJobs(data []byte) ([]Job, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

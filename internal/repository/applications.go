package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
)

// Application statuses.
const (
	ApplicationStatusPending  = "pending"
	ApplicationStatusApproved = "approved"
	ApplicationStatusRejected = "rejected"
)

const applicationsTable = "applications"

// Application is one job application row.
type Application struct {
	ID         string    `json:"id,omitempty"`
	JobID      string    `json:"job_id" validate:"required"`
	FullName   string    `json:"full_name" validate:"required,min=2,max=120"`
	Email      string    `json:"email" validate:"required,email"`
	TelegramID string    `json:"telegram_id,omitempty" validate:"omitempty,telegram_id"`
	CoverNote  string    `json:"cover_note,omitempty" validate:"max=2000"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// ApplicationRepository provides cached reads and invalidating writes over
// the applications table.
type ApplicationRepository struct {
	baseRepository
	validate *validator.Validate
}

// NewApplicationRepository constructs the repository with shared
// infrastructure injected.
func NewApplicationRepository(deps Deps) *ApplicationRepository {
	return &ApplicationRepository{
		baseRepository: newBaseRepository(applicationsTable, deps),
		validate:       newValidator(),
	}
}

// Create validates and inserts an application. A second submission with
// the same job and email within the duplicate-memo window is rejected
// without re-running the duplicate-check query.
func (r *ApplicationRepository) Create(ctx context.Context, app *Application) (*Application, error) {
	if err := r.validate.Struct(app); err != nil {
		return nil, validationError("CreateApplication", err)
	}

	email := strings.ToLower(strings.TrimSpace(app.Email))
	app.Email = email
	if app.Status == "" {
		app.Status = ApplicationStatusPending
	}

	dup, err := r.isDuplicate(ctx, app.JobID, email)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperrors.Conflict(apperrors.CodeDuplicateEntry, "an application for this job already exists").
			WithOperation("CreateApplication").
			WithResource(applicationsTable).
			Build()
	}

	res, err := r.write(ctx, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(applicationsTable).
			Insert(app, false, "", "representation", "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "CreateApplication", "insert failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	created, err := decodeApplications(res.Data)
	if err != nil || len(created) == 0 {
		return nil, apperrors.Internal("DECODE_FAILED", "could not decode created application").
			WithCause(err).Build()
	}

	// Memoize the duplicate verdict so a retried submission short-circuits.
	r.cache.Set(r.duplicateKey(app.JobID, email), cache.Entry{Data: []byte("1")}, r.ttl.DuplicateTTL)

	r.logger.Info("application created", zap.String("job_id", app.JobID))
	return &created[0], nil
}

// isDuplicate checks for an existing application with the same identifying
// fields. The verdict is cached briefly so retried submissions within the
// window skip the query.
func (r *ApplicationRepository) isDuplicate(ctx context.Context, jobID, email string) (bool, error) {
	key := r.duplicateKey(jobID, email)
	entry, err := r.cachedDirectRead(ctx, key, r.ttl.DuplicateTTL, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		_, count, err := conn.From(applicationsTable).
			Select("id", "exact", true).
			Eq("job_id", jobID).
			Eq("email", email).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "DuplicateCheck", "duplicate check failed")
		}
		exists := "0"
		if count > 0 {
			exists = "1"
		}
		return persistence.QueryResult{Data: []byte(exists)}, nil
	})
	if err != nil {
		return false, err
	}
	return string(entry.Data) == "1", nil
}

func (r *ApplicationRepository) duplicateKey(jobID, email string) string {
	return cache.Key(applicationsTable, "dup-check", cache.Page{}, cache.Filter{}, map[string]string{
		"job_id": jobID,
		"email":  email,
	})
}

// GetByID returns one application. Interactive lookups ride the batcher at
// high priority so they flush immediately.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*Application, error) {
	key := cache.Key(applicationsTable, "get", cache.Page{}, cache.Filter{}, map[string]string{"id": id})
	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.ListTTL, persistence.PriorityHigh, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(applicationsTable).
			Select("*", "", false).
			Eq("id", id).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "GetApplication", "select failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}

	apps, err := decodeApplications(entry.Data)
	if err != nil {
		return nil, apperrors.Internal("DECODE_FAILED", "could not decode application").WithCause(err).Build()
	}
	if len(apps) == 0 {
		return nil, apperrors.NotFound("APPLICATION_NOT_FOUND", fmt.Sprintf("application %s not found", id)).Build()
	}
	return &apps[0], nil
}

// List returns a filtered, paginated page of applications with the exact
// total count.
func (r *ApplicationRepository) List(ctx context.Context, filter cache.Filter, page cache.Page) ([]Application, *int64, error) {
	page = normalizePage(page)
	key := cache.Key(applicationsTable, "list", page, filter, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.ListTTL, persistence.PriorityMedium, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		q := conn.From(applicationsTable).Select("*", "exact", false)
		q = applyFilter(q, filter, "full_name")
		data, count, err := q.
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			Range(page.Offset, page.Offset+page.Limit-1, "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "ListApplications", "select failed")
		}
		return persistence.QueryResult{Data: data, Count: &count}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	apps, err := decodeApplications(entry.Data)
	if err != nil {
		return nil, nil, apperrors.Internal("DECODE_FAILED", "could not decode applications").WithCause(err).Build()
	}
	return apps, entry.Count, nil
}

// Search is a read like any other: its composite key derives from the
// search term and limit, with its own TTL.
func (r *ApplicationRepository) Search(ctx context.Context, term string, limit int) ([]Application, error) {
	limit = clampLimit(limit)
	key := cache.Key(applicationsTable, "search", cache.Page{Limit: limit}, cache.Filter{Search: term}, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.ListTTL, persistence.PriorityMedium, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(applicationsTable).
			Select("*", "", false).
			Ilike("full_name", "%"+term+"%").
			Range(0, limit-1, "").
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "SearchApplications", "search failed")
		}
		return persistence.QueryResult{Data: data}, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeApplications(entry.Data)
}

// Count returns the number of applications matching the filter. Counts are
// volatile, so they get the shortest TTL, and they never block interactive
// reads: they ride the batcher at low priority.
func (r *ApplicationRepository) Count(ctx context.Context, filter cache.Filter) (int64, error) {
	key := cache.Key(applicationsTable, "count", cache.Page{}, filter, nil)

	entry, err := r.cachedBatchedRead(ctx, key, r.ttl.CountTTL, persistence.PriorityLow, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		q := conn.From(applicationsTable).Select("id", "exact", true)
		q = applyFilter(q, filter, "full_name")
		_, count, err := q.Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "CountApplications", "count failed")
		}
		return persistence.QueryResult{Data: []byte(strconv.FormatInt(count, 10)), Count: &count}, nil
	})
	if err != nil {
		return 0, err
	}
	if entry.Count != nil {
		return *entry.Count, nil
	}
	return strconv.ParseInt(string(entry.Data), 10, 64)
}

// UpdateStatus transitions an application and invalidates every cached
// applications query.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id, status string) error {
	switch status {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusRejected:
	default:
		return apperrors.Validation("INVALID_STATUS", "unknown application status").
			WithField("status", "must be pending, approved, or rejected").
			Build()
	}

	_, err := r.write(ctx, func(ctx context.Context, conn persistence.Connection) (persistence.QueryResult, error) {
		data, _, err := conn.From(applicationsTable).
			Update(map[string]string{"status": status}, "representation", "").
			Eq("id", id).
			Execute()
		if err != nil {
			return persistence.QueryResult{}, apperrors.Wrap(err, "UpdateApplicationStatus", "update failed")
		}
		updated, derr := decodeApplications(data)
		if derr == nil && len(updated) == 0 {
			return persistence.QueryResult{}, apperrors.NotFound("APPLICATION_NOT_FOUND", fmt.Sprintf("application %s not found", id)).Build()
		}
		return persistence.QueryResult{Data: data}, nil
	})
	return err
}

// Approve marks an application approved.
func (r *ApplicationRepository) Approve(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, ApplicationStatusApproved)
}

// Reject marks an application rejected.
func (r *ApplicationRepository) Reject(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, ApplicationStatusRejected)
}

func decodeApplications(data []byte) ([]Application, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var apps []Application
	if err := json.Unmarshal(data, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

package repository

import (
	"github.com/supabase-community/postgrest-go"

	"jobboard-backend/internal/infrastructure/cache"
)

// defaultPageLimit bounds list queries that do not specify a limit.
const defaultPageLimit = 20

// maxPageLimit caps caller-supplied limits.
const maxPageLimit = 100

// normalizePage clamps pagination into a sane range.
func normalizePage(page cache.Page) cache.Page {
	if page.Limit <= 0 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

// clampLimit bounds a caller-supplied search limit.
func clampLimit(limit int) int {
	if limit <= 0 || limit > maxPageLimit {
		return defaultPageLimit
	}
	return limit
}

// applyFilter translates the tagged filter descriptor onto a postgrest
// query. searchColumn is the text column the Search term matches against.
func applyFilter(q *postgrest.FilterBuilder, filter cache.Filter, searchColumn string) *postgrest.FilterBuilder {
	if filter.Status != "" {
		q = q.Eq("status", filter.Status)
	}
	if filter.Search != "" && searchColumn != "" {
		q = q.Ilike(searchColumn, "%"+filter.Search+"%")
	}
	if !filter.DateFrom.IsZero() {
		q = q.Gte("created_at", filter.DateFrom.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !filter.DateTo.IsZero() {
		q = q.Lte("created_at", filter.DateTo.UTC().Format("2006-01-02T15:04:05Z"))
	}
	for column, value := range filter.Extra {
		q = q.Eq(column, value)
	}
	return q
}

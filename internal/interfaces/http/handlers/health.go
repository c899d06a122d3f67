package handlers

import (
	"net/http"

	"jobboard-backend/internal/infrastructure/cache"
	"jobboard-backend/internal/infrastructure/persistence"
	"jobboard-backend/internal/middleware"
	"jobboard-backend/pkg/api"
)

// StatsProvider aggregates the snapshot sources for the stats endpoint.
type StatsProvider struct {
	Pool     *persistence.Pool
	Batcher  *persistence.Batcher
	Cache    *cache.QueryCache
	Limiters []*middleware.RateLimiter
}

// Health serves GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats serves GET /admin/stats: the structured numeric snapshots exposed
// for external monitoring hooks.
func (p StatsProvider) Stats(w http.ResponseWriter, r *http.Request) {
	limiters := make([]middleware.RateLimiterStats, 0, len(p.Limiters))
	for _, rl := range p.Limiters {
		limiters = append(limiters, rl.Stats())
	}
	api.Success(w, http.StatusOK, map[string]interface{}{
		"pool":       p.Pool.Stats(),
		"batcher":    p.Batcher.Stats(),
		"cache":      p.Cache.Stats(),
		"rateLimits": limiters,
	})
}

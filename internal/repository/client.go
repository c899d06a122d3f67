// Package repository exposes typed CRUD and search operations for the job
// board's entities. Every read path consults the query cache first; every
// write path executes directly against a pooled connection and then
// invalidates the affected cache entries.
package repository

import (
	"context"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"jobboard-backend/internal/config"
	apperrors "jobboard-backend/internal/errors"
	"jobboard-backend/internal/infrastructure/persistence"
)

// supabaseConnection adapts a supabase client to the pool's Connection
// contract. The underlying client is stateless HTTP, so handles carry no
// close primitive.
type supabaseConnection struct {
	client *supabase.Client
}

func (c *supabaseConnection) From(table string) *postgrest.QueryBuilder {
	return c.client.From(table)
}

// NewSupabaseConnectionFactory returns the factory the pool uses to create
// backend handles on demand.
func NewSupabaseConnectionFactory(cfg config.SupabaseConfig) persistence.ConnectionFactory {
	return func(ctx context.Context) (persistence.Connection, error) {
		client, err := supabase.NewClient(cfg.URL, cfg.Key, nil)
		if err != nil {
			return nil, apperrors.Connection("SUPABASE_CLIENT_FAILED", "failed to create supabase client").
				WithCause(err).Build()
		}
		return &supabaseConnection{client: client}, nil
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EndpointStatRepository aggregates API calls per normalized route and method
type EndpointStatRepository interface {
	Increment(ctx context.Context, endpoint, method string) error
	List(ctx context.Context) ([]EndpointStat, error)
}

// EndpointStatRepo implements EndpointStatRepository using PostgreSQL via sqlx
type EndpointStatRepo struct {
	db *sqlx.DB
}

// NewEndpointStatRepo creates a new EndpointStatRepo instance
func NewEndpointStatRepo(db *sqlx.DB) *EndpointStatRepo {
	return &EndpointStatRepo{db: db}
}

// Increment upserts the counter for (endpoint, method)
func (r *EndpointStatRepo) Increment(ctx context.Context, endpoint, method string) error {
	query := `
		INSERT INTO endpoint_stats (endpoint, method, call_count, last_called_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (endpoint, method)
		DO UPDATE SET call_count = endpoint_stats.call_count + 1, last_called_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, endpoint, method); err != nil {
		return fmt.Errorf("increment endpoint stat: %w", err)
	}
	return nil
}

// List returns all counters, most called first
func (r *EndpointStatRepo) List(ctx context.Context) ([]EndpointStat, error) {
	query := `
		SELECT endpoint, method, call_count, last_called_at
		FROM endpoint_stats
		ORDER BY call_count DESC, endpoint ASC, method ASC
	`

	stats := []EndpointStat{}
	if err := r.db.SelectContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("list endpoint stats: %w", err)
	}
	return stats, nil
}

// Package postgres implements the repository interfaces on PostgreSQL.
//
// Expected schema:
//
//	activities(id uuid pk, farm_id uuid, type text, status text,
//	  priority text, created_by text, name text, description text,
//	  progress int, metadata jsonb, scheduled_at timestamptz,
//	  completed_at timestamptz, created_at timestamptz,
//	  updated_at timestamptz, version int)
//	assignments(id uuid pk, activity_id uuid, actor_id text, role text,
//	  is_primary bool, active bool, assigned_at timestamptz,
//	  assigned_by text)
//	notes(id uuid pk, activity_id uuid, actor_id text, content text,
//	  system bool, created_at timestamptz)
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
)

// BaseRepositoryConfig holds shared repository configuration
type BaseRepositoryConfig struct {
	QueryTimeout time.Duration
	CacheTimeout time.Duration
}

// BaseRepository provides common functionality for postgres repositories
type BaseRepository struct {
	writeDB *sqlx.DB
	readDB  *sqlx.DB
	cache   cache.Cache
	logger  observability.Logger
	tracer  observability.StartSpanFunc
	metrics observability.MetricsClient

	queryTimeout time.Duration
	cacheTimeout time.Duration
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(
	writeDB, readDB *sqlx.DB,
	c cache.Cache,
	logger observability.Logger,
	tracer observability.StartSpanFunc,
	metrics observability.MetricsClient,
	config BaseRepositoryConfig,
) *BaseRepository {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if config.CacheTimeout <= 0 {
		config.CacheTimeout = 5 * time.Minute
	}
	if c == nil {
		c = cache.NewNoopCache()
	}
	if tracer == nil {
		tracer = observability.NoopStartSpan
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoOpMetricsClient()
	}
	if readDB == nil {
		readDB = writeDB
	}
	return &BaseRepository{
		writeDB:      writeDB,
		readDB:       readDB,
		cache:        c,
		logger:       logger,
		tracer:       tracer,
		metrics:      metrics,
		queryTimeout: config.QueryTimeout,
		cacheTimeout: config.CacheTimeout,
	}
}

// withTimeout derives a context bounded by the repository query timeout
func (r *BaseRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.queryTimeout)
}

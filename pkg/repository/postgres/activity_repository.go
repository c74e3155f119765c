package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

// activityRepository implements ActivityRepository on postgres
type activityRepository struct {
	*BaseRepository
}

// NewActivityRepository creates a postgres-backed activity repository
func NewActivityRepository(
	writeDB, readDB *sqlx.DB,
	c cache.Cache,
	logger observability.Logger,
	tracer observability.StartSpanFunc,
	metrics observability.MetricsClient,
) interfaces.ActivityRepository {
	config := BaseRepositoryConfig{
		QueryTimeout: 30 * time.Second,
		CacheTimeout: 5 * time.Minute,
	}
	return &activityRepository{
		BaseRepository: NewBaseRepository(writeDB, readDB, c, logger, tracer, metrics, config),
	}
}

func activityCacheKey(id uuid.UUID) string {
	return "activity:" + id.String()
}

// Create inserts a new activity
func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	ctx, span := r.tracer(ctx, "ActivityRepository.Create")
	defer span.End()

	timer := r.metrics.StartTimer("repository_query_duration", map[string]string{"operation": "create_activity"})
	defer timer()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	now := time.Now()
	activity.CreatedAt = now
	activity.UpdatedAt = now
	activity.Version = 1
	if activity.Status == "" {
		activity.Status = models.ActivityStatusPlanned
	}

	query := `
		INSERT INTO activities (
			id, farm_id, type, status, priority, created_by,
			name, description, progress, metadata,
			scheduled_at, completed_at, created_at, updated_at, version
		) VALUES (
			:id, :farm_id, :type, :status, :priority, :created_by,
			:name, :description, :progress, :metadata,
			:scheduled_at, :completed_at, :created_at, :updated_at, :version
		)`

	if _, err := r.writeDB.NamedExecContext(ctx, query, activity); err != nil {
		return errors.Wrap(err, "failed to create activity")
	}
	return nil
}

// Get loads an activity with its assignments. The cache holds the row
// for CacheTimeout; every write invalidates it.
func (r *activityRepository) Get(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	ctx, span := r.tracer(ctx, "ActivityRepository.Get")
	defer span.End()

	var cached models.Activity
	if err := r.cache.Get(ctx, activityCacheKey(id), &cached); err == nil {
		return &cached, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var activity models.Activity
	err := r.readDB.GetContext(ctx, &activity,
		`SELECT id, farm_id, type, status, priority, created_by,
		        name, description, progress, metadata,
		        scheduled_at, completed_at, created_at, updated_at, version
		 FROM activities WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get activity")
	}

	assignments := []*models.Assignment{}
	err = r.readDB.SelectContext(ctx, &assignments,
		`SELECT id, activity_id, actor_id, role, is_primary, active, assigned_at, assigned_by
		 FROM assignments WHERE activity_id = $1 ORDER BY assigned_at`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load assignments")
	}
	activity.Assignments = assignments

	if err := r.cache.Set(ctx, activityCacheKey(id), &activity, r.cacheTimeout); err != nil {
		r.logger.Debug("Failed to cache activity", map[string]interface{}{
			"activity_id": id,
			"error":       err.Error(),
		})
	}

	return &activity, nil
}

// Update writes the activity unconditionally and bumps the watermark
func (r *activityRepository) Update(ctx context.Context, activity *models.Activity) error {
	ctx, span := r.tracer(ctx, "ActivityRepository.Update")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	activity.UpdatedAt = time.Now()
	activity.Version++

	query := `
		UPDATE activities SET
			type = :type,
			status = :status,
			priority = :priority,
			name = :name,
			description = :description,
			progress = :progress,
			metadata = :metadata,
			scheduled_at = :scheduled_at,
			completed_at = :completed_at,
			updated_at = :updated_at,
			version = :version
		WHERE id = :id`

	result, err := r.writeDB.NamedExecContext(ctx, query, activity)
	if err != nil {
		return errors.Wrap(err, "failed to update activity")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		return interfaces.ErrNotFound
	}

	return r.invalidate(ctx, activity.ID)
}

// UpdateWithVersion updates an activity with optimistic locking
func (r *activityRepository) UpdateWithVersion(ctx context.Context, activity *models.Activity, expectedVersion int) error {
	ctx, span := r.tracer(ctx, "ActivityRepository.UpdateWithVersion")
	defer span.End()

	timer := r.metrics.StartTimer("repository_query_duration", map[string]string{"operation": "update_with_version"})
	defer timer()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	activity.Version = expectedVersion + 1
	activity.UpdatedAt = time.Now()

	query := `
		UPDATE activities SET
			type = :type,
			status = :status,
			priority = :priority,
			name = :name,
			description = :description,
			progress = :progress,
			metadata = :metadata,
			scheduled_at = :scheduled_at,
			completed_at = :completed_at,
			updated_at = :updated_at,
			version = :version
		WHERE id = :id AND version = :expected_version`

	type activityWithExpectedVersion struct {
		*models.Activity
		ExpectedVersion int `db:"expected_version"`
	}

	result, err := r.writeDB.NamedExecContext(ctx, query, &activityWithExpectedVersion{
		Activity:        activity,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update activity with version")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if rows == 0 {
		// Either the row is gone or a concurrent writer won the race
		activity.Version = expectedVersion
		return interfaces.ErrOptimisticLock
	}

	return r.invalidate(ctx, activity.ID)
}

// ListByFarm returns the farm's activities matching the filters,
// assignments not loaded
func (r *activityRepository) ListByFarm(ctx context.Context, farmID uuid.UUID, filters interfaces.ActivityFilters) ([]*models.Activity, error) {
	ctx, span := r.tracer(ctx, "ActivityRepository.ListByFarm")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	conditions := []string{"farm_id = $1"}
	args := []interface{}{farmID}

	if len(filters.Status) > 0 {
		args = append(args, pq.Array(filters.Status))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filters.Types) > 0 {
		args = append(args, pq.Array(filters.Types))
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if filters.UpdatedAfter != nil {
		args = append(args, *filters.UpdatedAfter)
		conditions = append(conditions, fmt.Sprintf("updated_at > $%d", len(args)))
	}
	if filters.AssignedTo != nil {
		args = append(args, *filters.AssignedTo)
		conditions = append(conditions, fmt.Sprintf(
			"id IN (SELECT activity_id FROM assignments WHERE actor_id = $%d AND active)", len(args)))
	}

	query := fmt.Sprintf(
		`SELECT id, farm_id, type, status, priority, created_by,
		        name, description, progress, metadata,
		        scheduled_at, completed_at, created_at, updated_at, version
		 FROM activities WHERE %s ORDER BY updated_at DESC`,
		strings.Join(conditions, " AND "))
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filters.Offset)
	}

	activities := []*models.Activity{}
	if err := r.readDB.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list activities")
	}
	return activities, nil
}

func (r *activityRepository) invalidate(ctx context.Context, id uuid.UUID) error {
	if err := r.cache.Delete(ctx, activityCacheKey(id)); err != nil {
		r.logger.Debug("Failed to invalidate activity cache", map[string]interface{}{
			"activity_id": id,
			"error":       err.Error(),
		})
	}
	return nil
}

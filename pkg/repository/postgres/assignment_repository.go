package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

// assignmentRepository implements AssignmentRepository on postgres
type assignmentRepository struct {
	*BaseRepository
}

// NewAssignmentRepository creates a postgres-backed assignment repository
func NewAssignmentRepository(
	writeDB, readDB *sqlx.DB,
	c cache.Cache,
	logger observability.Logger,
	tracer observability.StartSpanFunc,
	metrics observability.MetricsClient,
) interfaces.AssignmentRepository {
	config := BaseRepositoryConfig{
		QueryTimeout: 30 * time.Second,
	}
	return &assignmentRepository{
		BaseRepository: NewBaseRepository(writeDB, readDB, c, logger, tracer, metrics, config),
	}
}

// ReplaceActive deactivates every active assignment of the activity and
// inserts the replacements inside one transaction
func (r *assignmentRepository) ReplaceActive(ctx context.Context, activityID uuid.UUID, assignments []*models.Assignment) error {
	ctx, span := r.tracer(ctx, "AssignmentRepository.ReplaceActive")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.writeDB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignments SET active = false WHERE activity_id = $1 AND active`, activityID); err != nil {
		return errors.Wrap(err, "failed to deactivate assignments")
	}

	insert := `
		INSERT INTO assignments (
			id, activity_id, actor_id, role, is_primary, active, assigned_at, assigned_by
		) VALUES (
			:id, :activity_id, :actor_id, :role, :is_primary, :active, :assigned_at, :assigned_by
		)`
	for _, a := range assignments {
		if _, err := tx.NamedExecContext(ctx, insert, a); err != nil {
			return errors.Wrapf(err, "failed to insert assignment for actor %s", a.ActorID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit assignment replacement")
	}

	// Assignments ride along on the cached activity row
	if err := r.cache.Delete(ctx, activityCacheKey(activityID)); err != nil {
		r.logger.Debug("Failed to invalidate activity cache", map[string]interface{}{
			"activity_id": activityID,
			"error":       err.Error(),
		})
	}
	return nil
}

// ListActive returns the active assignments for the activity
func (r *assignmentRepository) ListActive(ctx context.Context, activityID uuid.UUID) ([]*models.Assignment, error) {
	ctx, span := r.tracer(ctx, "AssignmentRepository.ListActive")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	assignments := []*models.Assignment{}
	err := r.readDB.SelectContext(ctx, &assignments,
		`SELECT id, activity_id, actor_id, role, is_primary, active, assigned_at, assigned_by
		 FROM assignments WHERE activity_id = $1 AND active ORDER BY assigned_at`, activityID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active assignments")
	}
	return assignments, nil
}

// CountActive returns the number of active assignments for the activity
func (r *assignmentRepository) CountActive(ctx context.Context, activityID uuid.UUID) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int
	err := r.readDB.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM assignments WHERE activity_id = $1 AND active`, activityID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count active assignments")
	}
	return count, nil
}

// Deactivate marks the actor's active assignment inactive
func (r *assignmentRepository) Deactivate(ctx context.Context, activityID uuid.UUID, actorID string) error {
	ctx, span := r.tracer(ctx, "AssignmentRepository.Deactivate")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.writeDB.ExecContext(ctx,
		`UPDATE assignments SET active = false
		 WHERE activity_id = $1 AND actor_id = $2 AND active`, activityID, actorID)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate assignment")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check deactivate result")
	}
	if rows == 0 {
		return interfaces.ErrNotFound
	}

	if err := r.cache.Delete(ctx, activityCacheKey(activityID)); err != nil {
		r.logger.Debug("Failed to invalidate activity cache", map[string]interface{}{
			"activity_id": activityID,
			"error":       err.Error(),
		})
	}
	return nil
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

func newTestActivityRepository(t *testing.T) (interfaces.ActivityRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	repo := NewActivityRepository(db, db, cache.NewNoopCache(),
		observability.NewNoopLogger(), observability.NoopStartSpan, observability.NewNoOpMetricsClient())
	return repo, mock
}

func activityColumns() []string {
	return []string{
		"id", "farm_id", "type", "status", "priority", "created_by",
		"name", "description", "progress", "metadata",
		"scheduled_at", "completed_at", "created_at", "updated_at", "version",
	}
}

func activityRow(id, farmID uuid.UUID, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(activityColumns()).AddRow(
		id, farmID, "irrigation", "planned", "medium", "actor-1",
		"Irrigate north field", "", 0, []byte(`{"plot":"north-7"}`),
		nil, nil, now, now, version,
	)
}

func TestActivityRepository_Create(t *testing.T) {
	repo, mock := newTestActivityRepository(t)

	mock.ExpectExec("INSERT INTO activities").
		WillReturnResult(sqlmock.NewResult(0, 1))

	activity := &models.Activity{
		FarmID:    uuid.New(),
		Type:      "irrigation",
		CreatedBy: "actor-1",
		Name:      "Irrigate north field",
	}
	require.NoError(t, repo.Create(context.Background(), activity))

	assert.NotEqual(t, uuid.Nil, activity.ID)
	assert.Equal(t, models.ActivityStatusPlanned, activity.Status)
	assert.Equal(t, 1, activity.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_Get(t *testing.T) {
	repo, mock := newTestActivityRepository(t)
	id := uuid.New()
	farmID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM activities WHERE id").
		WithArgs(id).
		WillReturnRows(activityRow(id, farmID, 3))
	mock.ExpectQuery("SELECT (.+) FROM assignments WHERE activity_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "activity_id", "actor_id", "role", "is_primary", "active", "assigned_at", "assigned_by",
		}).AddRow(uuid.New(), id, "actor-2", "worker", true, true, time.Now(), "actor-1"))

	activity, err := repo.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, id, activity.ID)
	assert.Equal(t, farmID, activity.FarmID)
	assert.Equal(t, 3, activity.Version)
	assert.Equal(t, "north-7", activity.Metadata["plot"])
	require.Len(t, activity.Assignments, 1)
	assert.Equal(t, "actor-2", activity.Assignments[0].ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_Get_NotFound(t *testing.T) {
	repo, mock := newTestActivityRepository(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM activities WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(activityColumns()))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_UpdateWithVersion(t *testing.T) {
	repo, mock := newTestActivityRepository(t)

	mock.ExpectExec("UPDATE activities SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	activity := &models.Activity{
		ID:      uuid.New(),
		FarmID:  uuid.New(),
		Status:  models.ActivityStatusInProgress,
		Version: 2,
	}
	require.NoError(t, repo.UpdateWithVersion(context.Background(), activity, 2))

	assert.Equal(t, 3, activity.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_UpdateWithVersion_Conflict(t *testing.T) {
	repo, mock := newTestActivityRepository(t)

	// A concurrent writer already bumped the version, no row matches
	mock.ExpectExec("UPDATE activities SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	activity := &models.Activity{
		ID:      uuid.New(),
		FarmID:  uuid.New(),
		Status:  models.ActivityStatusInProgress,
		Version: 2,
	}
	err := repo.UpdateWithVersion(context.Background(), activity, 2)

	assert.ErrorIs(t, err, interfaces.ErrOptimisticLock)
	assert.Equal(t, 2, activity.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_ListByFarm(t *testing.T) {
	repo, mock := newTestActivityRepository(t)
	farmID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM activities WHERE farm_id (.+) status = ANY").
		WillReturnRows(activityRow(id, farmID, 1))

	activities, err := repo.ListByFarm(context.Background(), farmID, interfaces.ActivityFilters{
		Status: []string{"planned", "in_progress"},
		Limit:  10,
	})
	require.NoError(t, err)

	require.Len(t, activities, 1)
	assert.Equal(t, id, activities[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepository_GetUsesCache(t *testing.T) {
	db, mock := newMockDB(t)
	mem := cache.NewMemoryCache(16, time.Minute)
	repo := NewActivityRepository(db, db, mem,
		observability.NewNoopLogger(), observability.NoopStartSpan, observability.NewNoOpMetricsClient())

	id := uuid.New()
	farmID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM activities WHERE id").
		WithArgs(id).
		WillReturnRows(activityRow(id, farmID, 1))
	mock.ExpectQuery("SELECT (.+) FROM assignments WHERE activity_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "activity_id", "actor_id", "role", "is_primary", "active", "assigned_at", "assigned_by",
		}))

	first, err := repo.Get(context.Background(), id)
	require.NoError(t, err)

	// Second read is served from cache, no further queries expected
	second, err := repo.Get(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

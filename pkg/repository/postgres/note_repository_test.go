package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

func newTestNoteRepository(t *testing.T) (interfaces.NoteRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock := newMockDB(t)
	repo := NewNoteRepository(db, db, cache.NewNoopCache(),
		observability.NewNoopLogger(), observability.NoopStartSpan, observability.NewNoOpMetricsClient())
	return repo, mock
}

func noteColumns() []string {
	return []string{"id", "activity_id", "actor_id", "content", "system", "created_at"}
}

func TestNoteRepository_Create(t *testing.T) {
	repo, mock := newTestNoteRepository(t)

	mock.ExpectExec("INSERT INTO notes").
		WillReturnResult(sqlmock.NewResult(0, 1))

	note := &models.Note{
		ActivityID: uuid.New(),
		ActorID:    "actor-1",
		Content:    "Sprayed the east rows before noon",
	}
	require.NoError(t, repo.Create(context.Background(), note))

	assert.NotEqual(t, uuid.Nil, note.ID)
	assert.False(t, note.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepository_ListByActivity(t *testing.T) {
	repo, mock := newTestNoteRepository(t)
	activityID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM notes WHERE activity_id").
		WithArgs(activityID).
		WillReturnRows(sqlmock.NewRows(noteColumns()).
			AddRow(uuid.New(), activityID, "actor-1", "first", false, time.Now().Add(-time.Hour)).
			AddRow(uuid.New(), activityID, "actor-2", "second", true, time.Now()))

	notes, err := repo.ListByActivity(context.Background(), activityID)
	require.NoError(t, err)

	require.Len(t, notes, 2)
	assert.Equal(t, "first", notes[0].Content)
	assert.True(t, notes[1].System)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepository_FindDuplicate(t *testing.T) {
	repo, mock := newTestNoteRepository(t)
	activityID := uuid.New()
	since := time.Now().Add(-time.Hour)

	t.Run("found", func(t *testing.T) {
		noteID := uuid.New()
		mock.ExpectQuery("SELECT (.+) FROM notes").
			WithArgs(activityID, "actor-1", "same text", since).
			WillReturnRows(sqlmock.NewRows(noteColumns()).
				AddRow(noteID, activityID, "actor-1", "same text", false, time.Now()))

		note, err := repo.FindDuplicate(context.Background(), activityID, "actor-1", "same text", since)
		require.NoError(t, err)
		assert.Equal(t, noteID, note.ID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM notes").
			WithArgs(activityID, "actor-1", "new text", since).
			WillReturnRows(sqlmock.NewRows(noteColumns()))

		_, err := repo.FindDuplicate(context.Background(), activityID, "actor-1", "new text", since)
		assert.ErrorIs(t, err, interfaces.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

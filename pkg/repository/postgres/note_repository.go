package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fieldmesh/fieldmesh/pkg/common/cache"
	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/observability"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

// noteRepository implements NoteRepository on postgres
type noteRepository struct {
	*BaseRepository
}

// NewNoteRepository creates a postgres-backed note repository
func NewNoteRepository(
	writeDB, readDB *sqlx.DB,
	c cache.Cache,
	logger observability.Logger,
	tracer observability.StartSpanFunc,
	metrics observability.MetricsClient,
) interfaces.NoteRepository {
	config := BaseRepositoryConfig{
		QueryTimeout: 30 * time.Second,
	}
	return &noteRepository{
		BaseRepository: NewBaseRepository(writeDB, readDB, c, logger, tracer, metrics, config),
	}
}

// Create inserts a new note
func (r *noteRepository) Create(ctx context.Context, note *models.Note) error {
	ctx, span := r.tracer(ctx, "NoteRepository.Create")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if note.ID == uuid.Nil {
		note.ID = uuid.New()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO notes (id, activity_id, actor_id, content, system, created_at)
		VALUES (:id, :activity_id, :actor_id, :content, :system, :created_at)`
	if _, err := r.writeDB.NamedExecContext(ctx, query, note); err != nil {
		return errors.Wrap(err, "failed to create note")
	}
	return nil
}

// ListByActivity returns the activity's notes, oldest first
func (r *noteRepository) ListByActivity(ctx context.Context, activityID uuid.UUID) ([]*models.Note, error) {
	ctx, span := r.tracer(ctx, "NoteRepository.ListByActivity")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	notes := []*models.Note{}
	err := r.readDB.SelectContext(ctx, &notes,
		`SELECT id, activity_id, actor_id, content, system, created_at
		 FROM notes WHERE activity_id = $1 ORDER BY created_at`, activityID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notes")
	}
	return notes, nil
}

// FindDuplicate returns a note by the same actor with identical content
// created after since
func (r *noteRepository) FindDuplicate(ctx context.Context, activityID uuid.UUID, actorID, content string, since time.Time) (*models.Note, error) {
	ctx, span := r.tracer(ctx, "NoteRepository.FindDuplicate")
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var note models.Note
	err := r.readDB.GetContext(ctx, &note,
		`SELECT id, activity_id, actor_id, content, system, created_at
		 FROM notes
		 WHERE activity_id = $1 AND actor_id = $2 AND content = $3 AND created_at > $4
		 ORDER BY created_at DESC LIMIT 1`,
		activityID, actorID, content, since)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find duplicate note")
	}
	return &note, nil
}

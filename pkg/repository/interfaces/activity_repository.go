// Package interfaces defines the persistence contracts consumed by the
// fieldmesh services. Implementations must maintain a monotonic
// UpdatedAt watermark on every successful activity write.
package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// ActivityFilters defines filtering options for activity queries
type ActivityFilters struct {
	Status       []string
	Types        []string
	AssignedTo   *string
	UpdatedAfter *time.Time
	Limit        int
	Offset       int
}

// ActivityRepository defines the interface for activity persistence.
// Get and ListByFarm return activities with their assignments loaded.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	Get(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	Update(ctx context.Context, activity *models.Activity) error

	// UpdateWithVersion performs an optimistic-concurrency write: the
	// row is updated only when its stored version equals
	// expectedVersion. Returns ErrOptimisticLock otherwise.
	UpdateWithVersion(ctx context.Context, activity *models.Activity, expectedVersion int) error

	ListByFarm(ctx context.Context, farmID uuid.UUID, filters ActivityFilters) ([]*models.Activity, error)
}

// AssignmentRepository defines the interface for assignment persistence
type AssignmentRepository interface {
	// ReplaceActive atomically deactivates every active assignment of
	// the activity and inserts the given replacements. All-or-nothing.
	ReplaceActive(ctx context.Context, activityID uuid.UUID, assignments []*models.Assignment) error

	ListActive(ctx context.Context, activityID uuid.UUID) ([]*models.Assignment, error)
	CountActive(ctx context.Context, activityID uuid.UUID) (int, error)
	Deactivate(ctx context.Context, activityID uuid.UUID, actorID string) error
}

// NoteRepository defines the interface for note persistence
type NoteRepository interface {
	Create(ctx context.Context, note *models.Note) error
	ListByActivity(ctx context.Context, activityID uuid.UUID) ([]*models.Note, error)

	// FindDuplicate returns a note by the same actor with identical
	// content created after since, or ErrNotFound
	FindDuplicate(ctx context.Context, activityID uuid.UUID, actorID, content string, since time.Time) (*models.Note, error)
}

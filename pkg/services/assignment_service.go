package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

const defaultAssignmentRole = "worker"

type assignmentService struct {
	BaseService

	repo interfaces.AssignmentRepository

	now func() time.Time
}

// NewAssignmentService creates the assignment registry
func NewAssignmentService(config ServiceConfig, repo interfaces.AssignmentRepository) AssignmentService {
	return &assignmentService{
		BaseService: NewBaseService(config),
		repo:        repo,
		now:         time.Now,
	}
}

// Assign atomically replaces the activity's active assignment set with
// the given actor list. The first actor becomes the nominal primary
// assignee. The repository makes the replacement all-or-nothing.
func (s *assignmentService) Assign(ctx context.Context, activity *models.Activity, actorIDs []string, actingUser string, opts AssignOptions) ([]*models.Assignment, error) {
	ctx, span := s.config.Tracer(ctx, "AssignmentService.Assign")
	defer span.End()

	if len(actorIDs) == 0 {
		return nil, ValidationError{Field: "actors", Message: "at least one actor is required"}
	}
	seen := make(map[string]bool, len(actorIDs))
	for _, id := range actorIDs {
		if id == "" {
			return nil, ValidationError{Field: "actors", Message: "actor id must not be empty"}
		}
		if seen[id] {
			return nil, ValidationError{Field: "actors", Message: "duplicate actor id " + id}
		}
		seen[id] = true
	}

	role := opts.Role
	if role == "" {
		role = defaultAssignmentRole
	}

	now := s.now()
	assignments := make([]*models.Assignment, 0, len(actorIDs))
	for i, actorID := range actorIDs {
		assignments = append(assignments, &models.Assignment{
			ID:         uuid.New(),
			ActivityID: activity.ID,
			ActorID:    actorID,
			Role:       role,
			Primary:    i == 0,
			Active:     true,
			AssignedAt: now,
			AssignedBy: actingUser,
		})
	}

	if err := s.repo.ReplaceActive(ctx, activity.ID, assignments); err != nil {
		return nil, errors.Wrap(err, "failed to replace assignments")
	}

	// Mirror the new active set onto the in-memory activity; superseded
	// assignments are kept, deactivated
	for _, a := range activity.Assignments {
		a.Active = false
	}
	activity.Assignments = append(activity.Assignments, assignments...)

	s.config.Logger.Info("Assignments replaced", map[string]interface{}{
		"activity_id": activity.ID,
		"actor_count": len(actorIDs),
		"assigned_by": actingUser,
	})
	s.config.Metrics.IncrementCounter("assignments_replaced", 1)

	return assignments, nil
}

// Unassign deactivates the actor's assignment. Removing the last
// active assignee is a validation error: once any assignment exists the
// activity keeps at least one active assignee.
func (s *assignmentService) Unassign(ctx context.Context, activity *models.Activity, actorID string) error {
	ctx, span := s.config.Tracer(ctx, "AssignmentService.Unassign")
	defer span.End()

	count, err := s.repo.CountActive(ctx, activity.ID)
	if err != nil {
		return errors.Wrap(err, "failed to count active assignments")
	}
	if count <= 1 {
		return ValidationError{
			Field:   "actor",
			Message: "cannot remove the last active assignee",
		}
	}

	if err := s.repo.Deactivate(ctx, activity.ID, actorID); err != nil {
		return errors.Wrap(err, "failed to deactivate assignment")
	}

	for _, a := range activity.Assignments {
		if a.ActorID == actorID {
			a.Active = false
		}
	}

	s.config.Logger.Info("Assignment deactivated", map[string]interface{}{
		"activity_id": activity.ID,
		"actor_id":    actorID,
	})

	return nil
}

// CheckAssignment reports whether the actor holds an active assignment
// on the activity. Loaded assignments are consulted first; the
// repository is the fallback when the activity has none attached.
func (s *assignmentService) CheckAssignment(ctx context.Context, activity *models.Activity, actorID string) (bool, error) {
	if activity.Assignments != nil {
		return activity.HasActiveAssignee(actorID), nil
	}

	active, err := s.repo.ListActive(ctx, activity.ID)
	if err != nil {
		return false, errors.Wrap(err, "failed to list active assignments")
	}
	for _, a := range active {
		if a.ActorID == actorID {
			return true, nil
		}
	}
	return false, nil
}

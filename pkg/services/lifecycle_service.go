package services

import (
	"context"
	"time"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// allowedTransitions is the fixed activity lifecycle table. Completed
// and cancelled are terminal. The table is package-level and never
// mutated at runtime.
var allowedTransitions = map[models.ActivityStatus][]models.ActivityStatus{
	models.ActivityStatusPlanned:    {models.ActivityStatusInProgress, models.ActivityStatusCancelled},
	models.ActivityStatusInProgress: {models.ActivityStatusCompleted, models.ActivityStatusPaused, models.ActivityStatusCancelled},
	models.ActivityStatusPaused:     {models.ActivityStatusInProgress, models.ActivityStatusCancelled},
	models.ActivityStatusCompleted:  {},
	models.ActivityStatusCancelled:  {},
}

// AllowedTransitions returns the legal targets for the given status.
// The returned slice is a copy; callers may not mutate the table.
func AllowedTransitions(from models.ActivityStatus) []models.ActivityStatus {
	allowed := allowedTransitions[from]
	out := make([]models.ActivityStatus, len(allowed))
	copy(out, allowed)
	return out
}

// IsTransitionAllowed reports whether from -> to is in the table
func IsTransitionAllowed(from, to models.ActivityStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

type lifecycleService struct {
	BaseService

	assignments AssignmentService

	// now is swappable for tests
	now func() time.Time
}

// NewLifecycleService creates the activity lifecycle state machine
func NewLifecycleService(config ServiceConfig, assignments AssignmentService) LifecycleService {
	return &lifecycleService{
		BaseService: NewBaseService(config),
		assignments: assignments,
		now:         time.Now,
	}
}

// RequestTransition validates the transition against the lifecycle
// table and the assignment registry, stamps transition metadata, and
// returns the updated activity value. Persistence and notification are
// the caller's responsibility.
func (s *lifecycleService) RequestTransition(ctx context.Context, activity *models.Activity, target models.ActivityStatus, actorID string, opts TransitionOptions) (*models.Activity, error) {
	ctx, span := s.config.Tracer(ctx, "LifecycleService.RequestTransition")
	defer span.End()

	current := activity.Status

	if !IsTransitionAllowed(current, target) {
		s.config.Metrics.IncrementCounter("lifecycle_transition_rejected", 1)
		return nil, InvalidStateError{
			Current: current,
			Target:  target,
			Allowed: AllowedTransitions(current),
		}
	}

	authorized, err := s.authorize(ctx, activity, target, actorID)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, AuthorizationError{
			ActorID: actorID,
			Action:  "transition to " + string(target),
			Reason:  "not an active assignee",
		}
	}

	now := s.now()
	updated := activity.Clone()
	updated.Status = target

	stamps := models.JSONMap{}
	switch {
	case current == models.ActivityStatusPlanned && target == models.ActivityStatusInProgress:
		stamps[models.MetaStartedAt] = now.Format(time.RFC3339)
	case target == models.ActivityStatusPaused:
		stamps[models.MetaPausedAt] = now.Format(time.RFC3339)
	case current == models.ActivityStatusPaused && target == models.ActivityStatusInProgress:
		stamps[models.MetaResumedAt] = now.Format(time.RFC3339)
	case target == models.ActivityStatusCompleted:
		stamps[models.MetaCompletedAt] = now.Format(time.RFC3339)
		updated.CompletedAt = &now
	}
	if target == models.ActivityStatusCancelled && opts.Reason != "" {
		stamps["cancellationReason"] = opts.Reason
	}

	updated.MergeMetadata(stamps)
	if len(opts.Metadata) > 0 {
		updated.MergeMetadata(opts.Metadata)
	}

	s.config.Logger.Info("Activity transition applied", map[string]interface{}{
		"activity_id": activity.ID,
		"from":        current,
		"to":          target,
		"actor_id":    actorID,
	})

	return updated, nil
}

// authorize permits active assignees for all transitions; cancellation
// is additionally permitted for the activity creator
func (s *lifecycleService) authorize(ctx context.Context, activity *models.Activity, target models.ActivityStatus, actorID string) (bool, error) {
	ok, err := s.assignments.CheckAssignment(ctx, activity, actorID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if target == models.ActivityStatusCancelled && activity.CreatedBy == actorID {
		return true, nil
	}
	return false, nil
}

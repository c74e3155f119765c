// Package services contains the fieldmesh core: the activity lifecycle
// state machine, the assignment registry it authorizes against, and the
// conflict detection / resolution / batch-sync engine used when a
// mobile client reconnects.
package services

import (
	"context"
	"time"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// TransitionOptions carries optional context for a lifecycle transition
type TransitionOptions struct {
	// Reason is recorded in metadata for cancellations
	Reason string

	// Metadata is merged additively into the activity metadata
	Metadata models.JSONMap
}

// LifecycleService validates and applies activity status transitions.
// RequestTransition is a pure transformation: it returns the updated
// activity value and leaves persistence and notification to the caller.
type LifecycleService interface {
	RequestTransition(ctx context.Context, activity *models.Activity, target models.ActivityStatus, actorID string, opts TransitionOptions) (*models.Activity, error)
}

// AssignOptions carries optional parameters for assignment replacement
type AssignOptions struct {
	Role string
}

// AssignmentService tracks which actors are authorized to act on an
// activity
type AssignmentService interface {
	// Assign atomically replaces the activity's active assignment set.
	// The first actor becomes the nominal primary assignee.
	Assign(ctx context.Context, activity *models.Activity, actorIDs []string, actingUser string, opts AssignOptions) ([]*models.Assignment, error)

	// Unassign deactivates the actor's assignment; fails when it would
	// leave zero active assignees
	Unassign(ctx context.Context, activity *models.Activity, actorID string) error

	// CheckAssignment is the sole authorization primitive consumed by
	// the lifecycle service and the sync orchestrator
	CheckAssignment(ctx context.Context, activity *models.Activity, actorID string) (bool, error)
}

// ConflictDetector compares a server-held activity snapshot against a
// client-submitted one
type ConflictDetector interface {
	DetectConflicts(server models.ActivitySnapshot, client models.JSONMap, clientLastSync time.Time) []models.SyncConflict
}

// ResolutionPolicy decides which side wins a field conflict. Swappable
// so per-tenant or per-field-type policies can be substituted without
// touching detection or batching.
type ResolutionPolicy interface {
	// Name is the strategy label recorded in the resolution audit
	Name() string

	// ServerWins reports whether the server value is authoritative for
	// the field
	ServerWins(field string) bool
}

// ConflictResolver merges detected conflicts into a final value
type ConflictResolver interface {
	ResolveConflicts(server models.ActivitySnapshot, client models.JSONMap, conflicts []models.SyncConflict, actorID string) models.ResolutionResult
}

// SyncService drives a batch of client-submitted updates and notes
// through detection, resolution and lifecycle validation with per-item
// failure isolation
type SyncService interface {
	SyncBatch(ctx context.Context, updates []models.ActivityUpdate, notes []models.NoteSubmission, clientLastSync time.Time, actorID string) (*models.SyncResult, error)
}

// Broadcaster is notified of merged activity state. Delivery semantics
// are outside the core; a notification failure must never fail the sync
// operation itself.
type Broadcaster interface {
	ActivityUpdated(ctx context.Context, activity *models.Activity) error
}

// NoopBroadcaster discards all notifications
type NoopBroadcaster struct{}

// ActivityUpdated implements Broadcaster
func (NoopBroadcaster) ActivityUpdated(ctx context.Context, activity *models.Activity) error {
	return nil
}

package services

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/fieldmesh/fieldmesh/pkg/models"
	"github.com/fieldmesh/fieldmesh/pkg/repository/interfaces"
)

// SyncConfig tunes the batch sync orchestrator
type SyncConfig struct {
	// MaxConcurrency bounds how many distinct activities are processed
	// in parallel. Items for the same activity never run concurrently.
	MaxConcurrency int

	// MaxWriteRetries bounds optimistic-lock retries per item
	MaxWriteRetries uint64

	// RetryInitialInterval seeds the backoff between write retries
	RetryInitialInterval time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.MaxWriteRetries == 0 {
		c.MaxWriteRetries = 3
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 50 * time.Millisecond
	}
	return c
}

type syncService struct {
	BaseService

	activities interfaces.ActivityRepository
	notes      interfaces.NoteRepository

	lifecycle   LifecycleService
	assignments AssignmentService
	detector    ConflictDetector
	resolver    ConflictResolver

	broadcaster Broadcaster
	breaker     *gobreaker.CircuitBreaker

	syncConfig SyncConfig

	// locks serializes processing per activity id across concurrent
	// SyncBatch calls
	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewSyncService creates the batch sync orchestrator
func NewSyncService(
	config ServiceConfig,
	syncConfig SyncConfig,
	activities interfaces.ActivityRepository,
	notes interfaces.NoteRepository,
	lifecycle LifecycleService,
	assignments AssignmentService,
	detector ConflictDetector,
	resolver ConflictResolver,
	broadcaster Broadcaster,
) SyncService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	settings := config.BreakerSettings
	if settings == nil {
		settings = &gobreaker.Settings{Name: "broadcaster"}
	}
	return &syncService{
		BaseService: NewBaseService(config),
		activities:  activities,
		notes:       notes,
		lifecycle:   lifecycle,
		assignments: assignments,
		detector:    detector,
		resolver:    resolver,
		broadcaster: broadcaster,
		breaker:     gobreaker.NewCircuitBreaker(*settings),
		syncConfig:  syncConfig.withDefaults(),
	}
}

// SyncBatch applies client-collected updates and notes against current
// server state. Distinct activities are processed in parallel, items
// for one activity in submission order. Item failures are recorded and
// never abort sibling items.
func (s *syncService) SyncBatch(ctx context.Context, updates []models.ActivityUpdate, notes []models.NoteSubmission, clientLastSync time.Time, actorID string) (*models.SyncResult, error) {
	ctx, span := s.config.Tracer(ctx, "SyncService.SyncBatch")
	defer span.End()

	timer := s.config.Metrics.StartTimer("sync_batch_duration", map[string]string{})
	defer timer()

	result := &models.SyncResult{Errors: []models.SyncError{}}
	var resultMu sync.Mutex

	// Group updates by activity id, preserving submission order within
	// each group
	groups := make(map[uuid.UUID][]models.ActivityUpdate)
	order := make([]uuid.UUID, 0, len(updates))
	for _, u := range updates {
		if _, ok := groups[u.ActivityID]; !ok {
			order = append(order, u.ActivityID)
		}
		groups[u.ActivityID] = append(groups[u.ActivityID], u)
	}

	g := &errgroup.Group{}
	g.SetLimit(s.syncConfig.MaxConcurrency)

	for _, id := range order {
		id := id
		items := groups[id]
		g.Go(func() error {
			unlock := s.lockActivity(id)
			defer unlock()

			for _, item := range items {
				if err := s.processUpdate(ctx, item, clientLastSync, actorID); err != nil {
					s.config.Logger.Warn("Sync item failed", map[string]interface{}{
						"activity_id": item.ActivityID,
						"actor_id":    actorID,
						"error":       err.Error(),
					})
					resultMu.Lock()
					result.Errors = append(result.Errors, models.SyncError{
						ItemID:  item.ActivityID.String(),
						Message: err.Error(),
					})
					resultMu.Unlock()
					continue
				}
				resultMu.Lock()
				result.ActivitiesUpdated++
				resultMu.Unlock()
			}
			return nil
		})
	}

	// Worker goroutines swallow item errors, Wait never fails
	_ = g.Wait()

	for _, n := range notes {
		added, err := s.processNote(ctx, n, clientLastSync, actorID)
		if err != nil {
			result.Errors = append(result.Errors, models.SyncError{
				ItemID:  n.ActivityID.String(),
				Message: err.Error(),
			})
			continue
		}
		if added {
			result.NotesAdded++
		}
	}

	s.config.Logger.Info("Sync batch complete", map[string]interface{}{
		"actor_id":           actorID,
		"activities_updated": result.ActivitiesUpdated,
		"notes_added":        result.NotesAdded,
		"errors":             len(result.Errors),
	})

	return result, nil
}

func (s *syncService) lockActivity(id uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// processUpdate runs one item through detection, resolution, lifecycle
// validation and a versioned write. An optimistic-lock loss re-reads
// the activity and re-runs the whole pipeline under bounded backoff.
func (s *syncService) processUpdate(ctx context.Context, update models.ActivityUpdate, clientLastSync time.Time, actorID string) error {
	op := func() error {
		activity, err := s.activities.Get(ctx, update.ActivityID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return backoff.Permanent(errors.Wrapf(err, "activity %s", update.ActivityID))
			}
			return backoff.Permanent(err)
		}

		authorized, err := s.authorizeUpdate(ctx, activity, actorID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !authorized {
			return backoff.Permanent(AuthorizationError{
				ActorID: actorID,
				Action:  "sync activity " + activity.ID.String(),
				Reason:  "not an active assignee or creator",
			})
		}

		conflicts := s.detector.DetectConflicts(activity.Snapshot(), update.Fields, clientLastSync)
		resolution := s.resolver.ResolveConflicts(activity.Snapshot(), update.Fields, conflicts, actorID)

		merged, err := s.applyMerged(ctx, activity, resolution.Merged, actorID)
		if err != nil {
			return backoff.Permanent(err)
		}

		if err := s.activities.UpdateWithVersion(ctx, merged, activity.Version); err != nil {
			if errors.Is(err, interfaces.ErrOptimisticLock) {
				s.config.Metrics.IncrementCounter("sync_optimistic_lock_retries", 1)
				return err // retryable
			}
			return backoff.Permanent(errors.Wrap(err, "failed to persist merged activity"))
		}

		s.notify(ctx, merged)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(s.syncConfig.RetryInitialInterval),
			),
			s.syncConfig.MaxWriteRetries,
		),
		ctx,
	)
	return backoff.Retry(op, policy)
}

// authorizeUpdate permits active assignees and the activity creator
func (s *syncService) authorizeUpdate(ctx context.Context, activity *models.Activity, actorID string) (bool, error) {
	if activity.CreatedBy == actorID {
		return true, nil
	}
	return s.assignments.CheckAssignment(ctx, activity, actorID)
}

// applyMerged maps the merged field set back onto the activity. A
// status change goes through the lifecycle state machine; recognized
// scalar fields are written directly; metadata and unrecognized fields
// merge additively into the metadata bag.
func (s *syncService) applyMerged(ctx context.Context, activity *models.Activity, merged models.JSONMap, actorID string) (*models.Activity, error) {
	result := activity.Clone()

	if raw, ok := merged["status"]; ok {
		statusStr, ok := raw.(string)
		if !ok {
			return nil, ValidationError{Field: "status", Message: "status must be a string"}
		}
		target := models.ActivityStatus(statusStr)
		if !target.Valid() {
			return nil, ValidationError{Field: "status", Message: "unknown status " + statusStr}
		}
		if target != result.Status {
			transitioned, err := s.lifecycle.RequestTransition(ctx, result, target, actorID, TransitionOptions{})
			if err != nil {
				return nil, err
			}
			result = transitioned
		}
	}

	extraMeta := models.JSONMap{}
	for field, value := range merged {
		switch field {
		case "status":
			// handled above
		case "type":
			if v, ok := value.(string); ok {
				result.Type = v
			}
		case "name":
			if v, ok := value.(string); ok {
				result.Name = v
			}
		case "description":
			if v, ok := value.(string); ok {
				result.Description = v
			}
		case "priority":
			if v, ok := value.(string); ok {
				result.Priority = models.ActivityPriority(v)
			}
		case "progress":
			switch v := value.(type) {
			case int:
				result.Progress = v
			case float64:
				result.Progress = int(v)
			default:
				return nil, ValidationError{Field: "progress", Message: "progress must be a number"}
			}
		case "metadata":
			switch m := value.(type) {
			case map[string]interface{}:
				result.MergeMetadata(models.JSONMap(m))
			case models.JSONMap:
				result.MergeMetadata(m)
			}
		default:
			// Field observations the activity row does not model
			// (notes text, location readings, measurement results)
			// land in the metadata bag
			extraMeta[field] = value
		}
	}
	if len(extraMeta) > 0 {
		result.MergeMetadata(extraMeta)
	}

	return result, nil
}

// processNote inserts the note unless an identical one by the same
// actor already landed after the client's last sync. Retried offline
// submissions therefore collapse to a single row.
func (s *syncService) processNote(ctx context.Context, submission models.NoteSubmission, clientLastSync time.Time, actorID string) (bool, error) {
	if submission.Content == "" {
		return false, ValidationError{Field: "content", Message: "note content must not be empty"}
	}

	existing, err := s.notes.FindDuplicate(ctx, submission.ActivityID, actorID, submission.Content, clientLastSync)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return false, errors.Wrap(err, "failed to check for duplicate note")
	}
	if existing != nil {
		s.config.Logger.Debug("Duplicate note skipped", map[string]interface{}{
			"activity_id": submission.ActivityID,
			"actor_id":    actorID,
		})
		return false, nil
	}

	note := &models.Note{
		ID:         uuid.New(),
		ActivityID: submission.ActivityID,
		ActorID:    actorID,
		Content:    submission.Content,
		CreatedAt:  time.Now(),
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return false, errors.Wrap(err, "failed to create note")
	}
	return true, nil
}

// notify tells the broadcaster about the merged state. Fire-and-forget:
// failures trip the breaker and are logged, never surfaced to the sync.
func (s *syncService) notify(ctx context.Context, activity *models.Activity) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.broadcaster.ActivityUpdated(ctx, activity)
	})
	if err != nil {
		s.config.Logger.Warn("Broadcast failed", map[string]interface{}{
			"activity_id": activity.ID,
			"error":       err.Error(),
		})
		s.config.Metrics.IncrementCounter("sync_broadcast_failures", 1)
	}
}

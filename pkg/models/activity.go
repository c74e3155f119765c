package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Activity represents a field-operation unit of work owned by a farm
type Activity struct {
	// Core fields
	ID       uuid.UUID        `json:"id" db:"id"`
	FarmID   uuid.UUID        `json:"farm_id" db:"farm_id"`
	Type     string           `json:"type" db:"type"`
	Status   ActivityStatus   `json:"status" db:"status"`
	Priority ActivityPriority `json:"priority" db:"priority"`

	// Actor relationships
	CreatedBy string `json:"created_by" db:"created_by"`

	// Activity data
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description,omitempty" db:"description"`
	Progress    int     `json:"progress" db:"progress"`
	Metadata    JSONMap `json:"metadata" db:"metadata"`

	// Timestamps
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Optimistic locking
	Version int `json:"version" db:"version"`

	// Computed fields (not stored)
	Assignments []*Assignment `json:"assignments,omitempty" db:"-"`
}

// ActivityStatus represents the lifecycle state of an activity
type ActivityStatus string

const (
	ActivityStatusPlanned    ActivityStatus = "planned"
	ActivityStatusInProgress ActivityStatus = "in_progress"
	ActivityStatusPaused     ActivityStatus = "paused"
	ActivityStatusCompleted  ActivityStatus = "completed"
	ActivityStatusCancelled  ActivityStatus = "cancelled"
)

// Valid returns true if the status is a known lifecycle state
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityStatusPlanned, ActivityStatusInProgress, ActivityStatusPaused,
		ActivityStatusCompleted, ActivityStatusCancelled:
		return true
	default:
		return false
	}
}

// ActivityPriority represents the urgency of an activity
type ActivityPriority string

const (
	ActivityPriorityLow      ActivityPriority = "low"
	ActivityPriorityNormal   ActivityPriority = "normal"
	ActivityPriorityHigh     ActivityPriority = "high"
	ActivityPriorityCritical ActivityPriority = "critical"
)

// Reserved metadata keys stamped by the lifecycle service and the
// conflict resolver. Arbitrary sibling keys are preserved by additive
// merge and never overwritten wholesale.
const (
	MetaStartedAt      = "startedAt"
	MetaPausedAt       = "pausedAt"
	MetaResumedAt      = "resumedAt"
	MetaCompletedAt    = "completedAt"
	MetaProgress       = "progress"
	MetaResults        = "results"
	MetaSyncResolution = "syncResolution"
)

// Assignment links an actor to an activity. Superseded assignments are
// deactivated, never deleted.
type Assignment struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ActivityID uuid.UUID `json:"activity_id" db:"activity_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	Role       string    `json:"role" db:"role"`
	Primary    bool      `json:"primary" db:"is_primary"`
	Active     bool      `json:"active" db:"active"`
	AssignedAt time.Time `json:"assigned_at" db:"assigned_at"`
	AssignedBy string    `json:"assigned_by" db:"assigned_by"`
}

// Note is a free-form observation attached to an activity
type Note struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ActivityID uuid.UUID `json:"activity_id" db:"activity_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	Content    string    `json:"content" db:"content"`
	System     bool      `json:"system" db:"system"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// JSONMap is a type alias for map[string]interface{} that implements sql.Scanner and driver.Valuer
type JSONMap map[string]interface{}

// Value implements driver.Valuer for JSONMap
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONMap
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*map[string]interface{})(m))
	case string:
		return json.Unmarshal([]byte(v), (*map[string]interface{})(m))
	default:
		return json.Unmarshal([]byte(v.(string)), (*map[string]interface{})(m))
	}
}

// Merge returns a copy of m with the entries of other applied on top.
// Nested maps are merged recursively so concurrently-written sibling
// keys survive; everything else is replaced by the incoming value.
func (m JSONMap) Merge(other JSONMap) JSONMap {
	merged := make(JSONMap, len(m)+len(other))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		existing, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		existingMap, okA := toJSONMap(existing)
		incomingMap, okB := toJSONMap(v)
		if okA && okB {
			merged[k] = existingMap.Merge(incomingMap)
		} else {
			merged[k] = v
		}
	}
	return merged
}

func toJSONMap(v interface{}) (JSONMap, bool) {
	switch m := v.(type) {
	case JSONMap:
		return m, true
	case map[string]interface{}:
		return JSONMap(m), true
	default:
		return nil, false
	}
}

// Helper methods

// GetID returns the activity ID
func (a *Activity) GetID() uuid.UUID {
	return a.ID
}

// GetVersion returns the version
func (a *Activity) GetVersion() int {
	return a.Version
}

// IsTerminal returns true if the activity is in a terminal state
func (a *Activity) IsTerminal() bool {
	switch a.Status {
	case ActivityStatusCompleted, ActivityStatusCancelled:
		return true
	default:
		return false
	}
}

// HasActiveAssignee returns true if the actor holds an active assignment
func (a *Activity) HasActiveAssignee(actorID string) bool {
	for _, as := range a.Assignments {
		if as.Active && as.ActorID == actorID {
			return true
		}
	}
	return false
}

// ActiveAssigneeIDs returns the actor ids of all active assignments
func (a *Activity) ActiveAssigneeIDs() []string {
	ids := make([]string, 0, len(a.Assignments))
	for _, as := range a.Assignments {
		if as.Active {
			ids = append(ids, as.ActorID)
		}
	}
	return ids
}

// MergeMetadata applies extra on top of the activity metadata additively
func (a *Activity) MergeMetadata(extra JSONMap) {
	if a.Metadata == nil {
		a.Metadata = JSONMap{}
	}
	a.Metadata = a.Metadata.Merge(extra)
}

// Clone returns a deep-enough copy for pure transformations: metadata
// and assignment slices are copied, assignment values are shared.
func (a *Activity) Clone() *Activity {
	clone := *a
	clone.Metadata = JSONMap{}.Merge(a.Metadata)
	if a.Assignments != nil {
		clone.Assignments = make([]*Assignment, len(a.Assignments))
		copy(clone.Assignments, a.Assignments)
	}
	return &clone
}

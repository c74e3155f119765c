package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a detected divergence between server and client
type ConflictType string

const (
	ConflictTypeCreate ConflictType = "create_conflict"
	ConflictTypeDelete ConflictType = "delete_conflict"
	ConflictTypeUpdate ConflictType = "update_conflict"
)

// SyncConflict is a field-level divergence between the server-held
// activity and a client-submitted snapshot the client has not yet
// observed. Constructed fresh per detection call, never persisted as a
// standalone entity.
type SyncConflict struct {
	Field            string       `json:"field"`
	ServerValue      interface{}  `json:"server_value"`
	ClientValue      interface{}  `json:"client_value"`
	ServerModifiedAt time.Time    `json:"server_modified_at"`
	ClientLastSync   time.Time    `json:"client_last_sync"`
	Type             ConflictType `json:"type"`
}

// ResolutionResult is the outcome of applying a merge policy to a
// conflict set. Produced per item and consumed immediately by the sync
// orchestrator.
type ResolutionResult struct {
	Resolved  bool           `json:"resolved"`
	Merged    JSONMap        `json:"merged"`
	Strategy  string         `json:"strategy"`
	Conflicts []SyncConflict `json:"conflicts"`
}

// ActivitySnapshot is the field-level view of an activity used by
// conflict detection. Absence of a key means the side does not carry
// the field, which is what distinguishes create from delete conflicts.
type ActivitySnapshot struct {
	Fields    JSONMap   `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot builds the server-side snapshot of the activity. Optional
// fields are omitted when unset so absence comparisons work.
func (a *Activity) Snapshot() ActivitySnapshot {
	fields := JSONMap{
		"status": string(a.Status),
		"type":   a.Type,
		"name":   a.Name,
	}
	if a.Description != "" {
		fields["description"] = a.Description
	}
	if a.Priority != "" {
		fields["priority"] = string(a.Priority)
	}
	if a.Progress > 0 {
		fields["progress"] = a.Progress
	}
	if len(a.Metadata) > 0 {
		fields["metadata"] = map[string]interface{}(a.Metadata)
	}
	return ActivitySnapshot{Fields: fields, UpdatedAt: a.UpdatedAt}
}

// ActivityUpdate is one client-collected mutation inside a sync batch
type ActivityUpdate struct {
	ActivityID uuid.UUID `json:"activity_id"`
	Fields     JSONMap   `json:"fields"`
}

// NoteSubmission is one client-collected note inside a sync batch
type NoteSubmission struct {
	ActivityID uuid.UUID `json:"activity_id"`
	Content    string    `json:"content"`
}

// SyncError records a per-item batch failure with the item identity
type SyncError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
}

// SyncResult aggregates the outcome of one batch sync pass
type SyncResult struct {
	ActivitiesUpdated int         `json:"activities_updated"`
	NotesAdded        int         `json:"notes_added"`
	Errors            []SyncError `json:"errors"`
}

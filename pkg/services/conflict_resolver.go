package services

import (
	"time"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// ServerWinsCriticalPolicy is the default resolution policy: fields
// carrying lifecycle or identity semantics resolve to the server value,
// everything else resolves to the client value because it represents a
// field observation the server cannot independently know.
type ServerWinsCriticalPolicy struct{}

// criticalFields are the fields only the authoritative store may
// adjudicate
var criticalFields = map[string]bool{
	"status": true,
	"type":   true,
	"name":   true,
}

// Name implements ResolutionPolicy
func (ServerWinsCriticalPolicy) Name() string { return "server-wins-critical" }

// ServerWins implements ResolutionPolicy
func (ServerWinsCriticalPolicy) ServerWins(field string) bool { return criticalFields[field] }

type conflictResolver struct {
	BaseService

	policy ResolutionPolicy

	now func() time.Time
}

// NewConflictResolver creates a resolver with the given policy; nil
// selects ServerWinsCriticalPolicy
func NewConflictResolver(config ServiceConfig, policy ResolutionPolicy) ConflictResolver {
	if policy == nil {
		policy = ServerWinsCriticalPolicy{}
	}
	return &conflictResolver{
		BaseService: NewBaseService(config),
		policy:      policy,
		now:         time.Now,
	}
}

// ResolveConflicts merges the client fields against the server snapshot
// under the configured policy. The merged value starts from the client
// fields; conflicts the policy awards to the server are overwritten
// with server values (delete conflicts restore the server value). An
// audit block is attached under metadata recording timestamp, actor,
// conflict count and strategy label. The merge is deterministic: the
// same inputs always yield the same merged value.
func (r *conflictResolver) ResolveConflicts(server models.ActivitySnapshot, client models.JSONMap, conflicts []models.SyncConflict, actorID string) models.ResolutionResult {
	merged := models.JSONMap{}.Merge(client)

	for _, c := range conflicts {
		if !r.policy.ServerWins(c.Field) {
			continue
		}
		switch c.Type {
		case models.ConflictTypeDelete:
			merged[c.Field] = c.ServerValue
		case models.ConflictTypeUpdate, models.ConflictTypeCreate:
			if c.ServerValue != nil {
				merged[c.Field] = c.ServerValue
			} else {
				delete(merged, c.Field)
			}
		}
	}

	if len(conflicts) > 0 {
		audit := models.JSONMap{
			models.MetaSyncResolution: map[string]interface{}{
				"resolvedAt":    r.now().Format(time.RFC3339),
				"resolvedBy":    actorID,
				"conflictCount": len(conflicts),
				"strategy":      r.policy.Name(),
			},
		}
		var existing models.JSONMap
		switch m := merged["metadata"].(type) {
		case map[string]interface{}:
			existing = m
		case models.JSONMap:
			existing = m
		}
		merged["metadata"] = map[string]interface{}(existing.Merge(audit))

		r.config.Logger.Info("Conflicts resolved", map[string]interface{}{
			"conflict_count": len(conflicts),
			"strategy":       r.policy.Name(),
			"resolved_by":    actorID,
		})
		r.config.Metrics.IncrementCounter("sync_conflicts_resolved", float64(len(conflicts)))
	}

	return models.ResolutionResult{
		Resolved:  true,
		Merged:    merged,
		Strategy:  r.policy.Name(),
		Conflicts: conflicts,
	}
}

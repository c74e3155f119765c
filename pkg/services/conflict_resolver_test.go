package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

func TestResolveConflicts_CriticalFieldsServerWins(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	resolver := NewConflictResolver(ServiceConfig{}, nil)
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{
		"status": "in_progress",
		"type":   "irrigation",
		"name":   "Irrigate north field",
	})
	client := models.JSONMap{
		"status": "completed",
		"type":   "harvest",
		"name":   "Harvest north field",
	}

	conflicts := detector.DetectConflicts(server, client, lastSync)
	require.Len(t, conflicts, 3)

	result := resolver.ResolveConflicts(server, client, conflicts, "worker-1")
	require.True(t, result.Resolved)
	assert.Equal(t, "server-wins-critical", result.Strategy)

	// Every critical field resolves to the server value regardless of
	// what the client sent
	assert.Equal(t, "in_progress", result.Merged["status"])
	assert.Equal(t, "irrigation", result.Merged["type"])
	assert.Equal(t, "Irrigate north field", result.Merged["name"])
}

func TestResolveConflicts_NonCriticalFieldsClientWins(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	resolver := NewConflictResolver(ServiceConfig{}, nil)
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{
		"status":      "in_progress",
		"progress":    40,
		"description": "server description",
	})
	client := models.JSONMap{
		"status":      "in_progress",
		"progress":    80,
		"description": "observed in the field",
	}

	conflicts := detector.DetectConflicts(server, client, lastSync)
	result := resolver.ResolveConflicts(server, client, conflicts, "worker-1")

	assert.Equal(t, 80, result.Merged["progress"])
	assert.Equal(t, "observed in the field", result.Merged["description"])
}

func TestResolveConflicts_AuditBlock(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	resolver := NewConflictResolver(ServiceConfig{}, nil)
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{"status": "in_progress"})
	client := models.JSONMap{
		"status":   "completed",
		"metadata": map[string]interface{}{"fieldSection": "north"},
	}

	conflicts := detector.DetectConflicts(server, client, lastSync)
	result := resolver.ResolveConflicts(server, client, conflicts, "worker-1")

	meta, ok := result.Merged["metadata"].(map[string]interface{})
	require.True(t, ok)

	audit, ok := meta[models.MetaSyncResolution].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "worker-1", audit["resolvedBy"])
	assert.Equal(t, "server-wins-critical", audit["strategy"])
	assert.NotEmpty(t, audit["resolvedAt"])

	// Sibling metadata keys survive the audit merge
	assert.Equal(t, "north", meta["fieldSection"])
}

func TestResolveConflicts_NoConflictsNoAudit(t *testing.T) {
	resolver := NewConflictResolver(ServiceConfig{}, nil)

	client := models.JSONMap{"progress": 10}
	result := resolver.ResolveConflicts(models.ActivitySnapshot{}, client, nil, "worker-1")

	assert.True(t, result.Resolved)
	assert.Equal(t, 10, result.Merged["progress"])
	assert.NotContains(t, result.Merged, "metadata")
}

func TestResolveConflicts_Deterministic(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{
		"status":   "in_progress",
		"progress": 40,
	})
	client := models.JSONMap{
		"status":   "completed",
		"progress": 80,
	}
	conflicts := detector.DetectConflicts(server, client, lastSync)

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	newFixedResolver := func() ConflictResolver {
		r := NewConflictResolver(ServiceConfig{}, nil).(*conflictResolver)
		r.now = func() time.Time { return fixed }
		return r
	}

	first := newFixedResolver().ResolveConflicts(server, client, conflicts, "worker-1")
	second := newFixedResolver().ResolveConflicts(server, client, conflicts, "worker-1")
	assert.Equal(t, first.Merged, second.Merged)
	assert.Equal(t, first.Strategy, second.Strategy)
}

func TestResolveConflicts_CustomPolicy(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{"progress": 40})
	client := models.JSONMap{"progress": 80}

	conflicts := detector.DetectConflicts(server, client, lastSync)
	require.Len(t, conflicts, 1)

	resolver := NewConflictResolver(ServiceConfig{}, serverWinsEverything{})
	result := resolver.ResolveConflicts(server, client, conflicts, "worker-1")

	assert.Equal(t, "server-wins-everything", result.Strategy)
	assert.Equal(t, 40, result.Merged["progress"])
}

type serverWinsEverything struct{}

func (serverWinsEverything) Name() string                { return "server-wins-everything" }
func (serverWinsEverything) ServerWins(field string) bool { return true }

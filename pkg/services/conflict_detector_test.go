package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

func snapshotAt(updatedAt time.Time, fields models.JSONMap) models.ActivitySnapshot {
	return models.ActivitySnapshot{Fields: fields, UpdatedAt: updatedAt}
}

func TestDetectConflicts_WatermarkGate(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now()

	server := snapshotAt(lastSync.Add(-time.Minute), models.JSONMap{
		"status": "in_progress",
		"name":   "Irrigate north field",
	})
	client := models.JSONMap{
		"status": "completed",
		"name":   "Something else entirely",
	}

	// Client already observed the latest server state: any difference
	// is the client's own newer edit, not a conflict
	conflicts := detector.DetectConflicts(server, client, lastSync)
	assert.Empty(t, conflicts)

	// Equal watermark is also not a conflict
	server.UpdatedAt = lastSync
	conflicts = detector.DetectConflicts(server, client, lastSync)
	assert.Empty(t, conflicts)

	// Server modified after last sync: differences are conflicts
	server.UpdatedAt = lastSync.Add(time.Second)
	conflicts = detector.DetectConflicts(server, client, lastSync)
	assert.Len(t, conflicts, 2)
}

func TestDetectConflicts_Classification(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now().Add(-time.Hour)
	modified := time.Now()

	server := snapshotAt(modified, models.JSONMap{
		"status":   "in_progress",
		"name":     "Irrigate north field",
		"progress": 40,
	})
	client := models.JSONMap{
		"status":      "paused",
		"name":        "Irrigate north field",
		"description": "added offline",
	}

	conflicts := detector.DetectConflicts(server, client, lastSync)
	require.Len(t, conflicts, 3)

	byField := map[string]models.SyncConflict{}
	for _, c := range conflicts {
		byField[c.Field] = c
	}

	// Both sides present and different
	status := byField["status"]
	assert.Equal(t, models.ConflictTypeUpdate, status.Type)
	assert.Equal(t, "in_progress", status.ServerValue)
	assert.Equal(t, "paused", status.ClientValue)
	assert.Equal(t, modified, status.ServerModifiedAt)
	assert.Equal(t, lastSync, status.ClientLastSync)

	// Server present, client absent
	assert.Equal(t, models.ConflictTypeDelete, byField["progress"].Type)

	// Client present, server absent
	assert.Equal(t, models.ConflictTypeCreate, byField["description"].Type)

	// Identical values are not conflicts
	_, hasName := byField["name"]
	assert.False(t, hasName)
}

func TestDetectConflicts_StructuralEquality(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now().Add(-time.Hour)
	modified := time.Now()

	t.Run("map comparison is key-order independent", func(t *testing.T) {
		server := snapshotAt(modified, models.JSONMap{
			"metadata": map[string]interface{}{"a": 1, "b": "x"},
		})
		client := models.JSONMap{
			"metadata": map[string]interface{}{"b": "x", "a": 1},
		}
		assert.Empty(t, detector.DetectConflicts(server, client, lastSync))
	})

	t.Run("numeric types normalize before comparison", func(t *testing.T) {
		server := snapshotAt(modified, models.JSONMap{"progress": 40})
		client := models.JSONMap{"progress": float64(40)}
		assert.Empty(t, detector.DetectConflicts(server, client, lastSync))
	})

	t.Run("array comparison is order independent", func(t *testing.T) {
		server := snapshotAt(modified, models.JSONMap{
			"metadata": map[string]interface{}{"crews": []interface{}{"a", "b"}},
		})
		client := models.JSONMap{
			"metadata": map[string]interface{}{"crews": []interface{}{"b", "a"}},
		}
		assert.Empty(t, detector.DetectConflicts(server, client, lastSync))
	})

	t.Run("nested difference is still detected", func(t *testing.T) {
		server := snapshotAt(modified, models.JSONMap{
			"metadata": map[string]interface{}{"crews": []interface{}{"a", "b"}},
		})
		client := models.JSONMap{
			"metadata": map[string]interface{}{"crews": []interface{}{"a", "c"}},
		}
		conflicts := detector.DetectConflicts(server, client, lastSync)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "metadata", conflicts[0].Field)
		assert.Equal(t, models.ConflictTypeUpdate, conflicts[0].Type)
	})
}

func TestDetectConflicts_IgnoresUnwatchedFields(t *testing.T) {
	detector := NewConflictDetector(ServiceConfig{})
	lastSync := time.Now().Add(-time.Hour)

	server := snapshotAt(time.Now(), models.JSONMap{
		"status":  "planned",
		"version": 3,
	})
	client := models.JSONMap{
		"status":  "planned",
		"version": 9,
	}

	assert.Empty(t, detector.DetectConflicts(server, client, lastSync))
}

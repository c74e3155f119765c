package services

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// watchedFields is the fixed field set compared during conflict
// detection. status/type/name/metadata are always carried by the server
// snapshot; the rest are compared when present on either side.
var watchedFields = []string{
	"status",
	"progress",
	"notes",
	"metadata",
	"type",
	"name",
	"description",
	"priority",
}

type conflictDetector struct {
	BaseService
}

// NewConflictDetector creates the conflict detector
func NewConflictDetector(config ServiceConfig) ConflictDetector {
	return &conflictDetector{BaseService: NewBaseService(config)}
}

// DetectConflicts compares the server snapshot against the client
// fields. When the server watermark is not newer than the client's
// last sync, every difference is the client's own newer edit and the
// result is empty. Otherwise each watched field present on either side
// is compared by structural, order-independent equality and a mismatch
// is classified create/delete/update.
func (d *conflictDetector) DetectConflicts(server models.ActivitySnapshot, client models.JSONMap, clientLastSync time.Time) []models.SyncConflict {
	if !server.UpdatedAt.After(clientLastSync) {
		return []models.SyncConflict{}
	}

	conflicts := []models.SyncConflict{}
	for _, field := range watchedFields {
		serverValue, serverHas := server.Fields[field]
		clientValue, clientHas := client[field]

		switch {
		case !serverHas && !clientHas:
			continue
		case !serverHas && clientHas:
			conflicts = append(conflicts, models.SyncConflict{
				Field:            field,
				ClientValue:      clientValue,
				ServerModifiedAt: server.UpdatedAt,
				ClientLastSync:   clientLastSync,
				Type:             models.ConflictTypeCreate,
			})
		case serverHas && !clientHas:
			conflicts = append(conflicts, models.SyncConflict{
				Field:            field,
				ServerValue:      serverValue,
				ServerModifiedAt: server.UpdatedAt,
				ClientLastSync:   clientLastSync,
				Type:             models.ConflictTypeDelete,
			})
		case !structurallyEqual(serverValue, clientValue):
			conflicts = append(conflicts, models.SyncConflict{
				Field:            field,
				ServerValue:      serverValue,
				ClientValue:      clientValue,
				ServerModifiedAt: server.UpdatedAt,
				ClientLastSync:   clientLastSync,
				Type:             models.ConflictTypeUpdate,
			})
		}
	}

	if len(conflicts) > 0 {
		d.config.Logger.Debug("Conflicts detected", map[string]interface{}{
			"conflict_count":   len(conflicts),
			"server_modified":  server.UpdatedAt,
			"client_last_sync": clientLastSync,
		})
	}

	return conflicts
}

// structurallyEqual compares two values after JSON normalization so an
// int on one side equals the same number decoded as float64 on the
// other. Maps compare key-wise; arrays compare as multisets.
func structurallyEqual(a, b interface{}) bool {
	return deepEqualNormalized(normalizeJSON(a), normalizeJSON(b))
}

// normalizeJSON round-trips a value through encoding/json so both sides
// use the same concrete types (float64, map[string]interface{},
// []interface{}, string, bool, nil)
func normalizeJSON(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func deepEqualNormalized(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !deepEqualNormalized(v, other) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		// Order-independent: match each element of a against an unused
		// element of b
		used := make([]bool, len(bv))
		for _, v := range av {
			matched := false
			for i, other := range bv {
				if used[i] {
					continue
				}
				if deepEqualNormalized(v, other) {
					used[i] = true
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

package services

import (
	"fmt"
	"strings"

	"github.com/fieldmesh/fieldmesh/pkg/models"
)

// InvalidStateError is returned when a requested lifecycle transition is
// not in the allowed-transition table. Allowed is the complete set of
// legal targets for the current status, empty for terminal states.
type InvalidStateError struct {
	Current models.ActivityStatus
	Target  models.ActivityStatus
	Allowed []models.ActivityStatus
}

func (e InvalidStateError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid transition from %s to %s: %s is terminal", e.Current, e.Target, e.Current)
	}
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid transition from %s to %s (allowed: %s)",
		e.Current, e.Target, strings.Join(allowed, ", "))
}

// AuthorizationError is returned when the acting user is not permitted
// to perform the operation on the activity
type AuthorizationError struct {
	ActorID string
	Action  string
	Reason  string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("actor %s not authorized to %s: %s", e.ActorID, e.Action, e.Reason)
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

package interfaces

import "github.com/pkg/errors"

// Repository errors
var (
	// ErrNotFound is returned when the requested entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrOptimisticLock is returned when a versioned write loses the
	// race against a concurrent writer
	ErrOptimisticLock = errors.New("optimistic lock conflict")
)

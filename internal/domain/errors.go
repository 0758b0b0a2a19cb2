package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BranchNotFoundError reports an unknown branch id. It is surfaced to the
// caller and never retried internally.
type BranchNotFoundError struct {
	BranchID uuid.UUID
}

func (e BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %s not found", e.BranchID)
}

// InvalidBranchError reports malformed fork metadata at branch creation time.
type InvalidBranchError struct {
	Reason string
}

func (e InvalidBranchError) Error() string {
	return fmt.Sprintf("invalid branch: %s", e.Reason)
}

// AncestryDepthError reports an ancestry chain exceeding the configured cap.
type AncestryDepthError struct {
	BranchID uuid.UUID
	Limit    int
}

func (e AncestryDepthError) Error() string {
	return fmt.Sprintf("ancestry chain for branch %s exceeds depth limit %d", e.BranchID, e.Limit)
}

// InvalidIntervalError reports an attempted retroactive version insertion:
// the new validFrom would precede the currently open version's validFrom.
type InvalidIntervalError struct {
	EntityType string
	EntityID   uuid.UUID
	BranchID   uuid.UUID
	ValidFrom  time.Time
	OpenFrom   time.Time
}

func (e InvalidIntervalError) Error() string {
	return fmt.Sprintf("version for %s %s on branch %s: validFrom %s precedes open version start %s",
		e.EntityType, e.EntityID, e.BranchID, e.ValidFrom.Format(time.RFC3339Nano), e.OpenFrom.Format(time.RFC3339Nano))
}

// OptimisticLockError reports a live-version mismatch on direct mutation.
// The caller is expected to re-fetch and retry; this is an anticipated
// condition, not a system fault.
type OptimisticLockError struct {
	EntityID uuid.UUID
	Expected int64
	Actual   int64
}

func (e OptimisticLockError) Error() string {
	return fmt.Sprintf("entity %s: expected version %d, found %d", e.EntityID, e.Expected, e.Actual)
}

// EntityNotFoundError reports a missing live entity row.
type EntityNotFoundError struct {
	EntityID uuid.UUID
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %s not found", e.EntityID)
}

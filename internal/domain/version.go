package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Version is an immutable snapshot of one entity's state, valid over the
// half-open interval [ValidFrom, ValidTo) on one branch. ValidTo == nil means
// the version is currently in effect on that branch. A nil Payload is a
// tombstone recording the entity's deletion on the branch.
type Version struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	BranchID   uuid.UUID      `json:"branch_id"`
	ValidFrom  time.Time      `json:"valid_from"`
	ValidTo    *time.Time     `json:"valid_to,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Covers reports whether t falls inside the version's validity interval.
func (v Version) Covers(t time.Time) bool {
	if v.ValidFrom.After(t) {
		return false
	}
	return v.ValidTo == nil || v.ValidTo.After(t)
}

// IsOpen reports whether the version is the one currently in effect.
func (v Version) IsOpen() bool {
	return v.ValidTo == nil
}

// IsTombstone reports whether the version records a deletion.
func (v Version) IsTombstone() bool {
	return v.Payload == nil
}

// PayloadJSON marshals the payload snapshot for JSONB storage. Tombstones
// produce nil so the column stays NULL.
func (v Version) PayloadJSON() (json.RawMessage, error) {
	if v.Payload == nil {
		return nil, nil
	}
	return json.Marshal(v.Payload)
}

// PayloadFromJSON decodes a stored JSONB snapshot. A NULL column comes back
// as a nil map, preserving the tombstone marker.
func PayloadFromJSON(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

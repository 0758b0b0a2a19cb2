package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CampaignEntity is the live row for a mutable campaign entity. The snapshot
// payload is opaque to this store. Version is the optimistic concurrency
// counter: it increments by one per successful mutation, is not branch
// scoped, and is distinct from the temporal Version history.
type CampaignEntity struct {
	ID         uuid.UUID      `json:"id"`
	CampaignID uuid.UUID      `json:"campaign_id"`
	EntityType string         `json:"entity_type"`
	Payload    map[string]any `json:"payload"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewCampaignEntity creates a live entity with its counter at 1.
func NewCampaignEntity(campaignID uuid.UUID, entityType string, payload map[string]any) CampaignEntity {
	now := time.Now()
	return CampaignEntity{
		ID:         uuid.New(),
		CampaignID: campaignID,
		EntityType: entityType,
		Payload:    ClonePayload(payload),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithPayload returns a copy of the entity carrying a replacement snapshot.
func (e CampaignEntity) WithPayload(payload map[string]any) CampaignEntity {
	e.Payload = ClonePayload(payload)
	e.UpdatedAt = time.Now()
	return e
}

// PayloadAsJSONB marshals the live snapshot for storage.
func (e CampaignEntity) PayloadAsJSONB() (json.RawMessage, error) {
	if e.Payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(e.Payload)
}

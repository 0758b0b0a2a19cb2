package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Branch is a named timeline of entity states within a campaign, optionally
// forked from a parent branch at a recorded divergence point. Branches form a
// forest: a branch with no parent is a root ("Main").
type Branch struct {
	ID         uuid.UUID  `json:"id"`
	CampaignID uuid.UUID  `json:"campaign_id"`
	Name       string     `json:"name"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
	DivergedAt *time.Time `json:"diverged_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// NewBranch validates fork metadata and builds a branch record. divergedAt
// must be present exactly when parentID is, and must not lie in the future
// relative to now.
func NewBranch(campaignID uuid.UUID, name string, parentID *uuid.UUID, divergedAt *time.Time, now time.Time) (Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Branch{}, InvalidBranchError{Reason: "name is required"}
	}
	if (parentID == nil) != (divergedAt == nil) {
		return Branch{}, InvalidBranchError{Reason: "parentId and divergedAt must be set together"}
	}
	if divergedAt != nil && divergedAt.After(now) {
		return Branch{}, InvalidBranchError{Reason: "divergedAt must not be in the future"}
	}

	return Branch{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Name:       name,
		ParentID:   parentID,
		DivergedAt: divergedAt,
		CreatedAt:  now,
	}, nil
}

// IsRoot reports whether the branch has no parent.
func (b Branch) IsRoot() bool {
	return b.ParentID == nil
}

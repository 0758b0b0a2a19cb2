package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewBranchRoot(t *testing.T) {
	campaignID := uuid.New()
	now := time.Now()

	branch, err := NewBranch(campaignID, "Main", nil, nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !branch.IsRoot() {
		t.Error("expected branch without parent to be a root")
	}
	if branch.CampaignID != campaignID {
		t.Errorf("unexpected campaign id %s", branch.CampaignID)
	}
}

func TestNewBranchFork(t *testing.T) {
	parentID := uuid.New()
	now := time.Now()
	forkedAt := now.Add(-time.Hour)

	branch, err := NewBranch(uuid.New(), "What if the keep fell", &parentID, &forkedAt, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if branch.IsRoot() {
		t.Error("expected fork not to be a root")
	}
	if branch.DivergedAt == nil || !branch.DivergedAt.Equal(forkedAt) {
		t.Errorf("unexpected divergedAt %v", branch.DivergedAt)
	}
}

func TestNewBranchRejectsFutureDivergence(t *testing.T) {
	parentID := uuid.New()
	now := time.Now()
	future := now.Add(time.Hour)

	_, err := NewBranch(uuid.New(), "fork", &parentID, &future, now)

	var invalid InvalidBranchError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidBranchError, got %v", err)
	}
}

func TestNewBranchRejectsMismatchedForkMetadata(t *testing.T) {
	now := time.Now()
	parentID := uuid.New()

	if _, err := NewBranch(uuid.New(), "fork", &parentID, nil, now); err == nil {
		t.Error("expected error for parent without divergedAt")
	}

	forkedAt := now.Add(-time.Minute)
	if _, err := NewBranch(uuid.New(), "fork", nil, &forkedAt, now); err == nil {
		t.Error("expected error for divergedAt without parent")
	}
}

func TestNewBranchRejectsBlankName(t *testing.T) {
	if _, err := NewBranch(uuid.New(), "   ", nil, nil, time.Now()); err == nil {
		t.Error("expected error for blank name")
	}
}

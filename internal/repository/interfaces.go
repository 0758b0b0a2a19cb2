package repository

import (
	"context"
	"time"

	"github.com/jakekausler/campaign-manager/internal/domain"

	"github.com/google/uuid"
)

// BranchRepository defines persistence for the branch forest.
type BranchRepository interface {
	Create(ctx context.Context, branch domain.Branch) (domain.Branch, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Branch, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Branch, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Branch, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// VersionRepository defines the append-only temporal version store.
type VersionRepository interface {
	// Create appends a version, atomically closing the open version for the
	// same (entityType, entityID, branchID) if one exists.
	Create(ctx context.Context, version domain.Version) (domain.Version, error)
	GetOpen(ctx context.Context, entityType string, entityID, branchID uuid.UUID) (*domain.Version, error)
	// FindCovering returns the version on the given branch whose interval
	// contains asOf, or nil when the branch recorded none.
	FindCovering(ctx context.Context, entityType string, entityID, branchID uuid.UUID, asOf time.Time) (*domain.Version, error)
	FindCoveringBatch(ctx context.Context, entityType string, entityIDs []uuid.UUID, branchID uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Version, error)
	ListHistory(ctx context.Context, entityType string, entityID, branchID uuid.UUID) ([]domain.Version, error)
}

// EntityRepository defines persistence for live campaign entities. Mutations
// guard on the optimistic-lock counter and append the temporal version in
// the same transaction.
type EntityRepository interface {
	Create(ctx context.Context, entity domain.CampaignEntity, branchID uuid.UUID, actor string) (domain.CampaignEntity, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.CampaignEntity, error)
	Update(ctx context.Context, entity domain.CampaignEntity, expectedVersion int64, branchID uuid.UUID, actor string) (domain.CampaignEntity, error)
	Delete(ctx context.Context, id uuid.UUID, expectedVersion int64, branchID uuid.UUID, actor string) error
}

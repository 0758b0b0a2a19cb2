package branching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/branchloader"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/repository"
)

const defaultMaxAncestryDepth = 64

// Registry maintains the forest of branches per campaign and answers
// ancestry queries for the version resolver.
type Registry struct {
	branches repository.BranchRepository
	maxDepth int
	now      func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithMaxDepth caps ancestry chain length; walks exceeding it fail fast.
func WithMaxDepth(depth int) Option {
	return func(r *Registry) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a branch registry.
func NewRegistry(branches repository.BranchRepository, opts ...Option) *Registry {
	registry := &Registry{
		branches: branches,
		maxDepth: defaultMaxAncestryDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// CreateBranch forks a new timeline. Cycles are impossible by construction:
// only an already-persisted branch can be named as parent.
func (r *Registry) CreateBranch(ctx context.Context, campaignID uuid.UUID, name string, parentID *uuid.UUID, divergedAt *time.Time) (domain.Branch, error) {
	branch, err := domain.NewBranch(campaignID, name, parentID, divergedAt, r.now())
	if err != nil {
		return domain.Branch{}, err
	}

	if parentID != nil {
		parent, err := r.branches.GetByID(ctx, *parentID)
		if err != nil {
			return domain.Branch{}, err
		}
		if parent.CampaignID != campaignID {
			return domain.Branch{}, domain.InvalidBranchError{Reason: "parent branch belongs to a different campaign"}
		}
	}

	return r.branches.Create(ctx, branch)
}

// GetBranch loads one branch, preferring the request-scoped batch loader.
func (r *Registry) GetBranch(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	if loader := branchloader.FromContext(ctx); loader != nil {
		return loader.Get(ctx, id)
	}
	return r.branches.GetByID(ctx, id)
}

// AncestryChain returns the branch and its ancestors, nearest-first, ending
// at a root. The walk is an explicit loop over parent pointers rather than
// recursion, capped at the configured depth. An unknown starting branch is
// an error; a dangling parent pointer mid-chain (the ancestor row is
// physically absent) ends the chain, since soft-deleted ancestors still
// resolve until then.
func (r *Registry) AncestryChain(ctx context.Context, branchID uuid.UUID) ([]domain.Branch, error) {
	chain := make([]domain.Branch, 0, 4)

	current, err := r.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	chain = append(chain, current)

	for current.ParentID != nil {
		if len(chain) >= r.maxDepth {
			return nil, domain.AncestryDepthError{BranchID: branchID, Limit: r.maxDepth}
		}

		parent, err := r.GetBranch(ctx, *current.ParentID)
		if err != nil {
			var notFound domain.BranchNotFoundError
			if errors.As(err, &notFound) {
				return chain, nil
			}
			return nil, err
		}

		chain = append(chain, parent)
		current = parent
	}

	return chain, nil
}

// ListBranches returns the live branches of a campaign.
func (r *Registry) ListBranches(ctx context.Context, campaignID uuid.UUID) ([]domain.Branch, error) {
	return r.branches.ListByCampaign(ctx, campaignID)
}

// DeleteBranch soft-deletes a branch. Descendant branches keep resolving
// through it until the row is physically removed.
func (r *Registry) DeleteBranch(ctx context.Context, id uuid.UUID) error {
	return r.branches.SoftDelete(ctx, id)
}

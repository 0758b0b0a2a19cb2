package timeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/repository"
)

// Service resolves entity state "as of time T on branch B". A child branch
// transparently inherits its ancestors' edit history for any time at which
// it recorded no override: copy-on-write without duplicating data at fork
// time. Reads are pure and take no locks.
type Service struct {
	registry *branching.Registry
	versions repository.VersionRepository

	// clipAtFork bounds inherited lookups to times before each crossed fork
	// point. Off by default, matching the store's historical behavior of
	// letting a child see ancestor versions created after it diverged.
	clipAtFork bool
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClipAtFork toggles fork-point clipping of inherited lookups.
func WithClipAtFork(clip bool) Option {
	return func(s *Service) {
		s.clipAtFork = clip
	}
}

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a version resolver over the registry and version store.
func NewService(registry *branching.Registry, versions repository.VersionRepository, opts ...Option) *Service {
	service := &Service{
		registry: registry,
		versions: versions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateVersion appends a snapshot on the acting branch, closing the
// previously open version. ValidFrom defaults to the current time.
func (s *Service) CreateVersion(ctx context.Context, version domain.Version) (domain.Version, error) {
	if version.ValidFrom.IsZero() {
		version.ValidFrom = s.now()
	}
	if _, err := s.registry.GetBranch(ctx, version.BranchID); err != nil {
		return domain.Version{}, err
	}
	return s.versions.Create(ctx, version)
}

// GetOpenVersion returns the version currently in effect on the branch
// itself, without walking ancestry. Nil when the branch recorded none.
func (s *Service) GetOpenVersion(ctx context.Context, entityType string, entityID, branchID uuid.UUID) (*domain.Version, error) {
	if _, err := s.registry.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	return s.versions.GetOpen(ctx, entityType, entityID, branchID)
}

// ResolveVersion returns the snapshot in effect for the entity at asOf on
// the given branch, walking the ancestry chain nearest-first when the branch
// itself has no applicable version. Nil when no ancestor recorded state at
// that time. The resolver performs no authorization.
func (s *Service) ResolveVersion(ctx context.Context, entityType string, entityID, branchID uuid.UUID, asOf time.Time) (*domain.Version, error) {
	chain, err := s.registry.AncestryChain(ctx, branchID)
	if err != nil {
		return nil, err
	}

	lookupAt := asOf
	for i, branch := range chain {
		if i > 0 && s.clipAtFork {
			// chain[i-1] forked off this branch; only pre-fork history is
			// inherited when clipping is on.
			if forkedAt := chain[i-1].DivergedAt; forkedAt != nil && forkedAt.Before(lookupAt) {
				lookupAt = *forkedAt
			}
		}

		version, err := s.versions.FindCovering(ctx, entityType, entityID, branch.ID, lookupAt)
		if err != nil {
			return nil, err
		}
		if version != nil {
			return version, nil
		}
	}

	return nil, nil
}

// ResolveVersions is the batch form of ResolveVersion: one interval query
// per ancestry level for the whole ID set. Entities with no recorded state
// are absent from the result.
func (s *Service) ResolveVersions(ctx context.Context, entityType string, entityIDs []uuid.UUID, branchID uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Version, error) {
	chain, err := s.registry.AncestryChain(ctx, branchID)
	if err != nil {
		return nil, err
	}

	resolved := make(map[uuid.UUID]domain.Version, len(entityIDs))
	remaining := make([]uuid.UUID, 0, len(entityIDs))
	for _, id := range entityIDs {
		remaining = append(remaining, id)
	}

	lookupAt := asOf
	for i, branch := range chain {
		if len(remaining) == 0 {
			break
		}
		if i > 0 && s.clipAtFork {
			if forkedAt := chain[i-1].DivergedAt; forkedAt != nil && forkedAt.Before(lookupAt) {
				lookupAt = *forkedAt
			}
		}

		found, err := s.versions.FindCoveringBatch(ctx, entityType, remaining, branch.ID, lookupAt)
		if err != nil {
			return nil, err
		}

		next := remaining[:0]
		for _, id := range remaining {
			if version, ok := found[id]; ok {
				resolved[id] = version
			} else {
				next = append(next, id)
			}
		}
		remaining = next
	}

	return resolved, nil
}

// ListHistory returns the branch-local version history for an entity,
// ordered by validFrom.
func (s *Service) ListHistory(ctx context.Context, entityType string, entityID, branchID uuid.UUID) ([]domain.Version, error) {
	if _, err := s.registry.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}
	return s.versions.ListHistory(ctx, entityType, entityID, branchID)
}

package merge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/timeline"
)

// Service feeds three snapshots of the same entity (common ancestor state,
// source head, target head) into the conflict detector. It does not decide
// how merges are triggered or resolved; it only reports.
type Service struct {
	registry *branching.Registry
	resolver *timeline.Service
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the timestamp source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a merge-preview service.
func NewService(registry *branching.Registry, resolver *timeline.Service, opts ...Option) *Service {
	service := &Service{
		registry: registry,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// PreviewInput names the entity and the two branches to reconcile.
type PreviewInput struct {
	SourceBranchID uuid.UUID
	TargetBranchID uuid.UUID
	EntityType     string
	EntityID       uuid.UUID
}

// Preview carries the three resolved snapshots and the detector's verdict.
type Preview struct {
	Base   *domain.Version       `json:"base,omitempty"`
	Source *domain.Version       `json:"source,omitempty"`
	Target *domain.Version       `json:"target,omitempty"`
	Result domain.ConflictResult `json:"result"`
}

// PreviewMerge resolves the common-ancestor state (the target branch as of
// the source branch's fork point), the current heads of both branches, and
// runs three-way conflict detection. Divergent data is never an error here;
// a conflict list is the designed outcome.
func (s *Service) PreviewMerge(ctx context.Context, in PreviewInput) (Preview, error) {
	source, err := s.registry.GetBranch(ctx, in.SourceBranchID)
	if err != nil {
		return Preview{}, err
	}
	if _, err := s.registry.GetBranch(ctx, in.TargetBranchID); err != nil {
		return Preview{}, err
	}
	if source.DivergedAt == nil {
		return Preview{}, domain.InvalidBranchError{Reason: "source branch is not a fork"}
	}

	now := s.now()

	base, err := s.resolver.ResolveVersion(ctx, in.EntityType, in.EntityID, in.TargetBranchID, *source.DivergedAt)
	if err != nil {
		return Preview{}, err
	}
	sourceHead, err := s.resolver.ResolveVersion(ctx, in.EntityType, in.EntityID, in.SourceBranchID, now)
	if err != nil {
		return Preview{}, err
	}
	targetHead, err := s.resolver.ResolveVersion(ctx, in.EntityType, in.EntityID, in.TargetBranchID, now)
	if err != nil {
		return Preview{}, err
	}

	result := domain.DetectConflicts(payloadOf(base), payloadOf(sourceHead), payloadOf(targetHead))

	return Preview{
		Base:   base,
		Source: sourceHead,
		Target: targetHead,
		Result: result,
	}, nil
}

// payloadOf treats both "no version recorded" and a tombstone as absence.
func payloadOf(version *domain.Version) map[string]any {
	if version == nil || version.IsTombstone() {
		return nil
	}
	return version.Payload
}

package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/timeline"
)

type fakeBranchRepository struct {
	branches map[uuid.UUID]domain.Branch
}

func newFakeBranchRepository() *fakeBranchRepository {
	return &fakeBranchRepository{branches: map[uuid.UUID]domain.Branch{}}
}

func (f *fakeBranchRepository) Create(_ context.Context, branch domain.Branch) (domain.Branch, error) {
	f.branches[branch.ID] = branch
	return branch, nil
}

func (f *fakeBranchRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Branch, error) {
	branch, ok := f.branches[id]
	if !ok {
		return domain.Branch{}, domain.BranchNotFoundError{BranchID: id}
	}
	return branch, nil
}

func (f *fakeBranchRepository) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Branch, error) {
	out := []domain.Branch{}
	for _, id := range ids {
		if branch, ok := f.branches[id]; ok {
			out = append(out, branch)
		}
	}
	return out, nil
}

func (f *fakeBranchRepository) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]domain.Branch, error) {
	out := []domain.Branch{}
	for _, branch := range f.branches {
		if branch.CampaignID == campaignID {
			out = append(out, branch)
		}
	}
	return out, nil
}

func (f *fakeBranchRepository) SoftDelete(_ context.Context, id uuid.UUID) error {
	branch, ok := f.branches[id]
	if !ok {
		return domain.BranchNotFoundError{BranchID: id}
	}
	now := time.Now()
	branch.DeletedAt = &now
	f.branches[id] = branch
	return nil
}

type fakeVersionRepository struct {
	versions []domain.Version
}

func (f *fakeVersionRepository) Create(_ context.Context, version domain.Version) (domain.Version, error) {
	for i := range f.versions {
		existing := &f.versions[i]
		if existing.EntityType == version.EntityType && existing.EntityID == version.EntityID &&
			existing.BranchID == version.BranchID && existing.ValidTo == nil {
			closeAt := version.ValidFrom
			existing.ValidTo = &closeAt
		}
	}
	version.ID = uuid.New()
	f.versions = append(f.versions, version)
	return version, nil
}

func (f *fakeVersionRepository) GetOpen(_ context.Context, entityType string, entityID, branchID uuid.UUID) (*domain.Version, error) {
	for i := range f.versions {
		v := f.versions[i]
		if v.EntityType == entityType && v.EntityID == entityID && v.BranchID == branchID && v.ValidTo == nil {
			return &v, nil
		}
	}
	return nil, nil
}

func (f *fakeVersionRepository) FindCovering(_ context.Context, entityType string, entityID, branchID uuid.UUID, asOf time.Time) (*domain.Version, error) {
	var best *domain.Version
	for i := range f.versions {
		candidate := f.versions[i]
		if candidate.EntityType != entityType || candidate.EntityID != entityID ||
			candidate.BranchID != branchID || !candidate.Covers(asOf) {
			continue
		}
		if best == nil || candidate.ValidFrom.After(best.ValidFrom) {
			v := candidate
			best = &v
		}
	}
	return best, nil
}

func (f *fakeVersionRepository) FindCoveringBatch(ctx context.Context, entityType string, entityIDs []uuid.UUID, branchID uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Version, error) {
	out := map[uuid.UUID]domain.Version{}
	for _, id := range entityIDs {
		version, err := f.FindCovering(ctx, entityType, id, branchID, asOf)
		if err != nil {
			return nil, err
		}
		if version != nil {
			out[id] = *version
		}
	}
	return out, nil
}

func (f *fakeVersionRepository) ListHistory(_ context.Context, entityType string, entityID, branchID uuid.UUID) ([]domain.Version, error) {
	out := []domain.Version{}
	for _, version := range f.versions {
		if version.EntityType == entityType && version.EntityID == entityID && version.BranchID == branchID {
			out = append(out, version)
		}
	}
	return out, nil
}

type fixture struct {
	service  *Service
	versions *fakeVersionRepository

	main     domain.Branch
	fork     domain.Branch
	forkedAt time.Time
	entityID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := branching.NewRegistry(newFakeBranchRepository())
	versions := &fakeVersionRepository{}
	resolver := timeline.NewService(registry, versions)

	campaignID := uuid.New()
	main, err := registry.CreateBranch(ctx, campaignID, "Main", nil, nil)
	if err != nil {
		t.Fatalf("failed to create main branch: %v", err)
	}
	forkedAt := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	fork, err := registry.CreateBranch(ctx, campaignID, "What if", &main.ID, &forkedAt)
	if err != nil {
		t.Fatalf("failed to create fork: %v", err)
	}

	return &fixture{
		service:  NewService(registry, resolver),
		versions: versions,
		main:     main,
		fork:     fork,
		forkedAt: forkedAt,
		entityID: uuid.New(),
	}
}

func (f *fixture) write(t *testing.T, branchID uuid.UUID, validFrom time.Time, payload map[string]any) {
	t.Helper()
	if _, err := f.versions.Create(context.Background(), domain.Version{
		EntityType: "settlement",
		EntityID:   f.entityID,
		BranchID:   branchID,
		ValidFrom:  validFrom,
		Payload:    payload,
		CreatedBy:  "gm",
	}); err != nil {
		t.Fatalf("failed to write version: %v", err)
	}
}

func (f *fixture) preview(t *testing.T) Preview {
	t.Helper()
	preview, err := f.service.PreviewMerge(context.Background(), PreviewInput{
		SourceBranchID: f.fork.ID,
		TargetBranchID: f.main.ID,
		EntityType:     "settlement",
		EntityID:       f.entityID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return preview
}

func TestPreviewMergeReportsBothModified(t *testing.T) {
	f := newFixture(t)

	f.write(t, f.main.ID, f.forkedAt.Add(-time.Hour), map[string]any{"name": "Dunhollow", "level": float64(1)})
	f.write(t, f.main.ID, f.forkedAt.Add(time.Hour), map[string]any{"name": "Dunhollow", "level": float64(2)})
	f.write(t, f.fork.ID, f.forkedAt.Add(time.Hour), map[string]any{"name": "Dunhollow", "level": float64(3)})

	preview := f.preview(t)

	if preview.Base == nil || preview.Source == nil || preview.Target == nil {
		t.Fatalf("expected all three snapshots, got %+v", preview)
	}
	if len(preview.Result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", preview.Result.Conflicts)
	}
	conflict := preview.Result.Conflicts[0]
	if conflict.Path != "level" || conflict.Kind != domain.ConflictBothModified {
		t.Errorf("unexpected conflict %+v", conflict)
	}
	if !preview.Result.HasConflicts || preview.Result.MergedPayload != nil {
		t.Error("expected no merged payload when conflicts remain")
	}
}

func TestPreviewMergeAutoMergesSingleSideEdit(t *testing.T) {
	f := newFixture(t)

	f.write(t, f.main.ID, f.forkedAt.Add(-time.Hour), map[string]any{"name": "Dunhollow", "level": float64(1)})
	f.write(t, f.fork.ID, f.forkedAt.Add(time.Hour), map[string]any{"name": "Dunhollow", "level": float64(3)})

	preview := f.preview(t)

	if len(preview.Result.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", preview.Result.Conflicts)
	}
	if !domain.DeepEqual(preview.Result.MergedPayload, map[string]any{"name": "Dunhollow", "level": float64(3)}) {
		t.Errorf("unexpected merged payload %+v", preview.Result.MergedPayload)
	}
}

func TestPreviewMergeSourceDeletedTargetModified(t *testing.T) {
	f := newFixture(t)

	f.write(t, f.main.ID, f.forkedAt.Add(-time.Hour), map[string]any{"name": "Dunhollow", "level": float64(1)})
	f.write(t, f.main.ID, f.forkedAt.Add(time.Hour), map[string]any{"name": "Dunhollow", "level": float64(2)})
	// Tombstone on the fork.
	f.write(t, f.fork.ID, f.forkedAt.Add(time.Hour), nil)

	preview := f.preview(t)

	if len(preview.Result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", preview.Result.Conflicts)
	}
	if preview.Result.Conflicts[0].Kind != domain.ConflictDeletedModified {
		t.Errorf("expected DELETED_MODIFIED, got %v", preview.Result.Conflicts[0].Kind)
	}
}

func TestPreviewMergeRejectsRootSource(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PreviewMerge(context.Background(), PreviewInput{
		SourceBranchID: f.main.ID,
		TargetBranchID: f.fork.ID,
		EntityType:     "settlement",
		EntityID:       f.entityID,
	})

	var invalid domain.InvalidBranchError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidBranchError, got %v", err)
	}
}

func TestPreviewMergeUnknownBranch(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PreviewMerge(context.Background(), PreviewInput{
		SourceBranchID: uuid.New(),
		TargetBranchID: f.main.ID,
		EntityType:     "settlement",
		EntityID:       f.entityID,
	})

	var notFound domain.BranchNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected BranchNotFoundError, got %v", err)
	}
}

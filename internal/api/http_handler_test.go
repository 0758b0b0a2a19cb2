package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/merge"
	"github.com/jakekausler/campaign-manager/internal/middleware"
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
	lastBy   string
}

func (f *fakeVersionRepository) Create(_ context.Context, version domain.Version) (domain.Version, error) {
	version.ID = uuid.New()
	f.versions = append(f.versions, version)
	f.lastBy = version.CreatedBy
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
	for i := range f.versions {
		v := f.versions[i]
		if v.EntityType == entityType && v.EntityID == entityID && v.BranchID == branchID && v.Covers(asOf) {
			return &v, nil
		}
	}
	return nil, nil
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

type fakeEntityRepository struct {
	entities map[uuid.UUID]domain.CampaignEntity
}

func newFakeEntityRepository() *fakeEntityRepository {
	return &fakeEntityRepository{entities: map[uuid.UUID]domain.CampaignEntity{}}
}

func (f *fakeEntityRepository) Create(_ context.Context, entity domain.CampaignEntity, _ uuid.UUID, _ string) (domain.CampaignEntity, error) {
	f.entities[entity.ID] = entity
	return entity, nil
}

func (f *fakeEntityRepository) GetByID(_ context.Context, id uuid.UUID) (domain.CampaignEntity, error) {
	entity, ok := f.entities[id]
	if !ok {
		return domain.CampaignEntity{}, domain.EntityNotFoundError{EntityID: id}
	}
	return entity, nil
}

func (f *fakeEntityRepository) Update(_ context.Context, entity domain.CampaignEntity, expectedVersion int64, _ uuid.UUID, _ string) (domain.CampaignEntity, error) {
	current, ok := f.entities[entity.ID]
	if !ok {
		return domain.CampaignEntity{}, domain.EntityNotFoundError{EntityID: entity.ID}
	}
	if current.Version != expectedVersion {
		return domain.CampaignEntity{}, domain.OptimisticLockError{EntityID: entity.ID, Expected: expectedVersion, Actual: current.Version}
	}
	entity.Version = current.Version + 1
	f.entities[entity.ID] = entity
	return entity, nil
}

func (f *fakeEntityRepository) Delete(_ context.Context, id uuid.UUID, expectedVersion int64, _ uuid.UUID, _ string) error {
	current, ok := f.entities[id]
	if !ok {
		return domain.EntityNotFoundError{EntityID: id}
	}
	if current.Version != expectedVersion {
		return domain.OptimisticLockError{EntityID: id, Expected: expectedVersion, Actual: current.Version}
	}
	delete(f.entities, id)
	return nil
}

type env struct {
	handler http.Handler

	branches *fakeBranchRepository
	versions *fakeVersionRepository
	entities *fakeEntityRepository
	registry *branching.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()

	branches := newFakeBranchRepository()
	versions := &fakeVersionRepository{}
	entities := newFakeEntityRepository()

	registry := branching.NewRegistry(branches)
	resolver := timeline.NewService(registry, versions)
	merger := merge.NewService(registry, resolver)

	return &env{
		handler:  middleware.ActorMiddleware(NewHTTPHandler(registry, resolver, merger, entities)),
		branches: branches,
		versions: versions,
		entities: entities,
		registry: registry,
	}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) mainBranch(t *testing.T) domain.Branch {
	t.Helper()
	branch, err := e.registry.CreateBranch(context.Background(), uuid.New(), "Main", nil, nil)
	if err != nil {
		t.Fatalf("failed to create branch: %v", err)
	}
	return branch
}

func TestCreateBranchEndpoint(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/branches", map[string]any{
		"campaignId": uuid.New().String(),
		"name":       "Main",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var branch domain.Branch
	if err := json.Unmarshal(rec.Body.Bytes(), &branch); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if branch.Name != "Main" || branch.ParentID != nil {
		t.Errorf("unexpected branch %+v", branch)
	}
}

func TestCreateBranchEndpointRejectsMissingName(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/branches", map[string]any{
		"campaignId": uuid.New().String(),
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateVersionEndpointStampsHeaderActor(t *testing.T) {
	e := newEnv(t)
	branch := e.mainBranch(t)

	body, err := json.Marshal(map[string]any{
		"entityType": "settlement",
		"entityId":   uuid.New().String(),
		"branchId":   branch.ID.String(),
		"payload":    map[string]any{"name": "Dunhollow"},
	})
	if err != nil {
		t.Fatalf("failed to encode request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/versions", bytes.NewReader(body))
	req.Header.Set("X-Actor", "gm")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if e.versions.lastBy != "gm" {
		t.Errorf("expected CreatedBy from X-Actor header, got %q", e.versions.lastBy)
	}
}

func TestResolveEndpointUnknownBranchIs404(t *testing.T) {
	e := newEnv(t)

	target := fmt.Sprintf("/api/versions/resolve?entityType=settlement&entityId=%s&branchId=%s",
		uuid.New(), uuid.New())
	rec := e.do(t, http.MethodGet, target, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateEntityEndpointStaleCounterIs409(t *testing.T) {
	e := newEnv(t)
	branch := e.mainBranch(t)

	entity := domain.NewCampaignEntity(uuid.New(), "settlement", map[string]any{"name": "Dunhollow"})
	if _, err := e.entities.Create(context.Background(), entity, branch.ID, "gm"); err != nil {
		t.Fatalf("failed to seed entity: %v", err)
	}

	rec := e.do(t, http.MethodPut, "/api/entities/"+entity.ID.String(), map[string]any{
		"branchId":        branch.ID.String(),
		"payload":         map[string]any{"name": "New Dunhollow"},
		"expectedVersion": entity.Version + 5,
		"actor":           "gm",
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteBranchEndpoint(t *testing.T) {
	e := newEnv(t)
	branch := e.mainBranch(t)

	rec := e.do(t, http.MethodDelete, "/api/branches/"+branch.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	stored := e.branches.branches[branch.ID]
	if stored.DeletedAt == nil {
		t.Error("expected branch to be soft-deleted")
	}
}

func TestParseAsOfDefaultsToNow(t *testing.T) {
	before := time.Now()
	asOf, err := parseAsOf("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asOf.Before(before) || asOf.After(time.Now()) {
		t.Errorf("expected current time, got %v", asOf)
	}

	if _, err := parseAsOf("yesterday"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

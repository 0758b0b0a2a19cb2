package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jakekausler/campaign-manager/internal/auth"
	"github.com/jakekausler/campaign-manager/internal/branching"
	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/merge"
	"github.com/jakekausler/campaign-manager/internal/repository"
	"github.com/jakekausler/campaign-manager/internal/timeline"
)

// Handler exposes the version-and-branch store as JSON endpoints.
type Handler struct {
	registry *branching.Registry
	resolver *timeline.Service
	merges   *merge.Service
	entities repository.EntityRepository
}

// NewHTTPHandler wires the core services behind a single handler.
func NewHTTPHandler(registry *branching.Registry, resolver *timeline.Service, merges *merge.Service, entities repository.EntityRepository) http.Handler {
	return &Handler{
		registry: registry,
		resolver: resolver,
		merges:   merges,
		entities: entities,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/branches"):
		h.handleCreateBranch(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/ancestry"):
		h.handleAncestry(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/branches"):
		h.handleListBranches(w, r)
	case r.Method == http.MethodDelete && strings.Contains(path, "/branches/"):
		h.handleDeleteBranch(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/versions"):
		h.handleCreateVersion(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/versions/resolve"):
		h.handleResolve(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/versions/open"):
		h.handleOpenVersion(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/versions/history"):
		h.handleHistory(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/merge/preview"):
		h.handleMergePreview(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/entities"):
		h.handleCreateEntity(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/entities/"):
		h.handleGetEntity(w, r)
	case r.Method == http.MethodPut && strings.Contains(path, "/entities/"):
		h.handleUpdateEntity(w, r)
	case r.Method == http.MethodDelete && strings.Contains(path, "/entities/"):
		h.handleDeleteEntity(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type createBranchPayload struct {
	CampaignID string     `json:"campaignId"`
	Name       string     `json:"name"`
	ParentID   *string    `json:"parentId"`
	DivergedAt *time.Time `json:"divergedAt"`
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var payload createBranchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	campaignID, err := uuid.Parse(payload.CampaignID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid campaign id: %v", err), http.StatusBadRequest)
		return
	}

	var parentID *uuid.UUID
	if payload.ParentID != nil {
		parsed, err := uuid.Parse(*payload.ParentID)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid parent id: %v", err), http.StatusBadRequest)
			return
		}
		parentID = &parsed
	}

	branch, err := h.registry.CreateBranch(r.Context(), campaignID, payload.Name, parentID, payload.DivergedAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, branch)
}

func (h *Handler) handleListBranches(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("campaignId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid campaign id: %v", err), http.StatusBadRequest)
		return
	}

	branches, err := h.registry.ListBranches(r.Context(), campaignID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) handleAncestry(w http.ResponseWriter, r *http.Request) {
	branchID, err := pathID(r.URL.Path, "branches")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	chain, err := h.registry.AncestryChain(r.Context(), branchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chain)
}

func (h *Handler) handleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	branchID, err := pathID(r.URL.Path, "branches")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.registry.DeleteBranch(r.Context(), branchID); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createVersionPayload struct {
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	BranchID   string         `json:"branchId"`
	ValidFrom  *time.Time     `json:"validFrom"`
	Payload    map[string]any `json:"payload"`
	CreatedBy  string         `json:"createdBy"`
}

func (h *Handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var payload createVersionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	entityID, branchID, err := parseEntityBranch(payload.EntityID, payload.BranchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.EntityType) == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	version := domain.Version{
		EntityType: payload.EntityType,
		EntityID:   entityID,
		BranchID:   branchID,
		Payload:    payload.Payload,
		CreatedBy:  auth.ResolveActor(r.Context(), payload.CreatedBy),
	}
	if payload.ValidFrom != nil {
		version.ValidFrom = *payload.ValidFrom
	}

	created, err := h.resolver.CreateVersion(r.Context(), version)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	entityType := strings.TrimSpace(query.Get("entityType"))
	if entityType == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	branchID, err := uuid.Parse(strings.TrimSpace(query.Get("branchId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid branch id: %v", err), http.StatusBadRequest)
		return
	}

	asOf, err := parseAsOf(query.Get("asOf"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rawIDs := strings.Split(strings.TrimSpace(query.Get("entityId")), ",")
	entityIDs := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid entity id %q: %v", raw, err), http.StatusBadRequest)
			return
		}
		entityIDs = append(entityIDs, id)
	}

	if len(entityIDs) == 1 {
		version, err := h.resolver.ResolveVersion(r.Context(), entityType, entityIDs[0], branchID, asOf)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"version": version})
		return
	}

	versions, err := h.resolver.ResolveVersions(r.Context(), entityType, entityIDs, branchID, asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *Handler) handleOpenVersion(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, branchID, err := entityQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	version, err := h.resolver.GetOpenVersion(r.Context(), entityType, entityID, branchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entityType, entityID, branchID, err := entityQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	versions, err := h.resolver.ListHistory(r.Context(), entityType, entityID, branchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, versions)
}

type mergePreviewPayload struct {
	SourceBranchID string `json:"sourceBranchId"`
	TargetBranchID string `json:"targetBranchId"`
	EntityType     string `json:"entityType"`
	EntityID       string `json:"entityId"`
}

func (h *Handler) handleMergePreview(w http.ResponseWriter, r *http.Request) {
	var payload mergePreviewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	sourceID, err := uuid.Parse(payload.SourceBranchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid source branch id: %v", err), http.StatusBadRequest)
		return
	}
	targetID, err := uuid.Parse(payload.TargetBranchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid target branch id: %v", err), http.StatusBadRequest)
		return
	}
	entityID, err := uuid.Parse(payload.EntityID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity id: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.EntityType) == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	preview, err := h.merges.PreviewMerge(r.Context(), merge.PreviewInput{
		SourceBranchID: sourceID,
		TargetBranchID: targetID,
		EntityType:     payload.EntityType,
		EntityID:       entityID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

type createEntityPayload struct {
	CampaignID string         `json:"campaignId"`
	EntityType string         `json:"entityType"`
	BranchID   string         `json:"branchId"`
	Payload    map[string]any `json:"payload"`
	Actor      string         `json:"actor"`
}

func (h *Handler) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var payload createEntityPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	campaignID, err := uuid.Parse(payload.CampaignID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid campaign id: %v", err), http.StatusBadRequest)
		return
	}
	branchID, err := uuid.Parse(payload.BranchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid branch id: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.EntityType) == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	entity := domain.NewCampaignEntity(campaignID, payload.EntityType, payload.Payload)
	created, err := h.entities.Create(r.Context(), entity, branchID, auth.ResolveActor(r.Context(), payload.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathID(r.URL.Path, "entities")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entity, err := h.entities.GetByID(r.Context(), entityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entity)
}

type updateEntityPayload struct {
	BranchID        string         `json:"branchId"`
	Payload         map[string]any `json:"payload"`
	ExpectedVersion int64          `json:"expectedVersion"`
	Actor           string         `json:"actor"`
}

func (h *Handler) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathID(r.URL.Path, "entities")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload updateEntityPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	branchID, err := uuid.Parse(payload.BranchID)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid branch id: %v", err), http.StatusBadRequest)
		return
	}

	entity, err := h.entities.GetByID(r.Context(), entityID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := h.entities.Update(r.Context(), entity.WithPayload(payload.Payload), payload.ExpectedVersion, branchID, auth.ResolveActor(r.Context(), payload.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathID(r.URL.Path, "entities")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	expectedVersion, err := strconv.ParseInt(query.Get("expectedVersion"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid expectedVersion: %v", err), http.StatusBadRequest)
		return
	}
	branchID, err := uuid.Parse(strings.TrimSpace(query.Get("branchId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid branch id: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.entities.Delete(r.Context(), entityID, expectedVersion, branchID, auth.ResolveActor(r.Context(), query.Get("actor"))); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func entityQuery(r *http.Request) (string, uuid.UUID, uuid.UUID, error) {
	query := r.URL.Query()

	entityType := strings.TrimSpace(query.Get("entityType"))
	if entityType == "" {
		return "", uuid.Nil, uuid.Nil, fmt.Errorf("entityType is required")
	}

	entityID, branchID, err := parseEntityBranch(query.Get("entityId"), query.Get("branchId"))
	if err != nil {
		return "", uuid.Nil, uuid.Nil, err
	}
	return entityType, entityID, branchID, nil
}

func parseEntityBranch(rawEntityID, rawBranchID string) (uuid.UUID, uuid.UUID, error) {
	entityID, err := uuid.Parse(strings.TrimSpace(rawEntityID))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid entity id: %v", err)
	}
	branchID, err := uuid.Parse(strings.TrimSpace(rawBranchID))
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid branch id: %v", err)
	}
	return entityID, branchID, nil
}

func parseAsOf(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now(), nil
	}
	asOf, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid asOf timestamp: %v", err)
	}
	return asOf, nil
}

// pathID extracts the UUID segment following the given collection name.
func pathID(path, collection string) (uuid.UUID, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == collection && i+1 < len(segments) {
			id, err := uuid.Parse(segments[i+1])
			if err != nil {
				return uuid.Nil, fmt.Errorf("invalid %s id: %v", strings.TrimSuffix(collection, "s"), err)
			}
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("missing %s id", strings.TrimSuffix(collection, "s"))
}

func writeDomainError(w http.ResponseWriter, err error) {
	var branchNotFound domain.BranchNotFoundError
	var entityNotFound domain.EntityNotFoundError
	var invalidBranch domain.InvalidBranchError
	var invalidInterval domain.InvalidIntervalError
	var lockErr domain.OptimisticLockError
	var depthErr domain.AncestryDepthError

	switch {
	case errors.As(err, &branchNotFound), errors.As(err, &entityNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalidBranch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &invalidInterval), errors.As(err, &lockErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &depthErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

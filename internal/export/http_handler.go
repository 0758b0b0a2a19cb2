package export

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Handler streams history exports over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a GET endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	entityType := strings.TrimSpace(query.Get("entityType"))
	if entityType == "" {
		http.Error(w, "entityType is required", http.StatusBadRequest)
		return
	}

	entityID, err := uuid.Parse(strings.TrimSpace(query.Get("entityId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entity id: %v", err), http.StatusBadRequest)
		return
	}

	branchID, err := uuid.Parse(strings.TrimSpace(query.Get("branchId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid branch id: %v", err), http.StatusBadRequest)
		return
	}

	req := Request{EntityType: entityType, EntityID: entityID, BranchID: branchID}

	f, err := h.service.BuildHistoryWorkbook(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.service.FileName(req)))
	if err := f.Write(w); err != nil {
		// Headers are already sent; nothing useful left to report.
		return
	}
}

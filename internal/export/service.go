package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/repository"
)

const historySheet = "History"

// Service renders a branch's version history for one entity as an XLSX
// workbook: one row per version, flattened payload paths as columns.
type Service struct {
	versions repository.VersionRepository
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

// NewService creates a history export service.
func NewService(versions repository.VersionRepository, opts ...Option) *Service {
	service := &Service{
		versions: versions,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request names the entity history to export.
type Request struct {
	EntityType string
	EntityID   uuid.UUID
	BranchID   uuid.UUID
}

// FileName suggests a download name for the workbook.
func (s *Service) FileName(req Request) string {
	return fmt.Sprintf("%s-%s-history-%s.xlsx", req.EntityType, req.EntityID, s.now().Format("20060102-150405"))
}

// BuildHistoryWorkbook loads the branch-local history and renders it. The
// caller owns the returned file and must Close it.
func (s *Service) BuildHistoryWorkbook(ctx context.Context, req Request) (*excelize.File, error) {
	versions, err := s.versions.ListHistory(ctx, req.EntityType, req.EntityID, req.BranchID)
	if err != nil {
		return nil, err
	}

	columns := payloadColumns(versions)

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), historySheet)

	header := []any{"Valid From", "Valid To", "Change", "Created By"}
	for _, column := range columns {
		header = append(header, column)
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for i, version := range versions {
		row := []any{
			version.ValidFrom.UTC().Format(time.RFC3339),
			formatValidTo(version.ValidTo),
			changeLabel(version),
			version.CreatedBy,
		}
		for _, column := range columns {
			row = append(row, cellValue(version, column))
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write history row: %w", err)
		}
	}

	return f, nil
}

// payloadColumns unions the flattened paths across every version so columns
// stay stable down the sheet.
func payloadColumns(versions []domain.Version) []string {
	seen := map[string]struct{}{}
	columns := []string{}
	for _, version := range versions {
		for _, path := range domain.FlattenPaths(version.Payload) {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			columns = append(columns, path)
		}
	}
	return columns
}

func cellValue(version domain.Version, path string) any {
	value, exists := domain.LookupPath(version.Payload, path)
	if !exists {
		return ""
	}
	switch typed := value.(type) {
	case nil:
		return "null"
	case string, bool, float64, int, int64:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}

func formatValidTo(validTo *time.Time) string {
	if validTo == nil {
		return "open"
	}
	return validTo.UTC().Format(time.RFC3339)
}

func changeLabel(version domain.Version) string {
	if version.IsTombstone() {
		return "DELETED"
	}
	return "SNAPSHOT"
}

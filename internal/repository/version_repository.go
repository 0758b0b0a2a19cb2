package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakekausler/campaign-manager/internal/db"
	"github.com/jakekausler/campaign-manager/internal/domain"
)

const versionColumns = "id, entity_type, entity_id, branch_id, valid_from, valid_to, payload, created_by, created_at"

// versionRepository implements VersionRepository over Postgres.
type versionRepository struct {
	conn *db.Connection
}

// NewVersionRepository creates a version repository.
func NewVersionRepository(conn *db.Connection) VersionRepository {
	return &versionRepository{conn: conn}
}

func (r *versionRepository) Create(ctx context.Context, version domain.Version) (domain.Version, error) {
	var created domain.Version
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = appendVersionTx(ctx, tx, version)
		return txErr
	})
	if err != nil {
		return domain.Version{}, err
	}
	return created, nil
}

// appendVersionTx inserts a version row inside an open transaction, closing
// the currently open version for the same (entityType, entityID, branchID)
// by setting its validTo to the new validFrom. Retroactive insertion below
// the open version's start is rejected with InvalidIntervalError. Entity
// mutations reuse this helper so the live-row update and the history append
// commit or roll back together.
func appendVersionTx(ctx context.Context, tx pgx.Tx, version domain.Version) (domain.Version, error) {
	var openID uuid.UUID
	var openFrom time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, valid_from FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2 AND branch_id = $3 AND valid_to IS NULL
		FOR UPDATE`,
		version.EntityType, version.EntityID, version.BranchID,
	).Scan(&openID, &openFrom)

	switch {
	case err == nil:
		if version.ValidFrom.Before(openFrom) {
			return domain.Version{}, domain.InvalidIntervalError{
				EntityType: version.EntityType,
				EntityID:   version.EntityID,
				BranchID:   version.BranchID,
				ValidFrom:  version.ValidFrom,
				OpenFrom:   openFrom,
			}
		}
		if _, err := tx.Exec(ctx,
			"UPDATE entity_versions SET valid_to = $1 WHERE id = $2", version.ValidFrom, openID); err != nil {
			return domain.Version{}, fmt.Errorf("failed to close open version: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// First version for this entity on this branch.
	default:
		return domain.Version{}, fmt.Errorf("failed to look up open version: %w", err)
	}

	payloadJSON, err := version.PayloadJSON()
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO entity_versions (id, entity_type, entity_id, branch_id, valid_from, payload, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+versionColumns,
		version.ID, version.EntityType, version.EntityID, version.BranchID,
		version.ValidFrom, payloadJSON, version.CreatedBy,
	)

	created, err := scanVersion(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Version{}, domain.BranchNotFoundError{BranchID: version.BranchID}
		}
		return domain.Version{}, fmt.Errorf("failed to insert version: %w", err)
	}
	return created, nil
}

func (r *versionRepository) GetOpen(ctx context.Context, entityType string, entityID, branchID uuid.UUID) (*domain.Version, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2 AND branch_id = $3 AND valid_to IS NULL`,
		entityType, entityID, branchID,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open version: %w", err)
	}
	return &version, nil
}

func (r *versionRepository) FindCovering(ctx context.Context, entityType string, entityID, branchID uuid.UUID, asOf time.Time) (*domain.Version, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2 AND branch_id = $3
		  AND valid_from <= $4 AND (valid_to IS NULL OR valid_to > $4)
		ORDER BY valid_from DESC
		LIMIT 1`,
		entityType, entityID, branchID, asOf,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find covering version: %w", err)
	}
	return &version, nil
}

func (r *versionRepository) FindCoveringBatch(ctx context.Context, entityType string, entityIDs []uuid.UUID, branchID uuid.UUID, asOf time.Time) (map[uuid.UUID]domain.Version, error) {
	if len(entityIDs) == 0 {
		return map[uuid.UUID]domain.Version{}, nil
	}

	rows, err := r.conn.Pool.Query(ctx, `
		SELECT DISTINCT ON (entity_id) `+versionColumns+` FROM entity_versions
		WHERE entity_type = $1 AND entity_id = ANY($2) AND branch_id = $3
		  AND valid_from <= $4 AND (valid_to IS NULL OR valid_to > $4)
		ORDER BY entity_id, valid_from DESC`,
		entityType, entityIDs, branchID, asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find covering versions: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]domain.Version, len(entityIDs))
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		result[version.EntityID] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	return result, nil
}

func (r *versionRepository) ListHistory(ctx context.Context, entityType string, entityID, branchID uuid.UUID) ([]domain.Version, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+versionColumns+` FROM entity_versions
		WHERE entity_type = $1 AND entity_id = $2 AND branch_id = $3
		ORDER BY valid_from`,
		entityType, entityID, branchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list version history: %w", err)
	}
	defer rows.Close()

	versions := []domain.Version{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read version history: %w", err)
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (domain.Version, error) {
	var version domain.Version
	var validTo *time.Time
	var payloadJSON []byte

	err := row.Scan(&version.ID, &version.EntityType, &version.EntityID, &version.BranchID,
		&version.ValidFrom, &validTo, &payloadJSON, &version.CreatedBy, &version.CreatedAt)
	if err != nil {
		return domain.Version{}, err
	}

	payload, err := domain.PayloadFromJSON(json.RawMessage(payloadJSON))
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to decode payload for version %s: %w", version.ID, err)
	}

	version.ValidTo = validTo
	version.Payload = payload
	return version, nil
}

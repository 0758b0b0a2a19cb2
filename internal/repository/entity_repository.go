package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jakekausler/campaign-manager/internal/db"
	"github.com/jakekausler/campaign-manager/internal/domain"
)

const entityColumns = "id, campaign_id, entity_type, payload, version, created_at, updated_at"

// entityRepository implements EntityRepository over Postgres. Every mutation
// bumps the optimistic-lock counter and appends the corresponding temporal
// version inside one transaction, so the live row and its history cannot
// drift apart on a crash.
type entityRepository struct {
	conn *db.Connection
	now  func() time.Time
}

// NewEntityRepository creates a campaign entity repository.
func NewEntityRepository(conn *db.Connection) EntityRepository {
	return &entityRepository{conn: conn, now: time.Now}
}

func (r *entityRepository) Create(ctx context.Context, entity domain.CampaignEntity, branchID uuid.UUID, actor string) (domain.CampaignEntity, error) {
	payloadJSON, err := entity.PayloadAsJSONB()
	if err != nil {
		return domain.CampaignEntity{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var created domain.CampaignEntity
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO campaign_entities (id, campaign_id, entity_type, payload)
			VALUES ($1, $2, $3, $4)
			RETURNING `+entityColumns,
			entity.ID, entity.CampaignID, entity.EntityType, payloadJSON,
		)

		var txErr error
		created, txErr = scanEntity(row)
		if txErr != nil {
			return fmt.Errorf("failed to create entity: %w", txErr)
		}

		_, txErr = appendVersionTx(ctx, tx, domain.Version{
			EntityType: created.EntityType,
			EntityID:   created.ID,
			BranchID:   branchID,
			ValidFrom:  r.now(),
			Payload:    created.Payload,
			CreatedBy:  actor,
		})
		return txErr
	})
	if err != nil {
		return domain.CampaignEntity{}, err
	}
	return created, nil
}

func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.CampaignEntity, error) {
	row := r.conn.Pool.QueryRow(ctx,
		"SELECT "+entityColumns+" FROM campaign_entities WHERE id = $1", id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CampaignEntity{}, domain.EntityNotFoundError{EntityID: id}
		}
		return domain.CampaignEntity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

func (r *entityRepository) Update(ctx context.Context, entity domain.CampaignEntity, expectedVersion int64, branchID uuid.UUID, actor string) (domain.CampaignEntity, error) {
	payloadJSON, err := entity.PayloadAsJSONB()
	if err != nil {
		return domain.CampaignEntity{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var updated domain.CampaignEntity
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE campaign_entities
			SET payload = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND version = $3
			RETURNING `+entityColumns,
			payloadJSON, entity.ID, expectedVersion,
		)

		var txErr error
		updated, txErr = scanEntity(row)
		if txErr != nil {
			if errors.Is(txErr, pgx.ErrNoRows) {
				return r.lockFailure(ctx, tx, entity.ID, expectedVersion)
			}
			return fmt.Errorf("failed to update entity: %w", txErr)
		}

		_, txErr = appendVersionTx(ctx, tx, domain.Version{
			EntityType: updated.EntityType,
			EntityID:   updated.ID,
			BranchID:   branchID,
			ValidFrom:  r.now(),
			Payload:    updated.Payload,
			CreatedBy:  actor,
		})
		return txErr
	})
	if err != nil {
		return domain.CampaignEntity{}, err
	}
	return updated, nil
}

func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID, expectedVersion int64, branchID uuid.UUID, actor string) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var entityType string
		err := tx.QueryRow(ctx, `
			UPDATE campaign_entities
			SET version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $2
			RETURNING entity_type`,
			id, expectedVersion,
		).Scan(&entityType)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.lockFailure(ctx, tx, id, expectedVersion)
			}
			return fmt.Errorf("failed to delete entity: %w", err)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM campaign_entities WHERE id = $1", id); err != nil {
			return fmt.Errorf("failed to remove entity row: %w", err)
		}

		// A nil payload records the deletion as a tombstone version.
		_, err = appendVersionTx(ctx, tx, domain.Version{
			EntityType: entityType,
			EntityID:   id,
			BranchID:   branchID,
			ValidFrom:  r.now(),
			CreatedBy:  actor,
		})
		return err
	})
}

// lockFailure distinguishes a missing row from a stale counter.
func (r *entityRepository) lockFailure(ctx context.Context, tx pgx.Tx, id uuid.UUID, expected int64) error {
	var actual int64
	err := tx.QueryRow(ctx, "SELECT version FROM campaign_entities WHERE id = $1", id).Scan(&actual)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EntityNotFoundError{EntityID: id}
		}
		return fmt.Errorf("failed to check entity version: %w", err)
	}
	return domain.OptimisticLockError{EntityID: id, Expected: expected, Actual: actual}
}

func scanEntity(row pgx.Row) (domain.CampaignEntity, error) {
	var entity domain.CampaignEntity
	var payloadJSON []byte

	err := row.Scan(&entity.ID, &entity.CampaignID, &entity.EntityType, &payloadJSON,
		&entity.Version, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return domain.CampaignEntity{}, err
	}

	payload, err := domain.PayloadFromJSON(payloadJSON)
	if err != nil {
		return domain.CampaignEntity{}, fmt.Errorf("failed to decode payload for entity %s: %w", entity.ID, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	entity.Payload = payload
	return entity, nil
}

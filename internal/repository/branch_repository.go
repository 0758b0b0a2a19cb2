package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jakekausler/campaign-manager/internal/db"
	"github.com/jakekausler/campaign-manager/internal/domain"
)

const branchColumns = "id, campaign_id, name, parent_id, diverged_at, created_at, deleted_at"

// branchRepository implements BranchRepository over Postgres.
type branchRepository struct {
	conn *db.Connection
}

// NewBranchRepository creates a branch repository.
func NewBranchRepository(conn *db.Connection) BranchRepository {
	return &branchRepository{conn: conn}
}

func (r *branchRepository) Create(ctx context.Context, branch domain.Branch) (domain.Branch, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO branches (id, campaign_id, name, parent_id, diverged_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+branchColumns,
		branch.ID, branch.CampaignID, branch.Name, branch.ParentID, branch.DivergedAt, branch.CreatedAt,
	)

	created, err := scanBranch(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Branch{}, domain.BranchNotFoundError{BranchID: derefUUID(branch.ParentID)}
		}
		return domain.Branch{}, fmt.Errorf("failed to create branch: %w", err)
	}
	return created, nil
}

func (r *branchRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	row := r.conn.Pool.QueryRow(ctx,
		"SELECT "+branchColumns+" FROM branches WHERE id = $1", id)

	branch, err := scanBranch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Branch{}, domain.BranchNotFoundError{BranchID: id}
		}
		return domain.Branch{}, fmt.Errorf("failed to get branch: %w", err)
	}
	return branch, nil
}

func (r *branchRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Branch, error) {
	if len(ids) == 0 {
		return []domain.Branch{}, nil
	}

	rows, err := r.conn.Pool.Query(ctx,
		"SELECT "+branchColumns+" FROM branches WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get branches by IDs: %w", err)
	}
	defer rows.Close()

	return collectBranches(rows)
}

func (r *branchRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Branch, error) {
	rows, err := r.conn.Pool.Query(ctx,
		"SELECT "+branchColumns+" FROM branches WHERE campaign_id = $1 AND deleted_at IS NULL ORDER BY created_at", campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	return collectBranches(rows)
}

func (r *branchRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx,
		"UPDATE branches SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.BranchNotFoundError{BranchID: id}
	}
	return nil
}

func collectBranches(rows pgx.Rows) ([]domain.Branch, error) {
	branches := []domain.Branch{}
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read branches: %w", err)
	}
	return branches, nil
}

func scanBranch(row pgx.Row) (domain.Branch, error) {
	var branch domain.Branch
	var parentID *uuid.UUID
	var divergedAt, deletedAt *time.Time

	err := row.Scan(&branch.ID, &branch.CampaignID, &branch.Name, &parentID, &divergedAt, &branch.CreatedAt, &deletedAt)
	if err != nil {
		return domain.Branch{}, err
	}

	branch.ParentID = parentID
	branch.DivergedAt = divergedAt
	branch.DeletedAt = deletedAt
	return branch, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

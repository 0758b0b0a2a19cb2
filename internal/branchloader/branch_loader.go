package branchloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/jakekausler/campaign-manager/internal/domain"
	"github.com/jakekausler/campaign-manager/internal/repository"
)

// BranchLoader batches branch lookups within one request so repeated
// ancestry walks over a shared tree hit the database once per branch.
type BranchLoader struct {
	Loader *dataloader.Loader
}

// NewBranchLoader builds a request-scoped loader over the branch repository.
func NewBranchLoader(repo repository.BranchRepository) *BranchLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid branch id: %w", err)}}
			}
			ids[i] = id
		}

		branches, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		branchMap := make(map[uuid.UUID]domain.Branch, len(branches))
		for _, b := range branches {
			branchMap[b.ID] = b
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if b, ok := branchMap[id]; ok {
				results[i] = &dataloader.Result{Data: b}
			} else {
				results[i] = &dataloader.Result{Error: domain.BranchNotFoundError{BranchID: id}}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(2*time.Millisecond))

	return &BranchLoader{Loader: loader}
}

// Get loads a single branch through the batcher.
func (l *BranchLoader) Get(ctx context.Context, id uuid.UUID) (domain.Branch, error) {
	thunk := l.Loader.Load(ctx, dataloader.StringKey(id.String()))
	data, err := thunk()
	if err != nil {
		return domain.Branch{}, err
	}
	branch, ok := data.(domain.Branch)
	if !ok {
		return domain.Branch{}, domain.BranchNotFoundError{BranchID: id}
	}
	return branch, nil
}

package branchloader

import "context"

type ctxKey string

const loaderKey ctxKey = "branchLoader"

// Into stores a loader on the context for the remainder of the request.
func Into(ctx context.Context, loader *BranchLoader) context.Context {
	return context.WithValue(ctx, loaderKey, loader)
}

// FromContext retrieves the request-scoped loader, or nil when none is set.
func FromContext(ctx context.Context) *BranchLoader {
	if l, ok := ctx.Value(loaderKey).(*BranchLoader); ok {
		return l
	}
	return nil
}

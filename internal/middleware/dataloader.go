package middleware

import (
	"net/http"

	"github.com/jakekausler/campaign-manager/internal/branchloader"
	"github.com/jakekausler/campaign-manager/internal/repository"
)

// DataLoaderMiddleware attaches a request-scoped branch loader to the context
func DataLoaderMiddleware(repo repository.BranchRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := branchloader.NewBranchLoader(repo)
			next.ServeHTTP(w, r.WithContext(branchloader.Into(r.Context(), loader)))
		})
	}
}

package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// WebSearch queries an external search engine.
// This is an optional service - when nil, retrieval never augments
// with web results.
type WebSearch interface {
	// Search returns up to limit results for the query.
	Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error)
}

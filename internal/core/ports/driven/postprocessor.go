package driven

import "github.com/custodia-labs/lectern/internal/core/domain"

// PageText is the cleaned text of one page handed to a Chunker.
type PageText struct {
	DocumentID string
	Scope      domain.Scope
	PageNumber int
	Text       string

	// FigureIDs lists the figures co-located on the page.
	FigureIDs []string
}

// Chunker splits a page's cleaned text into retrieval units.
// Implementations must be deterministic: the same PageText always yields
// byte-identical chunks with identical IDs.
type Chunker interface {
	// Name returns the chunker name for logging and configuration.
	Name() string

	// Chunk returns the page's chunks in position order.
	Chunk(page PageText) []domain.Chunk
}

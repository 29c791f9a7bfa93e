package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// DocumentStore persists documents and the artifacts derived from them.
// Every artifact is keyed by (document, page) or (document, chunk) so
// stages can be re-run without duplicating output.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns documents inside scope. A subject-wide scope
	// lists every lecture of the subject.
	ListDocuments(ctx context.Context, scope domain.Scope) ([]domain.Document, error)

	// DeleteDocument removes a document and every derived artifact.
	DeleteDocument(ctx context.Context, id string) error

	// DeleteDerived removes pages, regions, figures and chunks of a
	// document but keeps the document record.
	DeleteDerived(ctx context.Context, documentID string) error

	// SavePage stores or updates a page keyed by (document, number).
	SavePage(ctx context.Context, page *domain.Page) error

	// GetPages returns the pages of a document in page-number order.
	GetPages(ctx context.Context, documentID string) ([]domain.Page, error)

	// SaveRegions replaces the regions of a page.
	SaveRegions(ctx context.Context, documentID string, page int, regions []domain.Region) error

	// GetRegions returns the regions of a page in index order.
	GetRegions(ctx context.Context, documentID string, page int) ([]domain.Region, error)

	// SaveFigure stores or updates a figure keyed by ID.
	SaveFigure(ctx context.Context, figure *domain.Figure) error

	// ListFigures returns the figures of a document in page then sequence order.
	ListFigures(ctx context.Context, documentID string) ([]domain.Figure, error)

	// SaveChunks stores or updates chunks keyed by ID.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunks returns the chunks of a document in page then position order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)
}

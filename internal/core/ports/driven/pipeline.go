package driven

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Rasterizer renders pages of an uploaded document into images.
type Rasterizer interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, data []byte) (int, error)

	// RenderPage renders a single 1-based page at the given resolution
	// and returns a PNG-encoded image with its pixel dimensions.
	RenderPage(ctx context.Context, data []byte, page, dpi int) (RenderedPage, error)
}

// RenderedPage is the output of Rasterizer.RenderPage.
type RenderedPage struct {
	PNG    []byte
	Width  int
	Height int
}

// RegionClassifier labels rectangular regions of a page image.
// Implementations return raw candidates; overlap suppression, confidence
// gating and ordering are applied by the core.
type RegionClassifier interface {
	// Classify returns candidate regions for the page.
	// Model failures should wrap domain.ErrClassification.
	Classify(ctx context.Context, page domain.PageImage) ([]domain.Region, error)

	// Name identifies the classifier in logs.
	Name() string
}

// TextExtractor recognises text inside the text regions of a page.
type TextExtractor interface {
	// Extract returns one raw string per region, in the order given.
	// Model failures should wrap domain.ErrExtraction; storage and network
	// failures should wrap domain.ErrTransientIO.
	Extract(ctx context.Context, page domain.PageImage, regions []domain.Region) ([]string, error)

	// Name identifies the extractor in logs.
	Name() string
}

// FigureStore persists cropped figure images.
type FigureStore interface {
	// SaveFigure crops box out of the page image, stores it under ref
	// and returns the stored reference.
	SaveFigure(ctx context.Context, page domain.PageImage, box domain.BoundingBox, ref string) (string, error)
}

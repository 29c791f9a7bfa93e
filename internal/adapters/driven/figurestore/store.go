// Package figurestore crops figure regions out of page images and
// persists them in a blob store.
package figurestore

import (
	"context"
	"fmt"

	"github.com/custodia-labs/lectern/internal/adapters/driven/imaging"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.FigureStore = (*Store)(nil)

// Store writes PNG crops to a BlobStore.
type Store struct {
	blobs driven.BlobStore
}

// New creates a figure store over blobs.
func New(blobs driven.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// SaveFigure crops box out of the page image and stores it under ref.
// Saving the same figure twice overwrites the earlier crop.
func (s *Store) SaveFigure(ctx context.Context, page domain.PageImage, box domain.BoundingBox, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty figure reference", domain.ErrInvalidInput)
	}
	img, err := imaging.Decode(page.Data)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %v", domain.ErrExtraction, page.PageNumber, err)
	}
	crop, err := imaging.Crop(img, box)
	if err != nil {
		return "", fmt.Errorf("crop figure on page %d: %w", page.PageNumber, err)
	}
	if err := s.blobs.Put(ctx, ref, crop); err != nil {
		return "", fmt.Errorf("store figure %s: %w", ref, err)
	}
	return ref, nil
}

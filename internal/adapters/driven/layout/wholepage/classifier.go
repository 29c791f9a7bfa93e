// Package wholepage provides a classifier that treats every page as a
// single text region. It is used when no layout model is configured.
package wholepage

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Classifier implements the interface.
var _ driven.RegionClassifier = Classifier{}

// Classifier returns one full-page text region with full confidence.
type Classifier struct{}

// Classify returns the whole page as one text region.
func (Classifier) Classify(_ context.Context, page domain.PageImage) ([]domain.Region, error) {
	r := page.FullPage()
	r.Confidence = 1
	return []domain.Region{r}, nil
}

// Name identifies the classifier in logs.
func (Classifier) Name() string {
	return "wholepage"
}

package tesseract

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/testutil"
)

func TestExtractor_Defaults(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, DefaultBinary, e.binary)
	assert.Equal(t, DefaultLanguage, e.language)
	assert.Equal(t, "tesseract", e.Name())
}

func TestExtractor_MissingBinary(t *testing.T) {
	e := New(Config{Binary: "definitely-not-tesseract"})
	_, err := e.Extract(context.Background(), domain.PageImage{}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractor_BadImage(t *testing.T) {
	e := New(Config{})
	if !e.Available() {
		t.Skip("tesseract not installed")
	}
	_, err := e.Extract(context.Background(), domain.PageImage{Data: []byte("nope")}, nil)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractor_BlankRegion(t *testing.T) {
	e := New(Config{})
	if !e.Available() {
		t.Skip("tesseract not installed")
	}
	page := domain.PageImage{Data: testutil.PNG(t, 200, 100, color.White), Width: 200, Height: 100, DPI: 72}

	texts, err := e.Extract(context.Background(), page, []domain.Region{page.FullPage()})
	require.NoError(t, err)
	assert.Equal(t, []string{""}, texts)
}

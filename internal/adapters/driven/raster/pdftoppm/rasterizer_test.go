package pdftoppm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/testutil"
)

func TestRasterizer_PageCount(t *testing.T) {
	data := testutil.SlideDeck(t, []string{"One"}, []string{"Two"}, []string{"Three"})

	n, err := New("").PageCount(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRasterizer_PageCountRejectsGarbage(t *testing.T) {
	_, err := New("").PageCount(context.Background(), []byte("not a pdf"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestRasterizer_RenderPageValidation(t *testing.T) {
	_, err := New("").RenderPage(context.Background(), nil, 0, 72)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New("definitely-not-a-binary").RenderPage(context.Background(), nil, 1, 72)
	assert.Error(t, err)
}

func TestRasterizer_RenderPage(t *testing.T) {
	r := New("")
	if !r.Available() {
		t.Skip("pdftoppm not installed")
	}
	data := testutil.SlideDeck(t, []string{"One"}, []string{"Two"})

	page, err := r.RenderPage(context.Background(), data, 2, 72)
	require.NoError(t, err)
	assert.Equal(t, int(testutil.SlideWidthPt), page.Width)
	assert.Equal(t, int(testutil.SlideHeightPt), page.Height)
	assert.NotEmpty(t, page.PNG)
}

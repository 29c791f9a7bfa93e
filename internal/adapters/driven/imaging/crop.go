// Package imaging holds the page-image helpers shared by the extraction
// and figure adapters.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Decode parses a PNG page image.
func Decode(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}

// Crop cuts box out of img and returns it PNG-encoded. The box is clipped
// to the image bounds; an empty intersection is an error.
func Crop(img image.Image, box domain.BoundingBox) ([]byte, error) {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+box.X, b.Min.Y+box.Y, b.Min.X+box.X+box.W, b.Min.Y+box.Y+box.H).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: box %+v outside image", domain.ErrInvalidInput, box)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

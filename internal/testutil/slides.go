// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// Slide page geometry in points (16:9 at 10 x 5.625 inches).
const (
	SlideWidthPt  = 720.0
	SlideHeightPt = 405.0
)

// SlideDeck renders a 16:9 PDF with one page per entry. Each line of
// a page is written on its own row starting 1 inch from the top-left.
func SlideDeck(t testing.TB, pages ...[]string) []byte {
	t.Helper()

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: SlideWidthPt, Ht: SlideHeightPt},
	})
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 20)
	for _, lines := range pages {
		pdf.AddPage()
		for i, line := range lines {
			pdf.Text(72, 72+float64(i)*30, line)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("render slide deck: %v", err)
	}
	return buf.Bytes()
}

// PNG returns a w x h image filled with c, PNG-encoded.
func PNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

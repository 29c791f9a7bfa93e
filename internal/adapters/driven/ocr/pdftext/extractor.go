// Package pdftext extracts region text from the embedded text layer of the
// source PDF instead of running OCR on the page image.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// pointsPerInch converts render DPI to PDF user space.
const pointsPerInch = 72.0

// Extractor reads glyphs from the PDF text layer and assigns them to
// regions by position.
type Extractor struct {
	blobs driven.BlobStore

	// The last opened document is kept since pages of one document are
	// extracted in sequence.
	mu      sync.Mutex
	lastRef string
	lastDoc *pdf.Reader
}

// New creates an extractor reading source documents from blobs.
func New(blobs driven.BlobStore) *Extractor {
	return &Extractor{blobs: blobs}
}

// Name identifies the extractor in logs.
func (e *Extractor) Name() string {
	return "pdftext"
}

// Extract returns the text of each region, in region order.
func (e *Extractor) Extract(ctx context.Context, page domain.PageImage, regions []domain.Region) (texts []string, err error) {
	if page.SourceRef == "" {
		return nil, fmt.Errorf("%w: page %d has no source document", domain.ErrExtraction, page.PageNumber)
	}
	doc, err := e.open(ctx, page.SourceRef)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			texts, err = nil, fmt.Errorf("%w: read page %d: %v", domain.ErrExtraction, page.PageNumber, rec)
		}
	}()

	if page.PageNumber < 1 || page.PageNumber > doc.NumPage() {
		return nil, fmt.Errorf("%w: page %d out of range", domain.ErrExtraction, page.PageNumber)
	}
	p := doc.Page(page.PageNumber)
	if p.V.IsNull() {
		return nil, fmt.Errorf("%w: page %d missing", domain.ErrExtraction, page.PageNumber)
	}

	mediaW, mediaH := mediaBox(p.V)
	sx, sy := scale(page, mediaW, mediaH)

	glyphs := p.Content().Text
	texts = make([]string, len(regions))
	for i, region := range regions {
		var in []pdf.Text
		for _, g := range glyphs {
			// Glyph centre in top-left pixel space.
			cx := (g.X + g.W/2) / sx
			cy := (mediaH - g.Y - g.FontSize/3) / sy
			if inside(region.Box, cx, cy) {
				in = append(in, g)
			}
		}
		texts[i] = assemble(in)
	}
	return texts, nil
}

func (e *Extractor) open(ctx context.Context, ref string) (*pdf.Reader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRef == ref && e.lastDoc != nil {
		return e.lastDoc, nil
	}

	data, err := e.blobs.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: source %s: %v", domain.ErrExtraction, ref, err)
		}
		return nil, fmt.Errorf("load source %s: %w", ref, err)
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf %s: %v", domain.ErrExtraction, ref, err)
	}
	e.lastRef, e.lastDoc = ref, doc
	return doc, nil
}

// mediaBox returns the page size in points, walking up to inherited values.
func mediaBox(v pdf.Value) (float64, float64) {
	for node := v; !node.IsNull(); node = node.Key("Parent") {
		box := node.Key("MediaBox")
		if box.Len() == 4 {
			return box.Index(2).Float64() - box.Index(0).Float64(),
				box.Index(3).Float64() - box.Index(1).Float64()
		}
	}
	// US Letter.
	return 612, 792
}

// scale returns points per pixel on each axis.
func scale(page domain.PageImage, mediaW, mediaH float64) (float64, float64) {
	if page.Width > 0 && page.Height > 0 {
		return mediaW / float64(page.Width), mediaH / float64(page.Height)
	}
	if page.DPI > 0 {
		s := pointsPerInch / float64(page.DPI)
		return s, s
	}
	return 1, 1
}

func inside(b domain.BoundingBox, x, y float64) bool {
	return x >= float64(b.X) && x < float64(b.X+b.W) &&
		y >= float64(b.Y) && y < float64(b.Y+b.H)
}

// assemble orders glyphs into lines, top to bottom, and inserts spaces
// where the horizontal gap between glyphs suggests a word break.
func assemble(glyphs []pdf.Text) string {
	if len(glyphs) == 0 {
		return ""
	}
	sort.SliceStable(glyphs, func(i, j int) bool {
		if !sameLine(glyphs[i], glyphs[j]) {
			return glyphs[i].Y > glyphs[j].Y
		}
		return glyphs[i].X < glyphs[j].X
	})

	var b strings.Builder
	prev := glyphs[0]
	b.WriteString(prev.S)
	for _, g := range glyphs[1:] {
		switch {
		case !sameLine(prev, g):
			b.WriteByte('\n')
		case g.X-(prev.X+prev.W) > g.FontSize*0.15 && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(g.S, " "):
			b.WriteByte(' ')
		}
		b.WriteString(g.S)
		prev = g
	}
	return strings.TrimSpace(b.String())
}

func sameLine(a, b pdf.Text) bool {
	tol := math.Max(a.FontSize, b.FontSize) / 2
	return math.Abs(a.Y-b.Y) <= tol
}

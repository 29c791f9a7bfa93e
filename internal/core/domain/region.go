package domain

import "fmt"

// Label classifies a page region. It is a closed set: every switch over
// Label handles LabelText and LabelFigure explicitly.
type Label uint8

// Region labels.
const (
	LabelText Label = iota + 1
	LabelFigure
)

// String returns the wire name of the label.
func (l Label) String() string {
	switch l {
	case LabelText:
		return "text"
	case LabelFigure:
		return "figure"
	default:
		return fmt.Sprintf("label(%d)", uint8(l))
	}
}

// ParseLabel converts a wire name into a Label.
func ParseLabel(s string) (Label, error) {
	switch s {
	case "text":
		return LabelText, nil
	case "figure":
		return LabelFigure, nil
	default:
		return 0, fmt.Errorf("%w: unknown region label %q", ErrInvalidInput, s)
	}
}

// BoundingBox is an axis-aligned rectangle in page pixel coordinates.
type BoundingBox struct {
	X int
	Y int
	W int
	H int
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Intersect returns the overlapping area of two boxes.
func (b BoundingBox) Intersect(o BoundingBox) int {
	x0, y0 := max(b.X, o.X), max(b.Y, o.Y)
	x1, y1 := min(b.X+b.W, o.X+o.W), min(b.Y+b.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0)
}

// OverlapRatio returns the intersection area divided by the smaller box's area.
func (b BoundingBox) OverlapRatio(o BoundingBox) float64 {
	smaller := min(b.Area(), o.Area())
	if smaller == 0 {
		return 0
	}
	return float64(b.Intersect(o)) / float64(smaller)
}

// Clip returns the largest rectangle of b that does not intersect o: the
// full-height strip left or right of o, or the full-width strip above or
// below it. A box inside o clips to the zero box.
func (b BoundingBox) Clip(o BoundingBox) BoundingBox {
	if b.Intersect(o) == 0 {
		return b
	}
	pieces := [...]BoundingBox{
		{X: b.X, Y: b.Y, W: o.X - b.X, H: b.H},
		{X: o.X + o.W, Y: b.Y, W: b.X + b.W - (o.X + o.W), H: b.H},
		{X: b.X, Y: b.Y, W: b.W, H: o.Y - b.Y},
		{X: b.X, Y: o.Y + o.H, W: b.W, H: b.Y + b.H - (o.Y + o.H)},
	}
	var best BoundingBox
	for _, p := range pieces {
		if p.Area() > best.Area() {
			best = p
		}
	}
	return best
}

// Region is a classified rectangle on a page.
type Region struct {
	DocumentID string
	PageNumber int

	// Index is the region's position in top-to-bottom, left-to-right order.
	Index int

	Box        BoundingBox
	Label      Label
	Confidence float64
}

// PageImage is a rendered page handed to the classifier and extractor.
type PageImage struct {
	DocumentID string
	Scope      Scope
	PageNumber int

	// Ref is the blob reference of the image.
	Ref string

	// Data is the PNG-encoded image.
	Data []byte

	// Width and Height are the pixel dimensions.
	Width  int
	Height int

	// DPI is the render resolution.
	DPI int

	// SourceRef is the blob reference of the original document.
	// Extractors that read the document's text layer use it.
	SourceRef string
}

// FullPage returns a single text region covering the whole page.
func (p PageImage) FullPage() Region {
	return Region{
		DocumentID: p.DocumentID,
		PageNumber: p.PageNumber,
		Box:        BoundingBox{W: p.Width, H: p.Height},
		Label:      LabelText,
	}
}

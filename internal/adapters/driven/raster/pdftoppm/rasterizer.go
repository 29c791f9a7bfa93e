// Package pdftoppm renders PDF pages with poppler's pdftoppm and counts
// pages with a pure-Go PDF reader.
package pdftoppm

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Rasterizer implements the interface.
var _ driven.Rasterizer = (*Rasterizer)(nil)

// DefaultBinary is the pdftoppm executable looked up on PATH.
const DefaultBinary = "pdftoppm"

// Rasterizer renders PDF pages to PNG.
type Rasterizer struct {
	binary string
}

// New creates a rasterizer. An empty binary uses DefaultBinary.
func New(binary string) *Rasterizer {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Rasterizer{binary: binary}
}

// Available reports whether the pdftoppm binary can be found.
func (r *Rasterizer) Available() bool {
	_, err := exec.LookPath(r.binary)
	return err == nil
}

// PageCount returns the number of pages in the document.
func (r *Rasterizer) PageCount(_ context.Context, data []byte) (n int, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("%w: malformed pdf: %v", domain.ErrUnsupportedType, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: open pdf: %v", domain.ErrUnsupportedType, err)
	}
	return reader.NumPage(), nil
}

// RenderPage renders one 1-based page at dpi and returns the PNG.
func (r *Rasterizer) RenderPage(ctx context.Context, data []byte, page, dpi int) (driven.RenderedPage, error) {
	if page < 1 {
		return driven.RenderedPage{}, fmt.Errorf("%w: page %d", domain.ErrInvalidInput, page)
	}
	if _, err := exec.LookPath(r.binary); err != nil {
		return driven.RenderedPage{}, fmt.Errorf("%s not found in PATH: %w", r.binary, err)
	}

	dir, err := os.MkdirTemp("", "lectern-raster-*")
	if err != nil {
		return driven.RenderedPage{}, fmt.Errorf("%w: create temp dir: %v", domain.ErrTransientIO, err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return driven.RenderedPage{}, fmt.Errorf("%w: write input: %v", domain.ErrTransientIO, err)
	}

	root := filepath.Join(dir, "page")
	p := strconv.Itoa(page)
	args := []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", p,
		"-l", p,
		"-singlefile",
		input, root,
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return driven.RenderedPage{}, ctx.Err()
		}
		return driven.RenderedPage{}, fmt.Errorf("render page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.ReadFile(root + ".png")
	if err != nil {
		return driven.RenderedPage{}, fmt.Errorf("read rendered page %d: %w", page, err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return driven.RenderedPage{}, fmt.Errorf("decode rendered page %d: %w", page, err)
	}

	return driven.RenderedPage{PNG: out, Width: cfg.Width, Height: cfg.Height}, nil
}

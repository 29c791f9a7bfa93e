// Package tesseract recognises region text by running the tesseract CLI
// on cropped page images.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/custodia-labs/lectern/internal/adapters/driven/imaging"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// Defaults.
const (
	DefaultBinary   = "tesseract"
	DefaultLanguage = "eng"

	// psmBlock treats the crop as a single uniform block of text.
	psmBlock = "6"
)

// Config configures the tesseract extractor.
type Config struct {
	Binary   string
	Language string
}

// Extractor runs tesseract once per text region.
type Extractor struct {
	binary   string
	language string
}

// New creates an extractor. Zero config values use defaults.
func New(cfg Config) *Extractor {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Extractor{binary: cfg.Binary, language: cfg.Language}
}

// Name identifies the extractor in logs.
func (e *Extractor) Name() string {
	return "tesseract"
}

// Available reports whether the tesseract binary can be found.
func (e *Extractor) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

// Extract returns the recognised text of each region, in region order.
func (e *Extractor) Extract(ctx context.Context, page domain.PageImage, regions []domain.Region) ([]string, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", e.binary, err)
	}

	img, err := imaging.Decode(page.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode page %d: %v", domain.ErrExtraction, page.PageNumber, err)
	}

	texts := make([]string, len(regions))
	for i, region := range regions {
		crop, err := imaging.Crop(img, region.Box)
		if err != nil {
			continue
		}
		text, err := e.recognise(ctx, crop, page.DPI)
		if err != nil {
			return nil, err
		}
		texts[i] = text
	}
	return texts, nil
}

func (e *Extractor) recognise(ctx context.Context, crop []byte, dpi int) (string, error) {
	args := []string{"stdin", "stdout", "-l", e.language, "--psm", psmBlock}
	if dpi > 0 {
		args = append(args, "--dpi", strconv.Itoa(dpi))
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = bytes.NewReader(crop)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: tesseract: %v: %s", domain.ErrExtraction, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

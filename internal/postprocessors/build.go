// Package postprocessors builds the chunkers that turn cleaned page text
// into retrieval units.
package postprocessors

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/postprocessors/chunker"
)

// DefaultChunker is used when no chunker is named.
const DefaultChunker = "chunker"

// Settings are chunker options as decoded from config. Numbers may arrive
// as int, int64 or float64 depending on the decoder.
type Settings map[string]any

type builder func(Settings) (driven.Chunker, error)

var builders = map[string]builder{
	DefaultChunker: sentenceChunker,
}

// Build returns the chunker registered under name.
func Build(name string, s Settings) (driven.Chunker, error) {
	if name == "" {
		name = DefaultChunker
	}
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown chunker %q (have %v)", domain.ErrInvalidInput, name, Available())
	}
	return build(s)
}

// Available lists the registered chunker names in order.
func Available() []string {
	return slices.Sorted(maps.Keys(builders))
}

// sentenceChunker reads max_words and heading_words. Zero keeps the
// chunker's own default.
func sentenceChunker(s Settings) (driven.Chunker, error) {
	maxWords, err := s.count("max_words")
	if err != nil {
		return nil, err
	}
	headingWords, err := s.count("heading_words")
	if err != nil {
		return nil, err
	}

	var opts []chunker.Option
	if maxWords > 0 {
		opts = append(opts, chunker.WithMaxWords(maxWords))
	}
	if headingWords > 0 {
		opts = append(opts, chunker.WithHeadingWords(headingWords))
	}
	return chunker.New(opts...), nil
}

// count reads a non-negative whole number. A missing key reads as zero.
func (s Settings) count(key string) (int, error) {
	var n int
	switch v := s[key].(type) {
	case nil:
		return 0, nil
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: chunker %s must be a whole number, got %v", domain.ErrInvalidInput, key, v)
		}
		n = int(v)
	default:
		return 0, fmt.Errorf("%w: chunker %s must be a number, got %T", domain.ErrInvalidInput, key, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: chunker %s must not be negative", domain.ErrInvalidInput, key)
	}
	return n, nil
}

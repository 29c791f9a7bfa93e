// Package chunker splits cleaned page text into retrieval units.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/normalisers/slidetext"
)

// Ensure Processor implements the interface.
var _ driven.Chunker = (*Processor)(nil)

// DefaultMaxWords is the default maximum number of words per chunk.
const DefaultMaxWords = 220

// DefaultHeadingWords is the longest single line still treated as a heading.
const DefaultHeadingWords = 12

// namespace seeds deterministic chunk IDs.
var namespace = uuid.MustParse("6f1c52a4-3d0e-5b8e-9a61-0c2f4e7d8b13")

// Processor splits page text on paragraph boundaries, then on sentence
// boundaries for paragraphs longer than the word limit.
type Processor struct {
	maxWords     int
	headingWords int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxWords sets the maximum words per chunk.
func WithMaxWords(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxWords = n
		}
	}
}

// WithHeadingWords sets the longest line treated as a heading.
func WithHeadingWords(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.headingWords = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxWords:     DefaultMaxWords,
		headingWords: DefaultHeadingWords,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkID returns the deterministic ID of the chunk at position on page.
func ChunkID(documentID string, page, position int) string {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%s/%d/%d", documentID, page, position))).String()
}

// Chunk splits the page text into chunks.
func (p *Processor) Chunk(page driven.PageText) []domain.Chunk {
	var chunks []domain.Chunk
	for _, para := range strings.Split(strings.ReplaceAll(page.Text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		kind := p.kindOf(para)
		for _, piece := range p.split(para, kind) {
			position := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:         ChunkID(page.DocumentID, page.PageNumber, position),
				DocumentID: page.DocumentID,
				Scope:      page.Scope,
				PageNumber: page.PageNumber,
				Position:   position,
				Content:    piece,
				WordCount:  len(strings.Fields(piece)),
				Kind:       kind,
				FigureIDs:  append([]string(nil), page.FigureIDs...),
			})
		}
	}
	return chunks
}

// kindOf tags a paragraph as list, heading or paragraph.
func (p *Processor) kindOf(para string) domain.ChunkKind {
	lines := strings.Split(para, "\n")
	allItems := true
	for _, line := range lines {
		if !slidetext.IsListItem(line) {
			allItems = false
			break
		}
	}
	if allItems {
		return domain.ChunkList
	}
	if len(lines) == 1 {
		words := len(strings.Fields(para))
		last, _ := lastRune(para)
		if words <= p.headingWords && !strings.ContainsRune(".!?;", last) {
			return domain.ChunkHeading
		}
	}
	return domain.ChunkParagraph
}

// split packs sentences (or list items) into pieces of at most maxWords.
// A single sentence longer than the limit is kept whole.
func (p *Processor) split(para string, kind domain.ChunkKind) []string {
	if len(strings.Fields(para)) <= p.maxWords {
		return []string{para}
	}

	sep := " "
	var units []string
	if kind == domain.ChunkList {
		sep = "\n"
		units = strings.Split(para, "\n")
	} else {
		units = Sentences(strings.Join(strings.Fields(para), " "))
	}

	var pieces []string
	var cur []string
	words := 0
	for _, u := range units {
		n := len(strings.Fields(u))
		if words > 0 && words+n > p.maxWords {
			pieces = append(pieces, strings.Join(cur, sep))
			cur, words = nil, 0
		}
		cur = append(cur, u)
		words += n
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, sep))
	}
	return pieces
}

// Sentences splits text after '.', '!' or '?' followed by whitespace.
// Closing quotes and brackets stay with their sentence.
func Sentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !strings.ContainsRune(".!?", runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && strings.ContainsRune("\"')]”’", runes[end]) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
		i = end - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func lastRune(s string) (rune, bool) {
	r := []rune(s)
	if len(r) == 0 {
		return 0, false
	}
	return r[len(r)-1], true
}

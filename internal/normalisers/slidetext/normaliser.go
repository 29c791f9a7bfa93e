// Package slidetext cleans text recognised on lecture slides.
//
// Cleaning runs in three passes: words hyphenated across a line break are
// joined, lines repeated on most pages of a deck (headers, footers, slide
// numbers) are dropped, and whitespace inside paragraphs and list items is
// collapsed. Each page's regions are then joined with blank lines.
package slidetext

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.TextNormaliser = (*Normaliser)(nil)

// DefaultBoilerplateRatio is the share of pages a line must appear on
// to be treated as boilerplate.
const DefaultBoilerplateRatio = 0.6

// DefaultMinPages is the smallest deck on which boilerplate is detected.
const DefaultMinPages = 3

var hyphenBreak = regexp.MustCompile(`(\p{L})-[ \t]*\r?\n[ \t]*(\p{Ll})`)

// Normaliser implements driven.TextNormaliser for slide decks.
type Normaliser struct {
	ratio    float64
	minPages int
}

// Option configures the normaliser.
type Option func(*Normaliser)

// WithBoilerplateRatio sets the page share above which a line is boilerplate.
func WithBoilerplateRatio(r float64) Option {
	return func(n *Normaliser) {
		if r > 0 && r <= 1 {
			n.ratio = r
		}
	}
}

// WithMinPages sets the smallest deck on which boilerplate is stripped.
func WithMinPages(p int) Option {
	return func(n *Normaliser) {
		if p > 0 {
			n.minPages = p
		}
	}
}

// New creates a slide text normaliser.
func New(opts ...Option) *Normaliser {
	n := &Normaliser{ratio: DefaultBoilerplateRatio, minPages: DefaultMinPages}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the normaliser name.
func (n *Normaliser) Name() string {
	return "slidetext"
}

// Normalise returns one cleaned text per page.
func (n *Normaliser) Normalise(pages [][]string) []string {
	dehyphenated := make([][]string, len(pages))
	for i, regions := range pages {
		dehyphenated[i] = make([]string, len(regions))
		for j, text := range regions {
			dehyphenated[i][j] = Dehyphenate(text)
		}
	}

	boilerplate := n.boilerplate(dehyphenated)

	out := make([]string, len(pages))
	for i, regions := range dehyphenated {
		var parts []string
		for _, text := range regions {
			if cleaned := cleanRegion(text, boilerplate); cleaned != "" {
				parts = append(parts, cleaned)
			}
		}
		out[i] = strings.Join(parts, "\n\n")
	}
	return out
}

// Dehyphenate joins words split by a hyphen at a line break.
// Only a lowercase continuation is joined so "Ethernet-\nBased" stays intact.
func Dehyphenate(text string) string {
	return hyphenBreak.ReplaceAllString(text, "$1$2")
}

// boilerplate returns the keys of lines present on at least ratio of the pages.
func (n *Normaliser) boilerplate(pages [][]string) map[string]bool {
	if len(pages) < n.minPages {
		return nil
	}

	counts := make(map[string]int)
	for _, regions := range pages {
		seen := make(map[string]bool)
		for _, text := range regions {
			for _, line := range strings.Split(text, "\n") {
				if key := LineKey(line); key != "" && !seen[key] {
					seen[key] = true
					counts[key]++
				}
			}
		}
	}

	threshold := n.ratio * float64(len(pages))
	out := make(map[string]bool)
	for key, c := range counts {
		if float64(c) >= threshold {
			out[key] = true
		}
	}
	return out
}

// LineKey folds a line for repetition matching: case-folded, digits
// replaced by '#', whitespace collapsed. "Slide 3 of 20" and
// "slide 4 of 20" share the key "slide # of ##".
func LineKey(line string) string {
	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(line), " ") {
		if unicode.IsDigit(r) {
			b.WriteByte('#')
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// cleanRegion drops boilerplate lines and rebuilds paragraphs and lists.
// Blank lines separate blocks; inside a block, list items keep their own
// line and other lines are joined with single spaces.
func cleanRegion(text string, boilerplate map[string]bool) string {
	var blocks []string
	var para []string
	var list []string

	flushPara := func() {
		if len(para) > 0 {
			blocks = append(blocks, strings.Join(para, " "))
			para = nil
		}
	}
	flushList := func() {
		if len(list) > 0 {
			blocks = append(blocks, strings.Join(list, "\n"))
			list = nil
		}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.Join(strings.Fields(raw), " ")
		if line == "" {
			flushPara()
			flushList()
			continue
		}
		if boilerplate[LineKey(line)] {
			continue
		}

		switch {
		case IsListItem(line):
			flushPara()
			list = append(list, line)
		case len(list) > 0 && startsLower(line):
			// Wrapped continuation of the previous item.
			list[len(list)-1] += " " + line
		default:
			flushList()
			para = append(para, line)
		}
	}
	flushPara()
	flushList()

	return strings.Join(blocks, "\n\n")
}

// IsListItem reports whether a line starts with a bullet or an enumerator
// such as "1." , "2)" or "a)".
func IsListItem(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	r := []rune(line)
	switch r[0] {
	case '-', '*', '•', '◦', '▪', '‣', '–', '·':
		return len(r) > 1 && unicode.IsSpace(r[1])
	}

	i := 0
	for i < len(r) && unicode.IsDigit(r[i]) {
		i++
	}
	if i == 0 && len(r) > 1 && unicode.IsLetter(r[0]) && r[1] == ')' {
		i = 1
	}
	if i == 0 || i > 3 || i+1 >= len(r) {
		return false
	}
	return (r[i] == '.' || r[i] == ')') && unicode.IsSpace(r[i+1])
}

func startsLower(line string) bool {
	for _, r := range line {
		return unicode.IsLower(r)
	}
	return false
}

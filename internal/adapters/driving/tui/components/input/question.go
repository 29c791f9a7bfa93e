// Package input holds the question box of the ask view.
package input

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
)

const (
	maxQuestionLen = 1000
	maxHistory     = 50
	labelWidth     = 10
	minFieldWidth  = 20
)

// Question is a single-line question box. It remembers the questions asked
// in this session; up and down step through them while it has focus.
type Question struct {
	field  textinput.Model
	styles *styles.Styles
	width  int

	history []string
	// recall indexes history; len(history) means the unsent draft.
	recall int
	draft  string
}

// NewQuestion returns a focused question box.
func NewQuestion(s *styles.Styles) *Question {
	if s == nil {
		s = styles.DefaultStyles()
	}
	f := textinput.New()
	f.Placeholder = "Ask about this lecture..."
	f.CharLimit = maxQuestionLen
	f.Width = 50
	f.Focus()
	return &Question{field: f, styles: s, width: 50}
}

// Init starts the cursor blink.
func (q *Question) Init() tea.Cmd {
	return textinput.Blink
}

// Update edits the text or walks the history.
func (q *Question) Update(msg tea.Msg) (*Question, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && q.field.Focused() {
		switch k.Type {
		case tea.KeyUp:
			q.step(-1)
			return q, nil
		case tea.KeyDown:
			q.step(1)
			return q, nil
		}
	}
	var cmd tea.Cmd
	q.field, cmd = q.field.Update(msg)
	return q, cmd
}

func (q *Question) step(delta int) {
	next := q.recall + delta
	if next < 0 || next > len(q.history) {
		return
	}
	if q.recall == len(q.history) {
		q.draft = q.field.Value()
	}
	q.recall = next
	if next == len(q.history) {
		q.field.SetValue(q.draft)
	} else {
		q.field.SetValue(q.history[next])
	}
	q.field.CursorEnd()
}

// Remember appends an asked question to the history. A repeat of the most
// recent entry is not stored twice.
func (q *Question) Remember(question string) {
	if question == "" {
		return
	}
	if n := len(q.history); n == 0 || q.history[n-1] != question {
		q.history = append(q.history, question)
		if len(q.history) > maxHistory {
			q.history = q.history[len(q.history)-maxHistory:]
		}
	}
	q.recall = len(q.history)
	q.draft = ""
}

// History returns the remembered questions, oldest first.
func (q *Question) History() []string {
	return append([]string(nil), q.history...)
}

// View renders the label, the field and a counter once the text nears the
// length limit.
func (q *Question) View() string {
	parts := []string{
		q.styles.Title.Render("Ask: "),
		q.styles.InputField.Render(q.field.View()),
	}
	if n := len([]rune(q.field.Value())); n > maxQuestionLen*9/10 {
		parts = append(parts, q.styles.Warning.Render(fmt.Sprintf(" %d/%d", n, maxQuestionLen)))
	}
	//nolint:misspell // lipgloss.Center is the library's spelling
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

// Value returns the current text.
func (q *Question) Value() string { return q.field.Value() }

// SetValue replaces the current text.
func (q *Question) SetValue(value string) { q.field.SetValue(value) }

// Focus gives the box keyboard focus.
func (q *Question) Focus() tea.Cmd { return q.field.Focus() }

// Blur removes focus.
func (q *Question) Blur() { q.field.Blur() }

// Focused reports whether the box has focus.
func (q *Question) Focused() bool { return q.field.Focused() }

// SetWidth sizes the box, leaving room for the label.
func (q *Question) SetWidth(width int) {
	q.width = width
	q.field.Width = max(width-labelWidth, minFieldWidth)
}

// Width returns the width last set.
func (q *Question) Width() int { return q.width }

// Reset clears the text and returns to the draft position.
func (q *Question) Reset() {
	q.field.Reset()
	q.recall = len(q.history)
	q.draft = ""
}

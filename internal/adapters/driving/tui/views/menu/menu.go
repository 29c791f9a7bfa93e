// Package menu is the TUI's home screen: the selected lecture and the
// screens reachable from it.
package menu

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// entry is one destination.
type entry struct {
	label  string
	hint   string
	target messages.ViewType
	quit   bool
}

var entries = []entry{
	{label: "Ask a question", hint: "answers cite the slides they come from", target: messages.ViewAsk},
	{label: "Ingestion jobs", hint: "progress of submitted decks", target: messages.ViewJobs},
	{label: "Documents", hint: "decks indexed for this lecture", target: messages.ViewDocuments},
	{label: "Help", hint: "every key binding", target: messages.ViewHelp},
	{label: "Quit", quit: true},
}

// View is the home screen.
type View struct {
	styles *styles.Styles
	keys   *keymap.KeyMap
	scope  domain.Scope

	cursor int
	width  int
	height int
	sized  bool
}

// NewView creates the home screen for scope.
func NewView(s *styles.Styles, scope domain.Scope) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{styles: s, keys: keymap.DefaultKeyMap(), scope: scope}
}

// Init implements tea.Model.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update moves the cursor, which wraps at both ends, and opens entries by
// enter or by their number.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keys.Up):
			v.cursor = (v.cursor + len(entries) - 1) % len(entries)
		case key.Matches(msg, v.keys.Down):
			v.cursor = (v.cursor + 1) % len(entries)
		case key.Matches(msg, v.keys.Quit):
			return v, tea.Quit
		case msg.Type == tea.KeyEnter:
			return v, open(entries[v.cursor])
		case msg.Type == tea.KeyRunes && len(msg.Runes) == 1:
			if n := int(msg.Runes[0] - '1'); n >= 0 && n < len(entries) {
				v.cursor = n
				return v, open(entries[n])
			}
		}
	}
	return v, nil
}

func open(e entry) tea.Cmd {
	if e.quit {
		return tea.Quit
	}
	return func() tea.Msg { return messages.ViewChanged{View: e.target} }
}

// View renders the screen.
func (v *View) View() string {
	if !v.sized {
		return "Initialising..."
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render("Lectern"))
	b.WriteString("  ")
	b.WriteString(v.styles.Subtitle.Render(v.scope.String()))
	b.WriteString("\n\n")

	for i, e := range entries {
		line := fmt.Sprintf("%d  %s", i+1, e.label)
		if i == v.cursor {
			b.WriteString(v.styles.Selected.Render("› " + line))
			if e.hint != "" {
				b.WriteString(v.styles.Muted.Render("   " + e.hint))
			}
		} else {
			b.WriteString(v.styles.Normal.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("↑/↓ move · enter or 1-5 open · q quit"))
	return b.String()
}

// SetDimensions records the terminal size.
func (v *View) SetDimensions(width, height int) {
	v.width, v.height = width, height
	v.sized = true
}

// Selected returns the cursor position.
func (v *View) Selected() int {
	return v.cursor
}

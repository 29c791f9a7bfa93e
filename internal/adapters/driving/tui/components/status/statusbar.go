// Package status provides status bar components for the TUI.
package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// State represents the current application state for display.
type State string

const (
	StateReady    State = "ready"
	StateAsking   State = "asking"
	StateAnswered State = "answered"
	StateError    State = "error"
)

// Bar displays the active scope, question options and keybinding hints.
type Bar struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	state   State
	message string
	scope   domain.Scope
	web     bool
	widen   bool
	width   int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		state:  StateReady,
		width:  80,
	}
}

// Init initialises the status bar.
func (b *Bar) Init() tea.Cmd {
	return nil
}

// Update is a no-op; the bar is driven through its setters.
func (b *Bar) Update(_ tea.Msg) (*Bar, tea.Cmd) {
	return b, nil
}

// View renders the status bar.
func (b *Bar) View() string {
	left := b.renderLeft()
	right := b.renderRight()

	padding := b.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return b.styles.StatusBar.Width(b.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (b *Bar) renderLeft() string {
	parts := []string{b.styles.Normal.Render(b.scopeLabel())}
	if b.web {
		parts = append(parts, b.styles.WebMarker.Render("web"))
	}

	switch b.state {
	case StateAsking:
		parts = append(parts, b.styles.Muted.Render("Thinking..."))
	case StateError:
		msg := "Error"
		if b.message != "" {
			msg = fmt.Sprintf("Error: %s", b.message)
		}
		parts = append(parts, b.styles.Error.Render(msg))
	case StateReady, StateAnswered:
		if b.message != "" {
			parts = append(parts, b.styles.Muted.Render(b.message))
		}
	}
	return strings.Join(parts, "  ")
}

func (b *Bar) scopeLabel() string {
	if b.scope.Subject == "" {
		return "no scope"
	}
	if b.widen {
		return b.scope.Widen().String()
	}
	return b.scope.String()
}

func (b *Bar) renderRight() string {
	var bindings []key.Binding
	if b.state == StateAnswered {
		bindings = b.keymap.AnswerHelp()
	} else {
		bindings = b.keymap.ShortHelp()
	}

	return b.styles.Muted.Render(keymap.Hint(" · ", bindings...))
}

// SetState sets the current state.
func (b *Bar) SetState(state State) {
	b.state = state
}

// State returns the current state.
func (b *Bar) State() State {
	return b.state
}

// SetMessage sets a custom message.
func (b *Bar) SetMessage(message string) {
	b.message = message
}

// Message returns the current message.
func (b *Bar) Message() string {
	return b.message
}

// SetScope sets the scope questions are asked in.
func (b *Bar) SetScope(scope domain.Scope) {
	b.scope = scope
}

// SetOptions records the web and widen toggles.
func (b *Bar) SetOptions(web, widen bool) {
	b.web = web
	b.widen = widen
}

// SetWidth sets the status bar width.
func (b *Bar) SetWidth(width int) {
	b.width = width
}

// Clear resets the status bar to its ready state.
func (b *Bar) Clear() {
	b.state = StateReady
	b.message = ""
}

// Package keymap holds the TUI key bindings.
package keymap

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

var _ help.KeyMap = (*KeyMap)(nil)

// KeyMap groups the bindings by where they apply.
type KeyMap struct {
	Quit key.Binding
	Help key.Binding
	// Back returns to the menu.
	Back key.Binding

	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding

	Ask         key.Binding
	NewQuestion key.Binding
	// ToggleWeb forces web augmentation for the next question.
	ToggleWeb key.Binding
	// ToggleWiden searches every lecture of the subject.
	ToggleWiden key.Binding

	CancelJob key.Binding
	// Delete asks before removing everything stored for the scope;
	// Confirm answers that prompt.
	Delete  key.Binding
	Confirm key.Binding
}

var arrows = strings.NewReplacer("up", "↑", "down", "↓")

// bind labels the binding with its keys, arrows drawn as glyphs.
func bind(desc string, keys ...string) key.Binding {
	shown := make([]string, len(keys))
	for i, k := range keys {
		shown[i] = arrows.Replace(k)
	}
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(strings.Join(shown, "/"), desc))
}

// DefaultKeyMap returns the built-in bindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: bind("quit", "q", "ctrl+c"),
		Help: bind("help", "?"),
		Back: bind("back", "esc"),

		Up:      bind("up", "up", "k"),
		Down:    bind("down", "down", "j"),
		Refresh: bind("refresh", "r"),

		Ask:         bind("ask", "enter"),
		NewQuestion: bind("new question", "n"),
		ToggleWeb:   bind("web", "ctrl+w"),
		ToggleWiden: bind("whole subject", "ctrl+s"),

		CancelJob: bind("cancel job", "c"),
		Delete:    bind("delete scope", "d"),
		Confirm:   bind("confirm", "y"),
	}
}

// ShortHelp is shown while a question is being typed.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Ask, k.ToggleWeb, k.ToggleWiden, k.Back}
}

// AnswerHelp is shown under a composed answer.
func (k *KeyMap) AnswerHelp() []key.Binding {
	return []key.Binding{k.NewQuestion, k.Up, k.Down, k.Back}
}

// JobHelp is shown under the job list.
func (k *KeyMap) JobHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.CancelJob, k.Back}
}

// DocumentHelp is shown under the document list.
func (k *KeyMap) DocumentHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Delete, k.Back}
}

// FullHelp lists every binding, one column per context.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Ask, k.NewQuestion},
		{k.ToggleWeb, k.ToggleWiden},
		{k.Refresh, k.CancelJob, k.Delete, k.Confirm},
		{k.Back, k.Help, k.Quit},
	}
}

// Hint renders bindings as "key desc" pairs separated by sep.
func Hint(sep string, bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, sep)
}

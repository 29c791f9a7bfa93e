// Package ask provides the question and answer view for the TUI.
package ask

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ErrNoAskService indicates that no ask service was provided.
var ErrNoAskService = errors.New("ask service is required")

// View shows a question input, the composed answer and its sources.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.Question
	answer    viewport.Model
	sources   *list.SourceList
	statusbar *status.Bar

	askService driving.AskService
	ctx        context.Context
	scope      domain.Scope

	web   bool
	widen bool
	topK  int

	question string
	result   *domain.Answer

	width      int
	height     int
	ready      bool
	err        error
	focusInput bool
}

// NewView creates an ask view bound to scope.
func NewView(s *styles.Styles, km *keymap.KeyMap, askService driving.AskService, scope domain.Scope) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	bar := status.NewBar(s, km)
	bar.SetScope(scope)

	return &View{
		styles:     s,
		keymap:     km,
		input:      input.NewQuestion(s),
		answer:     viewport.New(80, 10),
		sources:    list.NewSourceList(s),
		statusbar:  bar,
		askService: askService,
		ctx:        context.Background(),
		scope:      scope,
		topK:       domain.DefaultTopK,
		width:      80,
		height:     24,
		focusInput: true,
	}
}

// WithContext sets the context questions are asked with.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// WithTopK sets the number of indexed chunks retrieved per question.
func (v *View) WithTopK(k int) *View {
	if k > 0 {
		v.topK = k
	}
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the ask view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if key.Matches(msg, v.keymap.Back) {
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}

	switch {
	case key.Matches(msg, v.keymap.ToggleWeb):
		v.web = !v.web
		v.statusbar.SetOptions(v.web, v.widen)
		return v, nil
	case key.Matches(msg, v.keymap.ToggleWiden):
		v.widen = !v.widen
		v.statusbar.SetOptions(v.web, v.widen)
		return v, nil
	}

	if v.focusInput {
		if key.Matches(msg, v.keymap.Ask) {
			question := strings.TrimSpace(v.input.Value())
			if question == "" {
				return v, nil
			}
			v.question = question
			v.input.Remember(question)
			v.focusInput = false
			v.input.Blur()
			v.statusbar.SetState(status.StateAsking)
			return v, v.ask(question)
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}

	switch {
	case key.Matches(msg, v.keymap.NewQuestion):
		v.focusInput = true
		v.input.SetValue("")
		v.statusbar.Clear()
		return v, v.input.Focus()
	case key.Matches(msg, v.keymap.Up, v.keymap.Down):
		v.sources, _ = v.sources.Update(msg)
		return v, nil
	}

	var cmd tea.Cmd
	v.answer, cmd = v.answer.Update(msg)
	return v, cmd
}

// ask returns a command that composes an answer off the UI goroutine.
func (v *View) ask(question string) tea.Cmd {
	opts := domain.AskOptions{UseWeb: v.web, WidenToSubject: v.widen, TopK: v.topK}
	ctx, scope, svc := v.ctx, v.scope, v.askService
	return func() tea.Msg {
		if svc == nil {
			return messages.ErrorOccurred{Err: ErrNoAskService}
		}
		answer, err := svc.Ask(ctx, scope, question, opts)
		return messages.AnswerReceived{Question: question, Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	if msg.Err != nil {
		v.setError(msg.Err)
		return
	}

	v.err = nil
	v.result = msg.Answer
	v.focusInput = false
	v.input.Blur()

	if msg.Answer == nil {
		v.answer.SetContent("")
		v.sources.SetSources(nil)
		v.statusbar.SetState(status.StateAnswered)
		return
	}

	v.answer.SetContent(v.renderAnswer(msg.Answer))
	v.answer.GotoTop()
	v.sources.SetSources(msg.Answer.Sources)
	v.statusbar.SetState(status.StateAnswered)
	if msg.Answer.Unavailable {
		v.statusbar.SetMessage("Answer unavailable")
	} else {
		v.statusbar.SetMessage("")
	}
}

func (v *View) setError(err error) {
	v.err = err
	v.focusInput = true
	v.input.Focus()
	v.statusbar.SetState(status.StateError)
	v.statusbar.SetMessage(err.Error())
}

func (v *View) renderAnswer(answer *domain.Answer) string {
	text := lipgloss.NewStyle().Width(v.answer.Width).Render(answer.Text)
	if answer.Unavailable {
		return v.styles.Warning.Render(text)
	}
	return v.styles.Normal.Render(text)
}

// View renders the ask view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 10)
	sections = append(sections, v.styles.Title.Render("Lectern"), "", v.input.View(), "")

	if v.err != nil {
		sections = append(sections, v.styles.Error.Render("Error: "+v.err.Error()), "")
	}

	if v.result != nil {
		sections = append(sections,
			v.styles.Subtitle.Render(v.question),
			v.styles.Answer.Render(v.answer.View()),
			"",
			v.sources.View(),
		)
	}

	sections = append(sections, "", v.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	answerHeight := height - 16
	if answerHeight < 3 {
		answerHeight = 3
	}
	v.input.SetWidth(width)
	v.answer.Width = width - 4
	v.answer.Height = answerHeight
	v.sources.SetDimensions(width, 6)
	v.statusbar.SetWidth(width)
	if v.result != nil {
		v.answer.SetContent(v.renderAnswer(v.result))
	}
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Question returns the text in the input.
func (v *View) Question() string {
	return v.input.Value()
}

// SetQuestion sets the text in the input.
func (v *View) SetQuestion(q string) {
	v.input.SetValue(q)
}

// Answer returns the last answer received.
func (v *View) Answer() *domain.Answer {
	return v.result
}

// Options returns the current web and widen toggles.
func (v *View) Options() (web, widen bool) {
	return v.web, v.widen
}

// Err returns the current error, if any.
func (v *View) Err() error {
	return v.err
}

// InputFocused returns whether the input has focus.
func (v *View) InputFocused() bool {
	return v.focusInput
}

// Reset returns the view to an empty question.
func (v *View) Reset() {
	v.focusInput = true
	v.input.Focus()
	v.input.SetValue("")
	v.result = nil
	v.question = ""
	v.sources.SetSources(nil)
	v.err = nil
	v.statusbar.Clear()
}

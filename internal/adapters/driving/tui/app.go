package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/views/ask"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/views/documents"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/views/jobs"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/views/menu"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// App is the main TUI application following the Elm architecture.
// It implements tea.Model for use with Bubbletea.
type App struct {
	ports  *Ports
	ctx    context.Context
	scope  domain.Scope
	styles *styles.Styles
	keys   *keymap.KeyMap
	help   help.Model

	menuView      *menu.View
	askView       *ask.View
	jobsView      *jobs.View
	documentsView *documents.View

	currentView messages.ViewType
	err         error

	width  int
	height int
	ready  bool
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates a TUI bound to a lecture scope.
func NewApp(ports *Ports, scope domain.Scope) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	km := keymap.DefaultKeyMap()

	h := help.New()
	h.ShowAll = true
	h.FullSeparator = "    "
	h.Styles.FullKey = s.Selected
	h.Styles.FullDesc = s.Normal

	return &App{
		ports:         ports,
		ctx:           context.Background(),
		scope:         scope,
		styles:        s,
		keys:          km,
		help:          h,
		menuView:      menu.NewView(s, scope),
		askView:       ask.NewView(s, km, ports.Ask, scope),
		jobsView:      jobs.NewView(s, ports.Ingestion, scope),
		documentsView: documents.NewView(s, ports.Ingestion, scope),
		currentView:   messages.ViewMenu,
	}, nil
}

// WithContext sets the context for the app and its views.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.askView.WithContext(ctx)
	a.jobsView.WithContext(ctx)
	a.documentsView.WithContext(ctx)
	return a
}

// WithTopK sets the number of chunks retrieved per question.
func (a *App) WithTopK(k int) *App {
	a.askView.WithTopK(k)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.SetWindowTitle("lectern - " + a.scope.String())
}

// Update implements tea.Model.
//
//nolint:gocyclo // central message handler
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC:
			return a, tea.Quit
		case a.currentView == messages.ViewHelp:
			if key.Matches(msg, a.keys.Back) {
				a.currentView = messages.ViewMenu
			}
			return a, nil
		case a.currentView == messages.ViewMenu && key.Matches(msg, a.keys.Help):
			a.currentView = messages.ViewHelp
			return a, nil
		}
		return a, a.forward(msg)

	case messages.ViewChanged:
		a.currentView = msg.View
		switch msg.View {
		case messages.ViewAsk:
			a.askView.Reset()
			return a, a.askView.Init()
		case messages.ViewJobs:
			return a, a.jobsView.Init()
		case messages.ViewDocuments:
			return a, a.documentsView.Init()
		case messages.ViewMenu, messages.ViewHelp:
		}
		return a, nil

	case messages.AnswerReceived:
		a.askView, cmd = a.askView.Update(msg)
		a.err = msg.Err
		return a, cmd

	case messages.JobsTick:
		// The ticker stops once the jobs view is left.
		if a.currentView != messages.ViewJobs {
			return a, nil
		}
		a.jobsView, cmd = a.jobsView.Update(msg)
		return a, cmd

	case messages.JobsLoaded, messages.JobCancelled:
		a.jobsView, cmd = a.jobsView.Update(msg)
		return a, cmd

	case messages.DocumentsLoaded, messages.ScopeDeleted:
		a.documentsView, cmd = a.documentsView.Update(msg)
		return a, cmd

	case messages.ErrorOccurred:
		a.err = msg.Err
		return a, a.forward(msg)

	case messages.Quit:
		return a, tea.Quit
	}

	return a, a.forward(msg)
}

// forward hands msg to the active view.
func (a *App) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.currentView {
	case messages.ViewMenu:
		a.menuView, cmd = a.menuView.Update(msg)
	case messages.ViewAsk:
		a.askView, cmd = a.askView.Update(msg)
	case messages.ViewJobs:
		a.jobsView, cmd = a.jobsView.Update(msg)
	case messages.ViewDocuments:
		a.documentsView, cmd = a.documentsView.Update(msg)
	case messages.ViewHelp:
	}
	return cmd
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	switch a.currentView {
	case messages.ViewAsk:
		return a.askView.View()
	case messages.ViewJobs:
		return a.jobsView.View()
	case messages.ViewDocuments:
		return a.documentsView.View()
	case messages.ViewHelp:
		return a.viewHelp()
	default:
		return a.menuView.View()
	}
}

func (a *App) viewHelp() string {
	a.help.Width = a.width
	return a.styles.Title.Render("Keys") + "\n\n" +
		a.help.View(a.keys) + "\n\n" +
		a.styles.Help.Render("Type a question in the ask view; answers cite [page N] or [web]. " +
			keymap.Hint(" · ", a.keys.Back))
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx))
	_, err := p.Run()
	return err
}

// CurrentView returns the current view type.
func (a *App) CurrentView() messages.ViewType {
	return a.currentView
}

// Scope returns the scope the app is bound to.
func (a *App) Scope() domain.Scope {
	return a.scope
}

// Err returns the last error that occurred.
func (a *App) Err() error {
	return a.err
}

// Ready returns whether the app has been initialised.
func (a *App) Ready() bool {
	return a.ready
}

// SetDimensions sets the terminal dimensions on the app and every view.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true
	a.menuView.SetDimensions(width, height)
	a.askView.SetDimensions(width, height)
	a.jobsView.SetDimensions(width, height)
	a.documentsView.SetDimensions(width, height)
}

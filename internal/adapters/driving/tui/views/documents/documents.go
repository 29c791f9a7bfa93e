// Package documents lists the decks of a lecture and can wipe the lecture's
// data.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ErrNoIngestionService indicates that no ingestion service was provided.
var ErrNoIngestionService = errors.New("ingestion service is required")

const (
	pagesWidth    = 5
	uploadedWidth = 16
	minColumn     = 10
	// title, blank line, notice and help
	chromeLines = 6
)

// View is a table of the scope's documents.
type View struct {
	styles    *styles.Styles
	keys      *keymap.KeyMap
	ingestion driving.IngestionService
	ctx       context.Context
	scope     domain.Scope

	documents  []domain.Document
	table      table.Model
	loading    bool
	confirming bool
	notice     string
	err        error

	width  int
	height int
}

// NewView creates a documents view for scope.
func NewView(s *styles.Styles, ingestion driving.IngestionService, scope domain.Scope) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}

	ts := table.DefaultStyles()
	ts.Header = ts.Header.Foreground(s.Muted.GetForeground()).Bold(true)
	ts.Selected = s.Selected

	v := &View{
		styles:    s,
		keys:      keymap.DefaultKeyMap(),
		ingestion: ingestion,
		ctx:       context.Background(),
		scope:     scope,
		table:     table.New(table.WithFocused(true), table.WithStyles(ts)),
	}
	v.SetDimensions(80, 24)
	return v
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init loads the documents of the scope.
func (v *View) Init() tea.Cmd {
	v.loading = true
	v.confirming = false
	return v.load()
}

func (v *View) load() tea.Cmd {
	ctx, svc, scope := v.ctx, v.ingestion, v.scope
	return func() tea.Msg {
		if svc == nil {
			return messages.DocumentsLoaded{Scope: scope, Err: ErrNoIngestionService}
		}
		docs, err := svc.ListDocuments(ctx, scope)
		return messages.DocumentsLoaded{Scope: scope, Documents: docs, Err: err}
	}
}

func (v *View) deleteScope() tea.Cmd {
	ctx, svc, scope := v.ctx, v.ingestion, v.scope
	return func() tea.Msg {
		if svc == nil {
			return messages.ScopeDeleted{Scope: scope, Err: ErrNoIngestionService}
		}
		return messages.ScopeDeleted{Scope: scope, Err: svc.DeleteScopeData(ctx, scope)}
	}
}

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		if v.confirming {
			v.confirming = false
			if key.Matches(msg, v.keys.Confirm) {
				return v, v.deleteScope()
			}
			return v, nil
		}
		return v.handleKey(msg)

	case messages.DocumentsLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.documents = msg.Documents
			v.table.SetRows(v.rows())
			v.table.SetCursor(0)
		}

	case messages.ScopeDeleted:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = fmt.Sprintf("Deleted all data in %s", msg.Scope)
		v.loading = true
		return v, v.load()

	case messages.ErrorOccurred:
		v.err = msg.Err
	}
	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Up):
		v.table.MoveUp(1)
	case key.Matches(msg, v.keys.Down):
		v.table.MoveDown(1)
	case key.Matches(msg, v.keys.Refresh):
		v.loading = true
		return v, v.load()
	case key.Matches(msg, v.keys.Delete):
		v.confirming = true
		v.notice = ""
	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}
	return v, nil
}

func (v *View) rows() []table.Row {
	rows := make([]table.Row, len(v.documents))
	for i := range v.documents {
		d := &v.documents[i]
		title := d.Title
		if title == "" {
			title = d.ID
		}
		pages := "-"
		if d.DeclaredPages > 0 {
			pages = strconv.Itoa(d.DeclaredPages)
		}
		uploaded := ""
		if !d.UploadedAt.IsZero() {
			uploaded = d.UploadedAt.Format("2006-01-02 15:04")
		}
		status := string(d.Status)
		if d.Status == domain.DocumentFailed && d.Error != "" {
			status += ": " + d.Error
		}
		rows[i] = table.Row{title, pages, uploaded, status}
	}
	return rows
}

// columns splits the width between title and status once the fixed
// columns and cell padding are taken out.
func columns(width int) []table.Column {
	rest := width - pagesWidth - uploadedWidth - 8
	title := max(rest/2, minColumn)
	status := max(rest-title, minColumn)
	return []table.Column{
		{Title: "Title", Width: title},
		{Title: "Pages", Width: pagesWidth},
		{Title: "Uploaded", Width: uploadedWidth},
		{Title: "Status", Width: status},
	}
}

// View renders the documents view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(fmt.Sprintf("Documents - %s (%d)", v.scope, len(v.documents))))
	b.WriteString("\n\n")

	if v.confirming {
		b.WriteString(v.styles.Warning.Render(
			fmt.Sprintf("Delete every document, figure and index entry in %s? [y/N]", v.scope)))
		return b.String()
	}

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading documents..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
	case len(v.documents) == 0:
		b.WriteString(v.styles.Muted.Render("No documents in this lecture."))
	default:
		b.WriteString(v.table.View())
	}
	b.WriteString("\n\n")

	if v.notice != "" {
		b.WriteString(v.styles.Success.Render(v.notice))
		b.WriteString("\n")
	}
	b.WriteString(v.styles.Help.Render(keymap.Hint(" · ", v.keys.DocumentHelp()...)))
	return b.String()
}

// SetDimensions sizes the view and its table.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.table.SetColumns(columns(width))
	v.table.SetWidth(width)
	v.table.SetHeight(max(height-chromeLines, 3))
}

// Documents returns the current list of documents.
func (v *View) Documents() []domain.Document {
	return v.documents
}

// SelectedDocument returns the document under the cursor, or nil.
func (v *View) SelectedDocument() *domain.Document {
	i := v.table.Cursor()
	if i < 0 || i >= len(v.documents) {
		return nil
	}
	return &v.documents[i]
}

// Confirming reports whether a delete confirmation is pending.
func (v *View) Confirming() bool {
	return v.confirming
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

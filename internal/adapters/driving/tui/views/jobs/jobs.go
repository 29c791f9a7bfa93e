// Package jobs provides the ingestion job list view for the TUI.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// RefreshInterval is how often the job list reloads while visible.
const RefreshInterval = 2 * time.Second

// ErrNoIngestionService indicates that no ingestion service was provided.
var ErrNoIngestionService = errors.New("ingestion service is required")

// View lists the jobs of a scope with their stage and progress.
type View struct {
	styles    *styles.Styles
	keys      *keymap.KeyMap
	ingestion driving.IngestionService
	ctx       context.Context
	scope     domain.Scope

	jobs     []domain.JobStatus
	selected int
	loading  bool
	notice   string
	err      error

	width  int
	height int
	ready  bool
}

// NewView creates a jobs view for scope.
func NewView(s *styles.Styles, ingestion driving.IngestionService, scope domain.Scope) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:    s,
		keys:      keymap.DefaultKeyMap(),
		ingestion: ingestion,
		ctx:       context.Background(),
		scope:     scope,
		width:     80,
		height:    24,
	}
}

// WithContext sets the context used for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init loads the job list and starts the refresh ticker.
func (v *View) Init() tea.Cmd {
	v.loading = true
	return tea.Batch(v.load(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg {
		return messages.JobsTick{}
	})
}

func (v *View) load() tea.Cmd {
	ctx, svc, scope := v.ctx, v.ingestion, v.scope
	return func() tea.Msg {
		if svc == nil {
			return messages.JobsLoaded{Err: ErrNoIngestionService}
		}
		all, err := svc.ListJobs(ctx)
		if err != nil {
			return messages.JobsLoaded{Err: err}
		}
		jobs := make([]domain.JobStatus, 0, len(all))
		for _, j := range all {
			if scope.Contains(j.Scope) {
				jobs = append(jobs, j)
			}
		}
		return messages.JobsLoaded{Jobs: jobs}
	}
}

func (v *View) cancel(jobID string) tea.Cmd {
	ctx, svc := v.ctx, v.ingestion
	return func() tea.Msg {
		if svc == nil {
			return messages.JobCancelled{JobID: jobID, Err: ErrNoIngestionService}
		}
		return messages.JobCancelled{JobID: jobID, Err: svc.Cancel(ctx, jobID)}
	}
}

// Update handles messages for the jobs view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.JobsTick:
		return v, tea.Batch(v.load(), tick())

	case messages.JobsLoaded:
		v.loading = false
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.err = nil
		v.jobs = msg.Jobs
		if v.selected >= len(v.jobs) {
			v.selected = max(len(v.jobs)-1, 0)
		}
		return v, nil

	case messages.JobCancelled:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = fmt.Sprintf("Cancelled %s", msg.JobID)
		return v, v.load()

	case messages.ErrorOccurred:
		v.err = msg.Err
	}
	return v, nil
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch {
	case key.Matches(msg, v.keys.Up):
		if v.selected > 0 {
			v.selected--
		}
	case key.Matches(msg, v.keys.Down):
		if v.selected < len(v.jobs)-1 {
			v.selected++
		}
	case key.Matches(msg, v.keys.Refresh):
		v.loading = true
		return v, v.load()
	case key.Matches(msg, v.keys.CancelJob):
		job := v.SelectedJob()
		if job == nil || job.Stage.IsTerminal() {
			return v, nil
		}
		return v, v.cancel(job.JobID)
	case key.Matches(msg, v.keys.Back):
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}
	return v, nil
}

// View renders the job list.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(fmt.Sprintf("Jobs - %s (%d)", v.scope, len(v.jobs))))
	b.WriteString("\n\n")

	switch {
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	case v.loading && len(v.jobs) == 0:
		b.WriteString(v.styles.Muted.Render("Loading jobs..."))
		b.WriteString("\n\n")
	case len(v.jobs) == 0:
		b.WriteString(v.styles.Muted.Render("No jobs for this lecture."))
		b.WriteString("\n\n")
	}

	for i := range v.jobs {
		b.WriteString(v.renderJob(i, &v.jobs[i]))
		b.WriteString("\n")
	}

	if v.notice != "" {
		b.WriteString("\n")
		b.WriteString(v.styles.Success.Render(v.notice))
	}
	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render(keymap.Hint(" · ", v.keys.JobHelp()...)))
	return b.String()
}

func (v *View) renderJob(index int, job *domain.JobStatus) string {
	indicator := "  "
	if index == v.selected {
		indicator = "> "
	}

	stage := v.styles.Stage(job.Stage).Render(fmt.Sprintf("%-12s", job.Stage))
	line := fmt.Sprintf("%s%-36s ", indicator, job.JobID)
	detail := fmt.Sprintf(" %3d%%  %s", job.Percent, progressBar(job.Percent, 20))
	if job.Stage == domain.StageFailed {
		detail = fmt.Sprintf("  %s: %s", job.FailureTag, job.Error)
	}

	if index == v.selected {
		return v.styles.Selected.Render(line) + stage + v.styles.Normal.Render(detail)
	}
	return v.styles.Normal.Render(line) + stage + v.styles.Muted.Render(detail)
}

// progressBar renders a fixed width bar for percent.
func progressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Jobs returns the jobs currently listed.
func (v *View) Jobs() []domain.JobStatus {
	return v.jobs
}

// SelectedJob returns the selected job, or nil if the list is empty.
func (v *View) SelectedJob() *domain.JobStatus {
	if v.selected < 0 || v.selected >= len(v.jobs) {
		return nil
	}
	return &v.jobs[v.selected]
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

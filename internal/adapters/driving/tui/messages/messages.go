// Package messages holds the tea.Msg types passed between the TUI views.
package messages

import (
	"github.com/custodia-labs/lectern/internal/core/domain"
)

// ViewType names a screen of the TUI.
type ViewType int

// Screens, in menu order after the menu itself.
const (
	ViewMenu ViewType = iota
	ViewAsk
	ViewJobs
	ViewDocuments
	ViewHelp
)

var viewNames = [...]string{"menu", "ask", "jobs", "documents", "help"}

func (v ViewType) String() string {
	if v < 0 || int(v) >= len(viewNames) {
		return "unknown"
	}
	return viewNames[v]
}

// ViewChanged switches the active screen.
type ViewChanged struct {
	View ViewType
}

// AnswerReceived carries the composed answer back to the model.
type AnswerReceived struct {
	Question string
	Answer   *domain.Answer
	Err      error
}

// JobsLoaded carries the job list from the ingestion service.
type JobsLoaded struct {
	Jobs []domain.JobStatus
	Err  error
}

// JobCancelled signals a cancel request was accepted or refused.
type JobCancelled struct {
	JobID string
	Err   error
}

// JobsTick triggers a periodic job list refresh.
type JobsTick struct{}

// DocumentsLoaded carries the documents of a scope.
type DocumentsLoaded struct {
	Scope     domain.Scope
	Documents []domain.Document
	Err       error
}

// ScopeDeleted signals that a scope's data was removed.
type ScopeDeleted struct {
	Scope domain.Scope
	Err   error
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// Quit signals the application should exit.
type Quit struct{}

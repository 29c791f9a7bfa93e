package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var testScope = domain.Scope{Subject: "physics", Lecture: "lecture-01"}

// MockIngestionService implements driving.IngestionService for testing.
type MockIngestionService struct {
	Docs      []domain.Document
	ListErr   error
	DeleteErr error
	Deleted   []domain.Scope
}

func (m *MockIngestionService) SubmitDocument(context.Context, driving.SubmitRequest) (*driving.SubmitResult, error) {
	return &driving.SubmitResult{}, nil
}

func (m *MockIngestionService) GetJobStatus(_ context.Context, jobID string) (*domain.JobStatus, error) {
	return &domain.JobStatus{JobID: jobID}, nil
}

func (m *MockIngestionService) ListJobs(context.Context, ...domain.Stage) ([]domain.JobStatus, error) {
	return nil, nil
}

func (m *MockIngestionService) Cancel(context.Context, string) error { return nil }

func (m *MockIngestionService) DeleteScopeData(_ context.Context, scope domain.Scope) error {
	m.Deleted = append(m.Deleted, scope)
	return m.DeleteErr
}

func (m *MockIngestionService) Run(_ context.Context, jobID string) (*domain.JobStatus, error) {
	return &domain.JobStatus{JobID: jobID}, nil
}

func (m *MockIngestionService) ListDocuments(context.Context, domain.Scope) ([]domain.Document, error) {
	return m.Docs, m.ListErr
}

func press(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func testDocuments() []domain.Document {
	return []domain.Document{
		{ID: "doc-1", Scope: testScope, Title: "Week 1 slides", Status: domain.DocumentCompleted,
			UploadedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "doc-2", Scope: testScope, Title: "Week 2 slides", Status: domain.DocumentFailed, Error: "rasterize_error"},
	}
}

func TestInit_LoadsDocuments(t *testing.T) {
	view := NewView(nil, &MockIngestionService{Docs: testDocuments()}, testScope)

	msg := view.Init()()

	loaded, ok := msg.(messages.DocumentsLoaded)
	require.True(t, ok)
	assert.Equal(t, testScope, loaded.Scope)
	assert.Len(t, loaded.Documents, 2)
}

func TestInit_NoService(t *testing.T) {
	view := NewView(nil, nil, testScope)

	msg := view.Init()()

	assert.ErrorIs(t, msg.(messages.DocumentsLoaded).Err, ErrNoIngestionService)
}

func TestView_RendersDocuments(t *testing.T) {
	view := NewView(nil, nil, testScope)
	view.SetDimensions(120, 30)

	view.Update(messages.DocumentsLoaded{Scope: testScope, Documents: testDocuments()})

	out := view.View()
	assert.Contains(t, out, "Documents - physics/lecture-01 (2)")
	assert.Contains(t, out, "Week 1 slides")
	assert.Contains(t, out, "2026-09-01 10:00")
	assert.Contains(t, out, "failed: rasterize_error")
	assert.Contains(t, out, "Uploaded")
}

func TestColumns_FitWidth(t *testing.T) {
	cols := columns(120)
	total := 8
	for _, c := range cols {
		total += c.Width
	}
	assert.Equal(t, 120, total)

	for _, c := range columns(20) {
		assert.GreaterOrEqual(t, c.Width, pagesWidth)
	}
}

func TestView_Empty(t *testing.T) {
	view := NewView(nil, nil, testScope)

	view.Update(messages.DocumentsLoaded{Scope: testScope})

	assert.Contains(t, view.View(), "No documents in this lecture.")
}

func TestView_LoadError(t *testing.T) {
	view := NewView(nil, nil, testScope)

	view.Update(messages.DocumentsLoaded{Err: errors.New("db closed")})

	assert.Contains(t, view.View(), "Error: db closed")
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	svc := &MockIngestionService{}
	view := NewView(nil, svc, testScope)

	_, cmd := view.Update(press('d'))
	assert.Nil(t, cmd)
	assert.True(t, view.Confirming())
	assert.Contains(t, view.View(), "[y/N]")

	_, cmd = view.Update(press('n'))
	assert.Nil(t, cmd)
	assert.False(t, view.Confirming())
	assert.Empty(t, svc.Deleted)
}

func TestDelete_Confirmed(t *testing.T) {
	svc := &MockIngestionService{}
	view := NewView(nil, svc, testScope)

	view.Update(press('d'))
	_, cmd := view.Update(press('y'))
	require.NotNil(t, cmd)
	msg := cmd()

	assert.Equal(t, messages.ScopeDeleted{Scope: testScope}, msg)
	assert.Equal(t, []domain.Scope{testScope}, svc.Deleted)

	_, reload := view.Update(msg)
	require.NotNil(t, reload)
	assert.Contains(t, view.View(), "Deleted all data in physics/lecture-01")
}

func TestDelete_Error(t *testing.T) {
	view := NewView(nil, nil, testScope)

	_, cmd := view.Update(messages.ScopeDeleted{Scope: testScope, Err: errors.New("locked")})

	assert.Nil(t, cmd)
	assert.EqualError(t, view.Err(), "locked")
}

func TestNavigation(t *testing.T) {
	view := NewView(nil, nil, testScope)
	view.Update(messages.DocumentsLoaded{Documents: testDocuments()})

	view.Update(press('j'))
	assert.Equal(t, "doc-2", view.SelectedDocument().ID)

	view.Update(press('j'))
	assert.Equal(t, "doc-2", view.SelectedDocument().ID)

	view.Update(press('k'))
	assert.Equal(t, "doc-1", view.SelectedDocument().ID)
}

func TestEscGoesToMenu(t *testing.T) {
	view := NewView(nil, nil, testScope)

	_, cmd := view.Update(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, messages.ViewChanged{View: messages.ViewMenu}, cmd())
}

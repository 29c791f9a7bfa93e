package mcp

import (
	"context"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// mockAskService is a mock implementation of driving.AskService.
type mockAskService struct {
	answer    *domain.Answer
	retrieval *domain.RetrievalResult
	err       error

	lastScope domain.Scope
	lastOpts  domain.AskOptions
}

func (m *mockAskService) Ask(
	_ context.Context,
	scope domain.Scope,
	_ string,
	opts domain.AskOptions,
) (*domain.Answer, error) {
	m.lastScope = scope
	m.lastOpts = opts
	return m.answer, m.err
}

func (m *mockAskService) AskStream(
	ctx context.Context,
	scope domain.Scope,
	question string,
	opts domain.AskOptions,
	onChunk func(string) error,
) (*domain.Answer, error) {
	answer, err := m.Ask(ctx, scope, question, opts)
	if err != nil {
		return nil, err
	}
	if err := onChunk(answer.Text); err != nil {
		return nil, err
	}
	return answer, nil
}

func (m *mockAskService) Retrieve(
	_ context.Context,
	scope domain.Scope,
	_ string,
	_ domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	m.lastScope = scope
	return m.retrieval, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	submitted *driving.SubmitRequest
	result    *driving.SubmitResult
	status    *domain.JobStatus
	jobs      []domain.JobStatus
	documents []domain.Document
	err       error
}

func (m *mockIngestionService) SubmitDocument(
	_ context.Context,
	req driving.SubmitRequest,
) (*driving.SubmitResult, error) {
	m.submitted = &req
	return m.result, m.err
}

func (m *mockIngestionService) GetJobStatus(_ context.Context, _ string) (*domain.JobStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) ListJobs(_ context.Context, _ ...domain.Stage) ([]domain.JobStatus, error) {
	return m.jobs, m.err
}

func (m *mockIngestionService) Cancel(_ context.Context, _ string) error {
	return m.err
}

func (m *mockIngestionService) DeleteScopeData(_ context.Context, _ domain.Scope) error {
	return m.err
}

func (m *mockIngestionService) Run(_ context.Context, _ string) (*domain.JobStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) ListDocuments(_ context.Context, _ domain.Scope) ([]domain.Document, error) {
	return m.documents, m.err
}

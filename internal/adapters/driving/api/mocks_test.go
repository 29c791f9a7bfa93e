package api

import (
	"context"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

type mockAskService struct {
	answer    *domain.Answer
	retrieval *domain.RetrievalResult
	chunks    []string
	err       error
}

func (m *mockAskService) Ask(
	_ context.Context, _ domain.Scope, _ string, _ domain.AskOptions,
) (*domain.Answer, error) {
	return m.answer, m.err
}

func (m *mockAskService) AskStream(
	_ context.Context, _ domain.Scope, _ string, _ domain.AskOptions, onChunk func(string) error,
) (*domain.Answer, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	return &domain.Answer{Text: strings.Join(m.chunks, ""), Sources: m.answer.Sources}, nil
}

func (m *mockAskService) Retrieve(
	_ context.Context, _ domain.Scope, _ string, _ domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	return m.retrieval, m.err
}

type mockIngestionService struct {
	submitted   *driving.SubmitRequest
	status      *domain.JobStatus
	jobs        []domain.JobStatus
	stages      []domain.Stage
	documents   []domain.Document
	deleted     *domain.Scope
	cancelled   string
	err         error
	submitErr   error
	statusCalls int
}

func (m *mockIngestionService) SubmitDocument(
	_ context.Context, req driving.SubmitRequest,
) (*driving.SubmitResult, error) {
	m.submitted = &req
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return &driving.SubmitResult{DocumentID: "doc-1", JobID: "job-1"}, nil
}

func (m *mockIngestionService) GetJobStatus(_ context.Context, _ string) (*domain.JobStatus, error) {
	m.statusCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

func (m *mockIngestionService) ListJobs(_ context.Context, stages ...domain.Stage) ([]domain.JobStatus, error) {
	m.stages = stages
	return m.jobs, m.err
}

func (m *mockIngestionService) Cancel(_ context.Context, jobID string) error {
	m.cancelled = jobID
	return m.err
}

func (m *mockIngestionService) DeleteScopeData(_ context.Context, scope domain.Scope) error {
	m.deleted = &scope
	return m.err
}

func (m *mockIngestionService) Run(_ context.Context, _ string) (*domain.JobStatus, error) {
	return m.status, m.err
}

func (m *mockIngestionService) ListDocuments(_ context.Context, _ domain.Scope) ([]domain.Document, error) {
	return m.documents, m.err
}

type mockUploadService struct {
	req *driving.UploadRequest
	err error
}

func (m *mockUploadService) Upload(_ context.Context, req driving.UploadRequest) (*driving.SubmitResult, error) {
	m.req = &req
	if m.err != nil {
		return nil, m.err
	}
	return &driving.SubmitResult{DocumentID: "doc-2", JobID: "job-2"}, nil
}

func (m *mockUploadService) Accepts(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func (m *mockUploadService) MaxBytes() int64 {
	return 1 << 20
}

package cli

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driving/api"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var testScope = domain.Scope{Subject: "physics", Lecture: "lecture-01"}

type mockIngestionService struct {
	submitted []driving.SubmitRequest
	cancelled []string
	deleted   []domain.Scope
	stages    []domain.Stage
	runCalls  []string

	status *domain.JobStatus
	jobs   []domain.JobStatus
	docs   []domain.Document
	err    error
	runFn  func(ctx context.Context, jobID string) (*domain.JobStatus, error)
}

func (m *mockIngestionService) SubmitDocument(_ context.Context, req driving.SubmitRequest) (*driving.SubmitResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.submitted = append(m.submitted, req)
	return &driving.SubmitResult{DocumentID: "doc-1", JobID: "job-1"}, nil
}

func (m *mockIngestionService) GetJobStatus(_ context.Context, jobID string) (*domain.JobStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status != nil {
		return m.status, nil
	}
	return &domain.JobStatus{JobID: jobID, DocumentID: "doc-1", Scope: testScope, Stage: domain.StageExtracting, Percent: 42}, nil
}

func (m *mockIngestionService) ListJobs(_ context.Context, stages ...domain.Stage) ([]domain.JobStatus, error) {
	m.stages = stages
	return m.jobs, m.err
}

func (m *mockIngestionService) Cancel(_ context.Context, jobID string) error {
	if m.err != nil {
		return m.err
	}
	m.cancelled = append(m.cancelled, jobID)
	return nil
}

func (m *mockIngestionService) DeleteScopeData(_ context.Context, scope domain.Scope) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, scope)
	return nil
}

func (m *mockIngestionService) Run(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	m.runCalls = append(m.runCalls, jobID)
	if m.runFn != nil {
		return m.runFn(ctx, jobID)
	}
	return &domain.JobStatus{JobID: jobID, Stage: domain.StageCompleted, Percent: 100}, nil
}

func (m *mockIngestionService) ListDocuments(_ context.Context, _ domain.Scope) ([]domain.Document, error) {
	return m.docs, m.err
}

type mockAskService struct {
	lastScope    domain.Scope
	lastQuestion string
	lastOpts     domain.AskOptions
	lastRetrieve domain.RetrievalOptions

	answer *domain.Answer
	chunks []string
	result *domain.RetrievalResult
	err    error
}

func (m *mockAskService) Ask(
	_ context.Context, scope domain.Scope, question string, opts domain.AskOptions,
) (*domain.Answer, error) {
	m.lastScope, m.lastQuestion, m.lastOpts = scope, question, opts
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func (m *mockAskService) AskStream(
	ctx context.Context, scope domain.Scope, question string, opts domain.AskOptions, onChunk func(string) error,
) (*domain.Answer, error) {
	answer, err := m.Ask(ctx, scope, question, opts)
	if err != nil {
		return nil, err
	}
	for _, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return nil, err
		}
	}
	return answer, nil
}

func (m *mockAskService) Retrieve(
	_ context.Context, scope domain.Scope, question string, opts domain.RetrievalOptions,
) (*domain.RetrievalResult, error) {
	m.lastScope, m.lastQuestion, m.lastRetrieve = scope, question, opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockUploadService struct {
	requests []driving.UploadRequest
	maxBytes int64
	err      error
}

func (m *mockUploadService) Upload(_ context.Context, req driving.UploadRequest) (*driving.SubmitResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	return &driving.SubmitResult{DocumentID: "doc-up", JobID: "job-up"}, nil
}

func (m *mockUploadService) Accepts(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func (m *mockUploadService) MaxBytes() int64 {
	if m.maxBytes == 0 {
		return 1 << 20
	}
	return m.maxBytes
}

type mockProgressFeed struct {
	ch chan domain.ProgressEvent
}

func (m *mockProgressFeed) Subscribe(_ string, _ int) (<-chan domain.ProgressEvent, func()) {
	return m.ch, func() {}
}

type mockWorkers struct {
	started int
	stopped int
}

func (m *mockWorkers) Start(context.Context) error {
	m.started++
	return nil
}

func (m *mockWorkers) Stop() error {
	m.stopped++
	return nil
}

type testServices struct {
	ingestion *mockIngestionService
	ask       *mockAskService
	upload    *mockUploadService
	workers   *mockWorkers
}

// setupTestServices installs mocks and resets flag values left over from
// earlier executions of rootCmd.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingestion: &mockIngestionService{},
		ask:       &mockAskService{answer: &domain.Answer{Text: "Momentum is mass times velocity."}},
		upload:    &mockUploadService{},
		workers:   &mockWorkers{},
	}
	SetServices(Services{
		Ask:         ts.ask,
		Ingestion:   ts.ingestion,
		Upload:      ts.upload,
		Workers:     ts.workers,
		Server:      api.Config{Addr: "127.0.0.1:0"},
		WatchSettle: 20 * time.Millisecond,
	})
	resetFlags()
	return ts, func() {
		SetServices(Services{})
		resetFlags()
	}
}

func resetFlags() {
	submitSubject, submitLecture, submitTitle, submitRef = "", "", "", ""
	submitPages, submitWait = 0, false
	statusJSON, jobsJSON, jobsStages = false, false, nil
	askSubject, askLecture = "", ""
	askWeb, askWiden, askStream, askContext, askJSON = false, false, false, false, false
	askTopK = domain.DefaultTopK
	documentsSubject, documentsLecture, documentsJSON = "", "", false
	watchSubject, watchLecture, watchScan = "", "", false
	serveAddr = ""
	mcpHTTP, mcpAskOnly = "", false
	versionShort = false
	configJSON = false
	tuiSubject, tuiLecture, tuiTopK = "", "", domain.DefaultTopK
	verbose = false
}

// execute runs rootCmd with args and returns its combined output.
func execute(args ...string) (string, error) {
	return executeContext(context.Background(), args...)
}

func executeContext(ctx context.Context, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/progress"
	"github.com/custodia-labs/lectern/internal/core/domain"
)

type testEnv struct {
	server *Server
	ask    *mockAskService
	ingest *mockIngestionService
	upload *mockUploadService
	feed   *progress.Broadcaster
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		ask: &mockAskService{
			answer: &domain.Answer{
				Text:    "**Entropy** measures uncertainty [page 2].",
				Sources: []domain.Source{{Kind: domain.SourceIndexed, DocumentID: "doc-1", PageNumber: 2, Score: 0.7}},
			},
			chunks: []string{"Entropy ", "measures uncertainty."},
		},
		ingest: &mockIngestionService{},
		upload: &mockUploadService{},
		feed:   progress.NewBroadcaster(),
	}

	srv, err := NewServer(&Ports{
		Ask:       env.ask,
		Ingestion: env.ingest,
		Upload:    env.upload,
		Progress:  env.feed,
	}, Config{Heartbeat: time.Hour})
	require.NoError(t, err)
	env.server = srv
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(&Ports{Ask: &mockAskService{}}, Config{})
	assert.ErrorIs(t, err, ErrMissingService)
}

func TestHealthHandler(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

type stubTasks []domain.TaskState

func (s stubTasks) Tasks() []domain.TaskState { return s }

func TestHealthHandler_ListsTasks(t *testing.T) {
	env := setupTestServer(t)
	env.server.ports.Tasks = stubTasks{
		{ID: domain.TaskQueuePoll, Label: "Queue poll", Runs: 4, Failures: 1, LastError: "store offline"},
	}

	rec := env.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OK    bool `json:"ok"`
		Tasks []struct {
			ID        string `json:"id"`
			Runs      int    `json:"runs"`
			LastError string `json:"last_error"`
		} `json:"tasks"`
	}
	decode(t, rec, &body)
	assert.False(t, body.OK)
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, "queue-poll", body.Tasks[0].ID)
	assert.Equal(t, 4, body.Tasks[0].Runs)
	assert.Equal(t, "store offline", body.Tasks[0].LastError)
}

func TestSubmitHandler(t *testing.T) {
	t.Run("accepts submission", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/documents", map[string]any{
			"subject": "cs101", "lecture": "l1", "source_ref": "cs101/l1/uploads/a.pdf", "pages": 3,
		})

		require.Equal(t, http.StatusAccepted, rec.Code)
		var body submitResponse
		decode(t, rec, &body)
		assert.Equal(t, "job-1", body.JobID)
		assert.Equal(t, 3, env.ingest.submitted.DeclaredPages)
		assert.Equal(t, domain.Scope{Subject: "cs101", Lecture: "l1"}, env.ingest.submitted.Scope)
	})

	t.Run("missing fields is bad request", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/documents", map[string]any{"subject": "cs101"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Nil(t, env.ingest.submitted)
	})

	t.Run("duplicate submission is conflict", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.submitErr = domain.ErrDuplicateSubmission

		rec := env.do(http.MethodPost, "/api/documents", map[string]any{
			"subject": "cs101", "lecture": "l1", "source_ref": "x.pdf",
		})

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func multipartUpload(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	t.Run("stores and submits", func(t *testing.T) {
		env := setupTestServer(t)
		req := multipartUpload(t, "week1.pdf", map[string]string{"subject": "cs101", "lecture": "l1", "pages": "12"})
		rec := httptest.NewRecorder()

		env.server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		require.NotNil(t, env.upload.req)
		assert.Equal(t, "week1.pdf", env.upload.req.Filename)
		assert.Equal(t, []byte("%PDF-1.4"), env.upload.req.Data)
		assert.Equal(t, 12, env.upload.req.DeclaredPages)
	})

	t.Run("rejects other file types", func(t *testing.T) {
		env := setupTestServer(t)
		req := multipartUpload(t, "notes.txt", map[string]string{"subject": "cs101", "lecture": "l1"})
		rec := httptest.NewRecorder()

		env.server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Nil(t, env.upload.req)
	})

	t.Run("bad pages value", func(t *testing.T) {
		env := setupTestServer(t)
		req := multipartUpload(t, "a.pdf", map[string]string{"subject": "cs101", "lecture": "l1", "pages": "many"})
		rec := httptest.NewRecorder()

		env.server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJobHandlers(t *testing.T) {
	t.Run("unknown job is not found", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.err = domain.ErrNotFound

		rec := env.do(http.MethodGet, "/api/jobs/missing", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns status", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.status = &domain.JobStatus{
			JobID: "job-1", Scope: domain.Scope{Subject: "cs101", Lecture: "l1"},
			Stage: domain.StageChunking, Percent: 55,
		}

		rec := env.do(http.MethodGet, "/api/jobs/job-1", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body jobDTO
		decode(t, rec, &body)
		assert.Equal(t, "chunking", body.Stage)
		assert.Equal(t, 55, body.Percent)
		assert.Equal(t, "l1", body.Lecture)
	})

	t.Run("lists by stage", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.jobs = []domain.JobStatus{{JobID: "job-1", Stage: domain.StageQueued}}

		rec := env.do(http.MethodGet, "/api/jobs?stage=queued,failed", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []domain.Stage{domain.StageQueued, domain.StageFailed}, env.ingest.stages)
	})

	t.Run("rejects unknown stage", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodGet, "/api/jobs?stage=parsing", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodDelete, "/api/jobs/job-9", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "job-9", env.ingest.cancelled)
	})

	t.Run("cancel finished job is conflict", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.err = domain.ErrJobTerminal

		rec := env.do(http.MethodDelete, "/api/jobs/job-9", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestJobEvents_TerminalJobSendsSnapshot(t *testing.T) {
	env := setupTestServer(t)
	env.ingest.status = &domain.JobStatus{JobID: "job-1", Stage: domain.StageCompleted, Percent: 100}

	rec := env.do(http.MethodGet, "/api/jobs/job-1/events", nil)

	assert.Contains(t, rec.Body.String(), "event:status")
	assert.Contains(t, rec.Body.String(), `"stage":"completed"`)
	assert.Zero(t, env.feed.Subscribers())
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	env := setupTestServer(t)
	env.ingest.status = &domain.JobStatus{JobID: "job-1", Stage: domain.StageExtracting, Percent: 30}

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/jobs/job-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return env.feed.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	for _, ev := range []domain.ProgressEvent{
		{JobID: "other", Stage: domain.StageQueued},
		{JobID: "job-1", Stage: domain.StageChunking, Percent: 60},
		{JobID: "job-1", Stage: domain.StageCompleted, Percent: 100},
	} {
		require.NoError(t, env.feed.Publish(ctx, ev))
	}

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data:") {
			events = append(events, line)
		}
	}

	require.Len(t, events, 3)
	assert.Contains(t, events[0], `"stage":"extracting"`)
	assert.Contains(t, events[1], `"stage":"chunking"`)
	assert.Contains(t, events[2], `"stage":"completed"`)
	assert.Eventually(t, func() bool { return env.feed.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestAskHandler(t *testing.T) {
	req := map[string]any{"subject": "cs101", "lecture": "l1", "question": "What is entropy?"}

	t.Run("returns answer", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/ask", req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body answerDTO
		decode(t, rec, &body)
		assert.Equal(t, "**Entropy** measures uncertainty [page 2].", body.Answer)
		assert.Empty(t, body.HTML)
		require.Len(t, body.Sources, 1)
		assert.Equal(t, 2, body.Sources[0].Page)
	})

	t.Run("renders html", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/ask", map[string]any{
			"subject": "cs101", "lecture": "l1", "question": "q", "format": "html",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var body answerDTO
		decode(t, rec, &body)
		assert.Contains(t, body.HTML, "<strong>Entropy</strong>")
	})

	t.Run("unknown format", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/ask", map[string]any{
			"subject": "cs101", "lecture": "l1", "question": "q", "format": "pdf",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid scope", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/ask", map[string]any{
			"subject": "cs/101", "lecture": "l1", "question": "q",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("streams chunks", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodPost, "/api/ask", map[string]any{
			"subject": "cs101", "lecture": "l1", "question": "q", "stream": true,
		})

		body := rec.Body.String()
		assert.Equal(t, 2, strings.Count(body, "event:chunk"))
		assert.Contains(t, body, "event:answer")
		assert.Contains(t, body, `"answer":"Entropy measures uncertainty."`)
	})
}

func TestRetrieveHandler(t *testing.T) {
	env := setupTestServer(t)
	env.ask.retrieval = &domain.RetrievalResult{
		Confidence: 0.1,
		WebUsed:    true,
		Entries: []domain.ContextEntry{
			{Kind: domain.SourceWeb, Title: "Entropy", URL: "https://example.com", Text: "snippet"},
		},
	}

	rec := env.do(http.MethodPost, "/api/retrieve", map[string]any{"subject": "cs101", "lecture": "l1", "question": "q"})

	require.Equal(t, http.StatusOK, rec.Code)
	var body retrievalDTO
	decode(t, rec, &body)
	assert.True(t, body.WebUsed)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "[web]", body.Entries[0].Marker)
}

func TestScopeHandlers(t *testing.T) {
	t.Run("lists documents", func(t *testing.T) {
		env := setupTestServer(t)
		env.ingest.documents = []domain.Document{{ID: "doc-1", Title: "Week 1", Status: domain.DocumentCompleted}}

		rec := env.do(http.MethodGet, "/api/scopes/cs101/l1/documents", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var body []documentDTO
		decode(t, rec, &body)
		require.Len(t, body, 1)
		assert.Equal(t, "completed", body[0].Status)
	})

	t.Run("deletes lecture", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodDelete, "/api/scopes/cs101/l1", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, &domain.Scope{Subject: "cs101", Lecture: "l1"}, env.ingest.deleted)
	})

	t.Run("deletes subject", func(t *testing.T) {
		env := setupTestServer(t)

		rec := env.do(http.MethodDelete, "/api/scopes/cs101", nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, env.ingest.deleted.IsSubjectWide())
	})
}

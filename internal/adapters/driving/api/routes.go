package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.POST("/documents", s.handleSubmit)
		if s.ports.Upload != nil {
			api.POST("/documents/upload", s.handleUpload)
		}

		api.GET("/jobs", s.handleListJobs)
		api.GET("/jobs/:id", s.handleGetJob)
		api.DELETE("/jobs/:id", s.handleCancelJob)
		if s.ports.Progress != nil {
			api.GET("/jobs/:id/events", s.handleJobEvents)
		}

		api.POST("/ask", s.handleAsk)
		api.POST("/retrieve", s.handleRetrieve)

		api.GET("/scopes/:subject/:lecture/documents", s.handleListDocuments)
		api.DELETE("/scopes/:subject", s.handleDeleteScope)
		api.DELETE("/scopes/:subject/:lecture", s.handleDeleteScope)
	}
}

// handleHealth always answers 200; a failing background task shows up in
// its entry rather than in the status code.
func (s *Server) handleHealth(c *gin.Context) {
	if s.ports.Tasks == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	tasks := s.ports.Tasks.Tasks()
	ok := true
	for _, t := range tasks {
		ok = ok && t.Healthy()
	}
	c.JSON(http.StatusOK, gin.H{"ok": ok, "tasks": tasks})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var payload submitRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	scope, err := domain.NewScope(payload.Subject, payload.Lecture)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := s.ports.Ingestion.SubmitDocument(c.Request.Context(), driving.SubmitRequest{
		Scope:         scope,
		SourceRef:     payload.SourceRef,
		Title:         payload.Title,
		DeclaredPages: payload.Pages,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{DocumentID: res.DocumentID, JobID: res.JobID})
}

func (s *Server) handleUpload(c *gin.Context) {
	scope, err := domain.NewScope(c.PostForm("subject"), c.PostForm("lecture"))
	if err != nil {
		respondError(c, err)
		return
	}

	pages := 0
	if v := c.PostForm("pages"); v != "" {
		if pages, err = strconv.Atoi(v); err != nil {
			respondMessage(c, http.StatusBadRequest, "pages must be an integer")
			return
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing file")
		return
	}
	if !s.ports.Upload.Accepts(fileHeader.Filename) {
		respondMessage(c, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported file type: %s", fileHeader.Filename))
		return
	}
	if fileHeader.Size > s.ports.Upload.MaxBytes() {
		respondMessage(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", s.ports.Upload.MaxBytes()))
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	data, err := io.ReadAll(io.LimitReader(upload, s.ports.Upload.MaxBytes()+1))
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}

	res, err := s.ports.Upload.Upload(c.Request.Context(), driving.UploadRequest{
		Scope:         scope,
		Filename:      fileHeader.Filename,
		Data:          data,
		Title:         c.PostForm("title"),
		DeclaredPages: pages,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{DocumentID: res.DocumentID, JobID: res.JobID})
}

func (s *Server) handleListJobs(c *gin.Context) {
	var stages []domain.Stage
	for _, raw := range c.QueryArray("stage") {
		for _, v := range strings.Split(raw, ",") {
			stage := domain.Stage(strings.TrimSpace(v))
			if !stage.IsValid() {
				respondMessage(c, http.StatusBadRequest, fmt.Sprintf("unknown stage: %s", v))
				return
			}
			stages = append(stages, stage)
		}
	}

	jobs, err := s.ports.Ingestion.ListJobs(c.Request.Context(), stages...)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]jobDTO, len(jobs))
	for i := range jobs {
		out[i] = toJobDTO(&jobs[i])
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetJob(c *gin.Context) {
	status, err := s.ports.Ingestion.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobDTO(status))
}

func (s *Server) handleCancelJob(c *gin.Context) {
	if err := s.ports.Ingestion.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleJobEvents streams a job's progress as server-sent events. The
// first event is the current status; the stream ends at a terminal stage.
func (s *Server) handleJobEvents(c *gin.Context) {
	jobID := c.Param("id")

	// Subscribe first so no event between the snapshot and the stream is lost.
	events, cancel := s.ports.Progress.Subscribe(jobID, 0)
	defer cancel()

	status, err := s.ports.Ingestion.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("status", toJobDTO(status))
	c.Writer.Flush()
	if status.Stage.IsTerminal() {
		return
	}

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", toEventDTO(ev))
			return !ev.Stage.IsTerminal()
		}
	})
}

func (s *Server) handleAsk(c *gin.Context) {
	var payload askRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}
	html := strings.EqualFold(payload.Format, "html")
	if payload.Format != "" && !html && !strings.EqualFold(payload.Format, "markdown") {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("unknown format: %s", payload.Format))
		return
	}

	scope, err := domain.NewScope(payload.Subject, payload.Lecture)
	if err != nil {
		respondError(c, err)
		return
	}

	if payload.Stream {
		s.streamAnswer(c, scope, payload, html)
		return
	}

	answer, err := s.ports.Ask.Ask(c.Request.Context(), scope, payload.Question, payload.options())
	if err != nil {
		respondError(c, err)
		return
	}

	out := toAnswerDTO(answer)
	if html {
		if out.HTML, err = renderHTML(answer.Text); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, out)
}

// streamAnswer sends "chunk" events while the answer is generated and a
// final "answer" event with the sources.
func (s *Server) streamAnswer(c *gin.Context, scope domain.Scope, payload askRequest, html bool) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	answer, err := s.ports.Ask.AskStream(c.Request.Context(), scope, payload.Question, payload.options(),
		func(chunk string) error {
			if err := c.Request.Context().Err(); err != nil {
				return err
			}
			c.SSEvent("chunk", gin.H{"text": chunk})
			c.Writer.Flush()
			return nil
		})
	if err != nil {
		c.SSEvent("error", gin.H{"error": err.Error(), "status": statusOf(err)})
		c.Writer.Flush()
		return
	}

	out := toAnswerDTO(answer)
	if html {
		if rendered, err := renderHTML(answer.Text); err == nil {
			out.HTML = rendered
		}
	}
	c.SSEvent("answer", out)
	c.Writer.Flush()
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var payload askRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	scope, err := domain.NewScope(payload.Subject, payload.Lecture)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := s.ports.Ask.Retrieve(c.Request.Context(), scope, payload.Question, domain.RetrievalOptions{
		TopK:           payload.TopK,
		UseWeb:         payload.UseWeb,
		WidenToSubject: payload.Widen,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRetrievalDTO(result))
}

func (s *Server) handleListDocuments(c *gin.Context) {
	scope, err := domain.NewScope(c.Param("subject"), c.Param("lecture"))
	if err != nil {
		respondError(c, err)
		return
	}

	docs, err := s.ports.Ingestion.ListDocuments(c.Request.Context(), scope)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]documentDTO, len(docs))
	for i := range docs {
		out[i] = toDocumentDTO(&docs[i])
	}
	c.JSON(http.StatusOK, out)
}

// handleDeleteScope removes a lecture, or a whole subject when no lecture
// is given.
func (s *Server) handleDeleteScope(c *gin.Context) {
	scope := domain.SubjectScope(c.Param("subject"))
	if lecture := c.Param("lecture"); lecture != "" {
		scope.Lecture = lecture
	}
	if err := scope.Validate(); err != nil {
		respondError(c, err)
		return
	}

	if err := s.ports.Ingestion.DeleteScopeData(c.Request.Context(), scope); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package api

import (
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

type submitRequest struct {
	Subject   string `json:"subject" binding:"required"`
	Lecture   string `json:"lecture" binding:"required"`
	SourceRef string `json:"source_ref" binding:"required"`
	Title     string `json:"title"`
	Pages     int    `json:"pages"`
}

type submitResponse struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
}

type askRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Lecture  string `json:"lecture" binding:"required"`
	Question string `json:"question" binding:"required"`
	UseWeb   bool   `json:"use_web"`
	Widen    bool   `json:"widen"`
	TopK     int    `json:"top_k"`

	// Format is "markdown" (default) or "html".
	Format string `json:"format"`

	// Stream delivers the answer as server-sent events.
	Stream bool `json:"stream"`
}

func (r askRequest) options() domain.AskOptions {
	return domain.AskOptions{UseWeb: r.UseWeb, WidenToSubject: r.Widen, TopK: r.TopK}
}

type sourceDTO struct {
	Kind       string  `json:"kind"`
	DocumentID string  `json:"document_id,omitempty"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	Page       int     `json:"page,omitempty"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score"`
}

type answerDTO struct {
	Answer      string      `json:"answer"`
	HTML        string      `json:"html,omitempty"`
	Unavailable bool        `json:"unavailable"`
	Sources     []sourceDTO `json:"sources"`
}

func toAnswerDTO(a *domain.Answer) answerDTO {
	out := answerDTO{
		Answer:      a.Text,
		Unavailable: a.Unavailable,
		Sources:     make([]sourceDTO, len(a.Sources)),
	}
	for i, s := range a.Sources {
		out.Sources[i] = sourceDTO{
			Kind:       string(s.Kind),
			DocumentID: s.DocumentID,
			ChunkID:    s.ChunkID,
			Page:       s.PageNumber,
			Title:      s.Title,
			URL:        s.URL,
			Score:      s.Score,
		}
	}
	return out
}

type entryDTO struct {
	Marker     string   `json:"marker"`
	Kind       string   `json:"kind"`
	Score      float64  `json:"score"`
	Text       string   `json:"text"`
	DocumentID string   `json:"document_id,omitempty"`
	ChunkID    string   `json:"chunk_id,omitempty"`
	Page       int      `json:"page,omitempty"`
	FigureIDs  []string `json:"figure_ids,omitempty"`
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
}

type retrievalDTO struct {
	Confidence float64    `json:"confidence"`
	WebUsed    bool       `json:"web_used"`
	Entries    []entryDTO `json:"entries"`
}

func toRetrievalDTO(r *domain.RetrievalResult) retrievalDTO {
	out := retrievalDTO{
		Confidence: r.Confidence,
		WebUsed:    r.WebUsed,
		Entries:    make([]entryDTO, len(r.Entries)),
	}
	for i, e := range r.Entries {
		out.Entries[i] = entryDTO{
			Marker:     e.Marker(),
			Kind:       string(e.Kind),
			Score:      e.Score,
			Text:       e.Text,
			DocumentID: e.DocumentID,
			ChunkID:    e.ChunkID,
			Page:       e.PageNumber,
			FigureIDs:  e.FigureIDs,
			Title:      e.Title,
			URL:        e.URL,
		}
	}
	return out
}

type jobDTO struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	Subject    string    `json:"subject"`
	Lecture    string    `json:"lecture"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	FailureTag string    `json:"failure_tag,omitempty"`
	Error      string    `json:"error,omitempty"`
	RetryCount int       `json:"retry_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toJobDTO(s *domain.JobStatus) jobDTO {
	return jobDTO{
		JobID:      s.JobID,
		DocumentID: s.DocumentID,
		Subject:    s.Scope.Subject,
		Lecture:    s.Scope.Lecture,
		Stage:      string(s.Stage),
		Percent:    s.Percent,
		Message:    s.Message,
		FailureTag: string(s.FailureTag),
		Error:      s.Error,
		RetryCount: s.RetryCount,
		UpdatedAt:  s.UpdatedAt,
	}
}

type eventDTO struct {
	JobID      string    `json:"job_id"`
	DocumentID string    `json:"document_id"`
	Stage      string    `json:"stage"`
	Percent    int       `json:"percent"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
}

func toEventDTO(e domain.ProgressEvent) eventDTO {
	return eventDTO{
		JobID:      e.JobID,
		DocumentID: e.DocumentID,
		Stage:      string(e.Stage),
		Percent:    e.Percent,
		Message:    e.Message,
		Time:       e.Time,
	}
}

type documentDTO struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SourceRef  string    `json:"source_ref"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages"`
	Error      string    `json:"error,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func toDocumentDTO(d *domain.Document) documentDTO {
	return documentDTO{
		ID:         d.ID,
		Title:      d.Title,
		SourceRef:  d.SourceRef,
		Status:     string(d.Status),
		Pages:      d.DeclaredPages,
		Error:      d.Error,
		UploadedAt: d.UploadedAt,
	}
}

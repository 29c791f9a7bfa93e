package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// ScopeInput names the subject and lecture a tool works on.
type ScopeInput struct {
	Subject string `json:"subject" jsonschema:"the subject (course) identifier"`
	Lecture string `json:"lecture" jsonschema:"the lecture identifier within the subject"`
}

func (in ScopeInput) scope() (domain.Scope, error) {
	return domain.NewScope(in.Subject, in.Lecture)
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	ScopeInput
	Question string `json:"question" jsonschema:"the question to answer from the lecture material"`
	UseWeb   bool   `json:"use_web,omitempty" jsonschema:"also search the web regardless of confidence"`
	Widen    bool   `json:"widen,omitempty" jsonschema:"search every lecture of the subject"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of lecture chunks to retrieve (default 3)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer      string         `json:"answer"`
	Unavailable bool           `json:"unavailable"`
	Sources     []SourceOutput `json:"sources"`
}

// SourceOutput is one attribution of an answer.
type SourceOutput struct {
	Kind       string  `json:"kind"`
	DocumentID string  `json:"document_id,omitempty"`
	Page       int     `json:"page,omitempty"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Confidence float64        `json:"confidence"`
	WebUsed    bool           `json:"web_used"`
	Entries    []EntryOutput `json:"entries"`
}

// EntryOutput is one retrieved context entry.
type EntryOutput struct {
	Marker     string  `json:"marker"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id,omitempty"`
	URL        string  `json:"url,omitempty"`
}

// SubmitInput is the input schema for the submit tool.
type SubmitInput struct {
	ScopeInput
	SourceRef string `json:"source_ref" jsonschema:"blob reference of an uploaded PDF"`
	Title     string `json:"title,omitempty" jsonschema:"display title"`
	Pages     int    `json:"pages,omitempty" jsonschema:"declared page count (0 = detect)"`
}

// SubmitOutput is the output schema for the submit tool.
type SubmitOutput struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
}

// JobInput is the input schema for the job_status tool.
type JobInput struct {
	JobID string `json:"job_id" jsonschema:"the ingestion job identifier"`
}

// JobOutput is the output schema for the job_status tool.
type JobOutput struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	FailureTag string `json:"failure_tag,omitempty"`
	Error      string `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from a lecture's indexed slides, citing pages",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Return the ranked lecture context for a question without generating an answer",
	}, s.handleRetrieve)

	if s.ports.Ingestion == nil {
		return
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "submit",
		Description: "Queue an uploaded lecture PDF for ingestion",
	}, s.handleSubmit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "job_status",
		Description: "Report the stage and progress of an ingestion job",
	}, s.handleJobStatus)
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, AskOutput{}, err
	}

	answer, err := s.ports.Ask.Ask(ctx, scope, input.Question, domain.AskOptions{
		UseWeb:         input.UseWeb,
		WidenToSubject: input.Widen,
		TopK:           input.TopK,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	output := AskOutput{
		Answer:      answer.Text,
		Unavailable: answer.Unavailable,
		Sources:     make([]SourceOutput, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		output.Sources[i] = SourceOutput{
			Kind:       string(src.Kind),
			DocumentID: src.DocumentID,
			Page:       src.PageNumber,
			Title:      src.Title,
			URL:        src.URL,
			Score:      src.Score,
		}
	}
	return nil, output, nil
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	result, err := s.ports.Ask.Retrieve(ctx, scope, input.Question, domain.RetrievalOptions{
		TopK:           input.TopK,
		UseWeb:         input.UseWeb,
		WidenToSubject: input.Widen,
	})
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Confidence: result.Confidence,
		WebUsed:    result.WebUsed,
		Entries:    make([]EntryOutput, len(result.Entries)),
	}
	for i, e := range result.Entries {
		output.Entries[i] = EntryOutput{
			Marker:     e.Marker(),
			Text:       e.Text,
			Score:      e.Score,
			DocumentID: e.DocumentID,
			URL:        e.URL,
		}
	}
	return nil, output, nil
}

// handleSubmit handles the submit tool invocation.
func (s *Server) handleSubmit(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitInput,
) (*mcp.CallToolResult, SubmitOutput, error) {
	scope, err := input.scope()
	if err != nil {
		return nil, SubmitOutput{}, err
	}

	res, err := s.ports.Ingestion.SubmitDocument(ctx, driving.SubmitRequest{
		Scope:         scope,
		SourceRef:     input.SourceRef,
		Title:         input.Title,
		DeclaredPages: input.Pages,
	})
	if err != nil {
		return nil, SubmitOutput{}, fmt.Errorf("submitting document: %w", err)
	}
	return nil, SubmitOutput{JobID: res.JobID, DocumentID: res.DocumentID}, nil
}

// handleJobStatus handles the job_status tool invocation.
func (s *Server) handleJobStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input JobInput,
) (*mcp.CallToolResult, JobOutput, error) {
	status, err := s.ports.Ingestion.GetJobStatus(ctx, input.JobID)
	if err != nil {
		return nil, JobOutput{}, fmt.Errorf("getting job status: %w", err)
	}
	return nil, jobOutput(status), nil
}

func jobOutput(st *domain.JobStatus) JobOutput {
	return JobOutput{
		JobID:      st.JobID,
		DocumentID: st.DocumentID,
		Stage:      string(st.Stage),
		Percent:    st.Percent,
		Message:    st.Message,
		FailureTag: string(st.FailureTag),
		Error:      st.Error,
	}
}

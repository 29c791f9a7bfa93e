package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for Lectern resources.
	uriScheme = "lectern://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Ingestion == nil {
		return
	}

	// Template for the documents of a lecture.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "scopes/{subject}/{lecture}/documents",
		Name:        "lecture-documents",
		Description: "Documents submitted to a lecture and their ingestion status",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// Template for job status.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "jobs/{jobId}",
		Name:        "job-status",
		Description: "Stage and progress of an ingestion job",
		MIMEType:    "application/json",
	}, s.handleJobResource)
}

// handleDocumentsResource returns documents for a lecture scope.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract scope from URI: lectern://scopes/{subject}/{lecture}/documents
	scope, ok := extractScope(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	docs, err := s.ports.Ingestion.ListDocuments(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	type docInfo struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
		Pages  int    `json:"pages"`
		Error  string `json:"error,omitempty"`
	}

	infos := make([]docInfo, len(docs))
	for i := range docs {
		infos[i] = docInfo{
			ID:     docs[i].ID,
			Title:  docs[i].Title,
			Status: string(docs[i].Status),
			Pages:  docs[i].DeclaredPages,
			Error:  docs[i].Error,
		}
	}

	return jsonResult(req.Params.URI, infos)
}

// handleJobResource returns the status of a single job.
func (s *Server) handleJobResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	jobID := extractJobID(req.Params.URI)
	if jobID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	status, err := s.ports.Ingestion.GetJobStatus(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting job status: %w", err)
	}

	return jsonResult(req.Params.URI, jobOutput(status))
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractScope extracts the scope from a URI like
// lectern://scopes/{subject}/{lecture}/documents.
func extractScope(uri string) (domain.Scope, bool) {
	const prefix = uriScheme + "scopes/"
	const suffix = "/documents"

	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return domain.Scope{}, false
	}

	rest := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	subject, lecture, ok := strings.Cut(rest, "/")
	if !ok || strings.Contains(lecture, "/") {
		return domain.Scope{}, false
	}

	scope, err := domain.NewScope(subject, lecture)
	if err != nil {
		return domain.Scope{}, false
	}
	return scope, true
}

// extractJobID extracts the job ID from a URI like lectern://jobs/{jobId}.
func extractJobID(uri string) string {
	const prefix = uriScheme + "jobs/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}

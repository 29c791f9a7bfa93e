package services

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Upload defaults.
const (
	DefaultMaxUploadMB = 50
)

// DefaultUploadExtensions lists the accepted upload file extensions.
var DefaultUploadExtensions = []string{"pdf"}

// contentTypes maps an accepted extension to its sniffed content type.
var contentTypes = map[string]string{
	"pdf": "application/pdf",
}

// UploadConfig limits what may be uploaded.
type UploadConfig struct {
	// MaxBytes is the largest accepted file. Zero uses DefaultMaxUploadMB.
	MaxBytes int64

	// Extensions lists the accepted extensions without the dot.
	Extensions []string
}

// Ensure Uploader implements the interface.
var _ driving.UploadService = (*Uploader)(nil)

// Uploader stores uploaded files in the blob store and submits them.
type Uploader struct {
	blobs  driven.BlobStore
	ingest driving.IngestionService
	cfg    UploadConfig

	// refLocks holds one mutex per upload ref. The idle check, the blob
	// write and the submission run under it, so a second upload of the
	// same file sees the first one's job.
	refLocks sync.Map
}

// NewUploader creates an uploader.
func NewUploader(blobs driven.BlobStore, ingest driving.IngestionService, cfg UploadConfig) *Uploader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadMB << 20
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultUploadExtensions
	}
	return &Uploader{blobs: blobs, ingest: ingest, cfg: cfg}
}

// MaxBytes returns the upload size limit.
func (u *Uploader) MaxBytes() int64 {
	return u.cfg.MaxBytes
}

// Accepts reports whether filename has an accepted extension.
func (u *Uploader) Accepts(filename string) bool {
	ext := extension(filename)
	for _, e := range u.cfg.Extensions {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}

// Upload validates the file, writes it under the scope's uploads prefix
// and submits it. Re-uploading a file with the same name reprocesses it.
func (u *Uploader) Upload(ctx context.Context, req driving.UploadRequest) (*driving.SubmitResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if req.Scope.IsSubjectWide() {
		return nil, fmt.Errorf("%w: documents belong to a lecture", domain.ErrInvalidInput)
	}
	if !u.Accepts(req.Filename) {
		return nil, fmt.Errorf("%w: %q, accepted extensions are %s",
			domain.ErrUnsupportedType, req.Filename, strings.Join(u.cfg.Extensions, ", "))
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidInput)
	}
	if int64(len(req.Data)) > u.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", domain.ErrInvalidInput, len(req.Data), u.cfg.MaxBytes)
	}
	if want, ok := contentTypes[extension(req.Filename)]; ok {
		if got := http.DetectContentType(req.Data); !strings.HasPrefix(got, want) {
			return nil, fmt.Errorf("%w: content is %s, not %s", domain.ErrUnsupportedType, got, want)
		}
	}

	ref := domain.UploadRef(req.Scope, req.Filename)
	unlock := u.lockRef(ref)
	defer unlock()

	// A running job still reads the old blob.
	if err := u.checkIdle(ctx, DocumentID(req.Scope, ref)); err != nil {
		return nil, err
	}
	if err := u.blobs.Put(ctx, ref, req.Data); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	logger.Debug("Stored upload %s (%d bytes)", ref, len(req.Data))

	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(ref), path.Ext(ref))
	}
	return u.ingest.SubmitDocument(ctx, driving.SubmitRequest{
		Scope:         req.Scope,
		SourceRef:     ref,
		Title:         title,
		DeclaredPages: req.DeclaredPages,
	})
}

func (u *Uploader) lockRef(ref string) func() {
	v, _ := u.refLocks.LoadOrStore(ref, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (u *Uploader) checkIdle(ctx context.Context, documentID string) error {
	jobs, err := u.ingest.ListJobs(ctx, activeStages()...)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if j.DocumentID == documentID {
			return fmt.Errorf("%w: job %s is %s", domain.ErrDuplicateSubmission, j.JobID, j.Stage)
		}
	}
	return nil
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

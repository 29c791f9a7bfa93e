package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// jobStore implements driven.JobStore.
type jobStore struct {
	store *Store
}

var _ driven.JobStore = (*jobStore)(nil)

const jobColumns = `id, document_id, subject, lecture, stage, percent, message, done, total,
	failure_tag, last_error, retry_count, cancel_requested, created_at, updated_at, ended_at`

// jobSelect adds the lease columns, which Put never writes.
const jobSelect = jobColumns + `, owner, lease_until`

// Get retrieves a job by ID.
func (s *jobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+jobSelect+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// Put creates or replaces a job.
func (s *jobStore) Put(ctx context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			subject = excluded.subject,
			lecture = excluded.lecture,
			stage = excluded.stage,
			percent = excluded.percent,
			message = excluded.message,
			done = excluded.done,
			total = excluded.total,
			failure_tag = excluded.failure_tag,
			last_error = excluded.last_error,
			retry_count = excluded.retry_count,
			cancel_requested = excluded.cancel_requested,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			ended_at = excluded.ended_at
	`, job.ID, job.DocumentID, job.Scope.Subject, job.Scope.Lecture, string(job.Stage),
		job.Percent, job.Message, job.Done, job.Total, string(job.FailureTag), job.LastError,
		job.RetryCount, job.CancelRequested, job.CreatedAt.UTC(), job.UpdatedAt.UTC(), nullTime(job.EndedAt))
	if err != nil {
		return fmt.Errorf("saving job: %w", err)
	}
	return nil
}

// Claim takes or renews the lease on a job for owner in a single UPDATE,
// so concurrent claimers across processes see exactly one winner.
func (s *jobStore) Claim(ctx context.Context, id, owner string, now, until time.Time) (bool, error) {
	if owner == "" {
		return false, domain.ErrInvalidInput
	}
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE jobs SET owner = ?, lease_until = ?
		WHERE id = ? AND (owner = '' OR owner = ? OR lease_until <= ?)
	`, owner, until.UnixNano(), id, owner, now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.store.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	return false, nil
}

// Release drops owner's lease on a job.
func (s *jobStore) Release(ctx context.Context, id, owner string) error {
	_, err := s.store.db.ExecContext(ctx,
		`UPDATE jobs SET owner = '', lease_until = 0 WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("releasing job: %w", err)
	}
	return nil
}

// ListByStage returns jobs in any of stages, oldest first.
func (s *jobStore) ListByStage(ctx context.Context, stages ...domain.Stage) ([]domain.Job, error) {
	query := `SELECT ` + jobSelect + ` FROM jobs`
	args := make([]any, 0, len(stages))
	if len(stages) > 0 {
		placeholders := make([]string, len(stages))
		for i, st := range stages {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE stage IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at, id`
	return s.list(ctx, query, args...)
}

// ListByDocument returns every job of a document, oldest first.
func (s *jobStore) ListByDocument(ctx context.Context, documentID string) ([]domain.Job, error) {
	return s.list(ctx, `SELECT `+jobSelect+` FROM jobs WHERE document_id = ? ORDER BY created_at, id`, documentID)
}

func (s *jobStore) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job //nolint:prealloc // size unknown from query
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// scanJob scans a single job row. sql.ErrNoRows is returned unwrapped.
func scanJob(row scanner) (*domain.Job, error) {
	var job domain.Job
	var stage, tag string
	var createdAt, updatedAt, endedAt sql.NullTime
	var leaseUntil int64

	if err := row.Scan(&job.ID, &job.DocumentID, &job.Scope.Subject, &job.Scope.Lecture, &stage,
		&job.Percent, &job.Message, &job.Done, &job.Total, &tag, &job.LastError,
		&job.RetryCount, &job.CancelRequested, &createdAt, &updatedAt, &endedAt,
		&job.Owner, &leaseUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}

	job.Stage = domain.Stage(stage)
	job.FailureTag = domain.FailureTag(tag)
	job.CreatedAt = timeOf(createdAt)
	job.UpdatedAt = timeOf(updatedAt)
	job.EndedAt = timeOf(endedAt)
	if leaseUntil != 0 {
		job.LeaseUntil = time.Unix(0, leaseUntil).UTC()
	}
	return &job, nil
}

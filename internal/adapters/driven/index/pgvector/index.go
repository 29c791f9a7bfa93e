// Package pgvector provides a KnowledgeIndex on PostgreSQL with the
// pgvector extension, accessed through bun.
//
// All subjects share one table. Scope filters are plain column predicates
// and similarity is 1 - cosine distance (the <=> operator).
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// DefaultTable is the table holding index entries.
const DefaultTable = "lectern_index"

// Ensure Index implements the interface.
var _ driven.KnowledgeIndex = (*Index)(nil)

// indexRow is one stored entry.
type indexRow struct {
	bun.BaseModel `bun:"table:lectern_index,alias:x"`

	ChunkID      string    `bun:"chunk_id,pk"`
	DocumentID   string    `bun:"document_id,notnull"`
	Subject      string    `bun:"subject,notnull"`
	Lecture      string    `bun:"lecture,notnull"`
	PageNumber   int       `bun:"page_number,notnull"`
	Content      string    `bun:"content,notnull"`
	DocumentTime time.Time `bun:"document_time,notnull"`
	Embedding    Vector    `bun:"embedding,notnull"`

	Score float64 `bun:"score,scanonly"`
}

// Index implements driven.KnowledgeIndex on PostgreSQL.
type Index struct {
	db   *bun.DB
	dims int
}

// Open connects to dsn, installs the extension and creates the table.
func Open(ctx context.Context, dsn string, dims int) (*Index, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(queryLogger{})

	x := &Index{db: db, dims: dims}
	if err := x.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return x, nil
}

func (x *Index) init(ctx context.Context) error {
	if x.dims <= 0 {
		return fmt.Errorf("%w: vector dimensions must be positive", domain.ErrInvalidInput)
	}
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			lecture TEXT NOT NULL,
			page_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			document_time TIMESTAMPTZ NOT NULL,
			embedding vector(%d) NOT NULL
		)`, DefaultTable, x.dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_scope ON %[1]s (subject, lecture)", DefaultTable),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %[1]s_document ON %[1]s (document_id)", DefaultTable),
	}
	for _, stmt := range stmts {
		if _, err := x.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init pgvector: %v", domain.ErrIndex, err)
		}
	}
	return nil
}

// Upsert stores entries, replacing existing ones by chunk ID.
func (x *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]indexRow, 0, len(entries))
	for _, e := range entries {
		if e.ChunkID == "" || len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry needs a chunk ID and vector", domain.ErrInvalidInput)
		}
		if err := e.Scope.Validate(); err != nil {
			return err
		}
		rows = append(rows, indexRow{
			ChunkID:      e.ChunkID,
			DocumentID:   e.DocumentID,
			Subject:      e.Scope.Subject,
			Lecture:      e.Scope.Lecture,
			PageNumber:   e.PageNumber,
			Content:      e.Content,
			DocumentTime: e.DocumentTime.UTC(),
			Embedding:    Vector(e.Vector),
		})
	}

	_, err := x.db.NewInsert().
		Model(&rows).
		On("CONFLICT (chunk_id) DO UPDATE").
		Set("document_id = EXCLUDED.document_id").
		Set("subject = EXCLUDED.subject").
		Set("lecture = EXCLUDED.lecture").
		Set("page_number = EXCLUDED.page_number").
		Set("content = EXCLUDED.content").
		Set("document_time = EXCLUDED.document_time").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrIndex, err)
	}
	return nil
}

// Query returns the k nearest entries inside a lecture scope.
func (x *Index) Query(ctx context.Context, scope domain.Scope, vector []float32, k int) ([]domain.IndexHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if scope.IsSubjectWide() {
		return nil, fmt.Errorf("%w: query needs a lecture scope", domain.ErrInvalidInput)
	}
	return x.search(ctx, scope, vector, k)
}

// QuerySubject returns the k nearest entries across a subject.
func (x *Index) QuerySubject(ctx context.Context, subject string, vector []float32, k int) ([]domain.IndexHit, error) {
	scope := domain.SubjectScope(subject)
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return x.search(ctx, scope, vector, k)
}

func (x *Index) search(ctx context.Context, scope domain.Scope, vector []float32, k int) ([]domain.IndexHit, error) {
	if k <= 0 {
		k = domain.DefaultTopK
	}
	vec := Vector(vector)

	var rows []indexRow
	q := x.db.NewSelect().
		Model(&rows).
		Column("chunk_id", "document_id", "page_number", "document_time").
		ColumnExpr("1 - (embedding <=> ?::vector) AS score", vec).
		Where("subject = ?", scope.Subject)
	if !scope.IsSubjectWide() {
		q = q.Where("lecture = ?", scope.Lecture)
	}
	err := q.OrderExpr("embedding <=> ?::vector", vec).
		OrderExpr("document_time DESC").
		OrderExpr("chunk_id").
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", domain.ErrIndex, scope, err)
	}

	hits := make([]domain.IndexHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, domain.IndexHit{
			ChunkID:      r.ChunkID,
			DocumentID:   r.DocumentID,
			PageNumber:   r.PageNumber,
			Score:        r.Score,
			DocumentTime: r.DocumentTime,
		})
	}
	// Re-sort so float rounding in the database cannot reorder equal scores.
	domain.SortHits(hits)
	return hits, nil
}

// Delete removes every entry of a document.
func (x *Index) Delete(ctx context.Context, scope domain.Scope, documentID string) error {
	q := x.db.NewDelete().
		Model((*indexRow)(nil)).
		Where("document_id = ?", documentID).
		Where("subject = ?", scope.Subject)
	if !scope.IsSubjectWide() {
		q = q.Where("lecture = ?", scope.Lecture)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete document %s: %v", domain.ErrIndex, documentID, err)
	}
	return nil
}

// DeleteScope removes every entry inside scope.
func (x *Index) DeleteScope(ctx context.Context, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	q := x.db.NewDelete().Model((*indexRow)(nil)).Where("subject = ?", scope.Subject)
	if !scope.IsSubjectWide() {
		q = q.Where("lecture = ?", scope.Lecture)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("%w: delete scope %s: %v", domain.ErrIndex, scope, err)
	}
	return nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

// queryLogger reports slow or failed statements at debug level.
type queryLogger struct{}

func (queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	if event.Err != nil && event.Err != sql.ErrNoRows {
		logger.Debug("pgvector %s failed after %s: %v", event.Operation(), elapsed, event.Err)
		return
	}
	if elapsed > 500*time.Millisecond {
		logger.Debug("pgvector %s took %s", event.Operation(), elapsed)
	}
}

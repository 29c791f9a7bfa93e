package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// dbFile is the database file name inside the data directory.
const dbFile = "lectern.db"

// Store is a unified SQLite-based storage that provides access to
// the document and job repositories through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.lectern/data/lectern.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".lectern", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	// Foreign keys are set per connection, so they go in the DSN.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// JobStore returns a JobStore interface backed by this store.
func (s *Store) JobStore() driven.JobStore {
	return &jobStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("getting schema version: %w", err)
	}
	return v, nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, subject, lecture, source_ref, title, declared_pages,
	status, error, uploaded_at, started_at, ended_at`

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			lecture = excluded.lecture,
			source_ref = excluded.source_ref,
			title = excluded.title,
			declared_pages = excluded.declared_pages,
			status = excluded.status,
			error = excluded.error,
			uploaded_at = excluded.uploaded_at,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`, doc.ID, doc.Scope.Subject, doc.Scope.Lecture, doc.SourceRef, doc.Title, doc.DeclaredPages,
		string(doc.Status), doc.Error, doc.UploadedAt.UTC(), nullTime(doc.StartedAt), nullTime(doc.EndedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// ListDocuments returns documents inside scope, oldest upload first.
func (s *documentStore) ListDocuments(ctx context.Context, scope domain.Scope) ([]domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE subject = ?`
	args := []any{scope.Subject}
	if !scope.IsSubjectWide() {
		query += ` AND lecture = ?`
		args = append(args, scope.Lecture)
	}
	query += ` ORDER BY uploaded_at, id`

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document. Derived rows go with it through
// ON DELETE CASCADE.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// DeleteDerived removes pages, regions, figures and chunks of a document.
func (s *documentStore) DeleteDerived(ctx context.Context, documentID string) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"chunks", "figures", "regions", "pages"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SavePage stores or updates a page.
func (s *documentStore) SavePage(ctx context.Context, page *domain.Page) error {
	if page == nil || page.DocumentID == "" || page.Number < 1 {
		return domain.ErrInvalidInput
	}

	texts := page.RegionTexts
	if texts == nil {
		texts = []string{}
	}
	textsJSON, err := json.Marshal(texts)
	if err != nil {
		return fmt.Errorf("marshalling region texts: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO pages (document_id, number, image_ref, width, height,
			classified, classify_fallback, extracted, region_texts, chunked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, number) DO UPDATE SET
			image_ref = excluded.image_ref,
			width = excluded.width,
			height = excluded.height,
			classified = excluded.classified,
			classify_fallback = excluded.classify_fallback,
			extracted = excluded.extracted,
			region_texts = excluded.region_texts,
			chunked = excluded.chunked
	`, page.DocumentID, page.Number, page.ImageRef, page.Width, page.Height,
		page.Classified, page.ClassifyFallback, page.Extracted, string(textsJSON), page.Chunked)
	if err != nil {
		return fmt.Errorf("saving page: %w", err)
	}
	return nil
}

// GetPages returns the pages of a document in page-number order.
func (s *documentStore) GetPages(ctx context.Context, documentID string) ([]domain.Page, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, number, image_ref, width, height,
			classified, classify_fallback, extracted, region_texts, chunked
		FROM pages WHERE document_id = ?
		ORDER BY number
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.Page //nolint:prealloc // size unknown from query
	for rows.Next() {
		var p domain.Page
		var textsJSON string
		if err := rows.Scan(&p.DocumentID, &p.Number, &p.ImageRef, &p.Width, &p.Height,
			&p.Classified, &p.ClassifyFallback, &p.Extracted, &textsJSON, &p.Chunked); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		if err := json.Unmarshal([]byte(textsJSON), &p.RegionTexts); err != nil {
			return nil, fmt.Errorf("unmarshalling region texts: %w", err)
		}
		if len(p.RegionTexts) == 0 {
			p.RegionTexts = nil
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return pages, nil
}

// SaveRegions replaces the regions of a page.
func (s *documentStore) SaveRegions(ctx context.Context, documentID string, page int, regions []domain.Region) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM regions WHERE document_id = ? AND page_number = ?", documentID, page); err != nil {
		return fmt.Errorf("clearing regions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO regions (document_id, page_number, idx, x, y, w, h, label, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range regions {
		if _, err := stmt.ExecContext(ctx, documentID, page, r.Index,
			r.Box.X, r.Box.Y, r.Box.W, r.Box.H, r.Label.String(), r.Confidence); err != nil {
			return fmt.Errorf("saving region: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetRegions returns the regions of a page in index order.
func (s *documentStore) GetRegions(ctx context.Context, documentID string, page int) ([]domain.Region, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id, page_number, idx, x, y, w, h, label, confidence
		FROM regions WHERE document_id = ? AND page_number = ?
		ORDER BY idx
	`, documentID, page)
	if err != nil {
		return nil, fmt.Errorf("querying regions: %w", err)
	}
	defer rows.Close()

	var regions []domain.Region //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.Region
		var label string
		if err := rows.Scan(&r.DocumentID, &r.PageNumber, &r.Index,
			&r.Box.X, &r.Box.Y, &r.Box.W, &r.Box.H, &label, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scanning region: %w", err)
		}
		if r.Label, err = domain.ParseLabel(label); err != nil {
			return nil, fmt.Errorf("scanning region: %w", err)
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating regions: %w", err)
	}
	return regions, nil
}

// SaveFigure stores or updates a figure.
func (s *documentStore) SaveFigure(ctx context.Context, figure *domain.Figure) error {
	if figure == nil || figure.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO figures (id, document_id, subject, lecture, page_number, sequence,
			image_ref, x, y, w, h, caption)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			subject = excluded.subject,
			lecture = excluded.lecture,
			page_number = excluded.page_number,
			sequence = excluded.sequence,
			image_ref = excluded.image_ref,
			x = excluded.x,
			y = excluded.y,
			w = excluded.w,
			h = excluded.h,
			caption = excluded.caption
	`, figure.ID, figure.DocumentID, figure.Scope.Subject, figure.Scope.Lecture,
		figure.PageNumber, figure.Sequence, figure.ImageRef,
		figure.Box.X, figure.Box.Y, figure.Box.W, figure.Box.H, figure.Caption)
	if err != nil {
		return fmt.Errorf("saving figure: %w", err)
	}
	return nil
}

// ListFigures returns the figures of a document in page then sequence order.
func (s *documentStore) ListFigures(ctx context.Context, documentID string) ([]domain.Figure, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, subject, lecture, page_number, sequence,
			image_ref, x, y, w, h, caption
		FROM figures WHERE document_id = ?
		ORDER BY page_number, sequence
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying figures: %w", err)
	}
	defer rows.Close()

	var figures []domain.Figure //nolint:prealloc // size unknown from query
	for rows.Next() {
		var f domain.Figure
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Scope.Subject, &f.Scope.Lecture,
			&f.PageNumber, &f.Sequence, &f.ImageRef,
			&f.Box.X, &f.Box.Y, &f.Box.W, &f.Box.H, &f.Caption); err != nil {
			return nil, fmt.Errorf("scanning figure: %w", err)
		}
		figures = append(figures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating figures: %w", err)
	}
	return figures, nil
}

const chunkColumns = `id, document_id, subject, lecture, page_number, position, content,
	word_count, kind, figure_ids, embedding, embed_skipped, indexed`

// SaveChunks stores or updates chunks by ID.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			subject = excluded.subject,
			lecture = excluded.lecture,
			page_number = excluded.page_number,
			position = excluded.position,
			content = excluded.content,
			word_count = excluded.word_count,
			kind = excluded.kind,
			figure_ids = excluded.figure_ids,
			embedding = excluded.embedding,
			embed_skipped = excluded.embed_skipped,
			indexed = excluded.indexed
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" || c.DocumentID == "" {
			return domain.ErrInvalidInput
		}
		figureIDs := c.FigureIDs
		if figureIDs == nil {
			figureIDs = []string{}
		}
		figuresJSON, err := json.Marshal(figureIDs)
		if err != nil {
			return fmt.Errorf("marshalling figure ids: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Scope.Subject, c.Scope.Lecture,
			c.PageNumber, c.Position, c.Content, c.WordCount, string(c.Kind), string(figuresJSON),
			float32SliceToBytes(c.Embedding), c.EmbedSkipped, c.Indexed); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunks returns the chunks of a document in page then position order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM chunks WHERE document_id = ?
		ORDER BY page_number, position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// GetChunk retrieves a chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// ==================== Helper Functions ====================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

// scanDocument scans a single document row. sql.ErrNoRows is returned unwrapped.
func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	var uploadedAt, startedAt, endedAt sql.NullTime

	if err := row.Scan(&doc.ID, &doc.Scope.Subject, &doc.Scope.Lecture, &doc.SourceRef, &doc.Title,
		&doc.DeclaredPages, &status, &doc.Error, &uploadedAt, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.UploadedAt = timeOf(uploadedAt)
	doc.StartedAt = timeOf(startedAt)
	doc.EndedAt = timeOf(endedAt)
	return &doc, nil
}

// scanChunk scans a single chunk row. sql.ErrNoRows is returned unwrapped.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var kind, figuresJSON string
	var embeddingBlob []byte

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Scope.Subject, &chunk.Scope.Lecture,
		&chunk.PageNumber, &chunk.Position, &chunk.Content, &chunk.WordCount, &kind, &figuresJSON,
		&embeddingBlob, &chunk.EmbedSkipped, &chunk.Indexed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Kind = domain.ChunkKind(kind)
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	if err := json.Unmarshal([]byte(figuresJSON), &chunk.FigureIDs); err != nil {
		return nil, fmt.Errorf("unmarshalling figure ids: %w", err)
	}
	if len(chunk.FigureIDs) == 0 {
		chunk.FigureIDs = nil
	}
	return &chunk, nil
}

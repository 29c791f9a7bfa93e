// Package chromem provides a KnowledgeIndex backed by chromem-go.
//
// Each subject is one collection; the lecture, document and page of every
// entry are stored as metadata. Lecture queries filter on the lecture key,
// subject queries search the whole collection.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

// Metadata keys.
const (
	metaLecture  = "lecture"
	metaDocument = "document_id"
	metaPage     = "page"
	metaDocTime  = "document_time"
)

// tieSlack is how many extra candidates are fetched so ties at the
// cut-off can be broken by document time.
const tieSlack = 8

// Ensure Index implements the interface.
var _ driven.KnowledgeIndex = (*Index)(nil)

// Index implements driven.KnowledgeIndex on a chromem-go database.
type Index struct {
	db *chromem.DB

	// chromem serialises writes per collection but collection creation
	// and deletion race, so both go through mu.
	mu sync.Mutex
}

// New opens a persistent index under dir. An empty dir keeps the index in memory.
func New(dir string, compress bool) (*Index, error) {
	if dir == "" {
		return &Index{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(dir, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem database: %w", err)
	}
	return &Index{db: db}, nil
}

func (x *Index) collection(subject string, create bool) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if c := x.db.GetCollection(subject, nil); c != nil || !create {
		return c, nil
	}
	// Vectors are always supplied, so no embedding function is needed.
	c, err := x.db.GetOrCreateCollection(subject, map[string]string{"kind": "subject"}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection %s: %v", domain.ErrIndex, subject, err)
	}
	return c, nil
}

// Upsert stores entries, replacing existing ones by chunk ID.
func (x *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	bySubject := make(map[string][]chromem.Document)
	for _, e := range entries {
		if e.ChunkID == "" || len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry needs a chunk ID and vector", domain.ErrInvalidInput)
		}
		if err := e.Scope.Validate(); err != nil {
			return err
		}
		bySubject[e.Scope.Subject] = append(bySubject[e.Scope.Subject], chromem.Document{
			ID:        e.ChunkID,
			Content:   e.Content,
			Embedding: append([]float32(nil), e.Vector...),
			Metadata: map[string]string{
				metaLecture:  e.Scope.Lecture,
				metaDocument: e.DocumentID,
				metaPage:     strconv.Itoa(e.PageNumber),
				metaDocTime:  e.DocumentTime.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	for subject, docs := range bySubject {
		c, err := x.collection(subject, true)
		if err != nil {
			return err
		}
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("%w: add documents: %v", domain.ErrIndex, err)
		}
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
	return x.search(ctx, scope.Subject, map[string]string{metaLecture: scope.Lecture}, vector, k)
}

// QuerySubject returns the k nearest entries across a subject.
func (x *Index) QuerySubject(ctx context.Context, subject string, vector []float32, k int) ([]domain.IndexHit, error) {
	scope := domain.SubjectScope(subject)
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return x.search(ctx, scope.Subject, nil, vector, k)
}

func (x *Index) search(ctx context.Context, subject string, where map[string]string,
	vector []float32, k int) ([]domain.IndexHit, error) {
	c, err := x.collection(subject, false)
	if err != nil || c == nil {
		return nil, err
	}
	count := c.Count()
	if count == 0 || len(vector) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = domain.DefaultTopK
	}
	n := min(count, k+tieSlack)

	results, err := c.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", domain.ErrIndex, subject, err)
	}

	hits := make([]domain.IndexHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, toHit(r))
	}
	domain.SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func toHit(r chromem.Result) domain.IndexHit {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	docTime, err := time.Parse(time.RFC3339Nano, r.Metadata[metaDocTime])
	if err != nil {
		logger.Debug("Entry %s has no document time: %v", r.ID, err)
	}
	return domain.IndexHit{
		ChunkID:      r.ID,
		DocumentID:   r.Metadata[metaDocument],
		PageNumber:   page,
		Score:        float64(r.Similarity),
		DocumentTime: docTime,
	}
}

// Delete removes every entry of a document.
func (x *Index) Delete(ctx context.Context, scope domain.Scope, documentID string) error {
	c, err := x.collection(scope.Subject, false)
	if err != nil || c == nil {
		return err
	}
	where := map[string]string{metaDocument: documentID}
	if !scope.IsSubjectWide() {
		where[metaLecture] = scope.Lecture
	}
	if err := c.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: delete document %s: %v", domain.ErrIndex, documentID, err)
	}
	return nil
}

// DeleteScope removes a lecture's entries, or the whole subject collection.
func (x *Index) DeleteScope(ctx context.Context, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if scope.IsSubjectWide() {
		x.mu.Lock()
		defer x.mu.Unlock()
		if x.db.GetCollection(scope.Subject, nil) == nil {
			return nil
		}
		if err := x.db.DeleteCollection(scope.Subject); err != nil {
			return fmt.Errorf("%w: delete collection %s: %v", domain.ErrIndex, scope.Subject, err)
		}
		return nil
	}

	c, err := x.collection(scope.Subject, false)
	if err != nil || c == nil {
		return err
	}
	if err := c.Delete(ctx, map[string]string{metaLecture: scope.Lecture}, nil); err != nil {
		return fmt.Errorf("%w: delete scope %s: %v", domain.ErrIndex, scope, err)
	}
	return nil
}

// Len returns the number of entries across every subject.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for _, c := range x.db.ListCollections() {
		n += c.Count()
	}
	return n
}

// Close is a no-op. Persistent writes are flushed per operation.
func (x *Index) Close() error {
	return nil
}

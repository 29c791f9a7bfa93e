// Package memory provides a brute-force in-memory knowledge index.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.KnowledgeIndex = (*Index)(nil)

// Index is an in-memory implementation of driven.KnowledgeIndex.
// Every query scans the entries of the requested scope.
type Index struct {
	mu      sync.RWMutex
	entries map[string]domain.IndexEntry
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]domain.IndexEntry)}
}

// Upsert stores entries, replacing existing ones by chunk ID.
func (x *Index) Upsert(_ context.Context, entries []domain.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		if e.ChunkID == "" || len(e.Vector) == 0 {
			return fmt.Errorf("%w: entry needs a chunk ID and vector", domain.ErrInvalidInput)
		}
		e.Vector = append([]float32(nil), e.Vector...)
		x.entries[e.ChunkID] = e
	}
	return nil
}

// Query returns the k nearest entries inside a lecture scope.
func (x *Index) Query(_ context.Context, scope domain.Scope, vector []float32, k int) ([]domain.IndexHit, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if scope.IsSubjectWide() {
		return nil, fmt.Errorf("%w: query needs a lecture scope", domain.ErrInvalidInput)
	}
	return x.search(vector, k, func(s domain.Scope) bool { return s == scope }), nil
}

// QuerySubject returns the k nearest entries across a subject.
func (x *Index) QuerySubject(_ context.Context, subject string, vector []float32, k int) ([]domain.IndexHit, error) {
	scope := domain.SubjectScope(subject)
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return x.search(vector, k, scope.Contains), nil
}

func (x *Index) search(vector []float32, k int, match func(domain.Scope) bool) []domain.IndexHit {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []domain.IndexHit
	for _, e := range x.entries {
		if !match(e.Scope) {
			continue
		}
		hits = append(hits, domain.IndexHit{
			ChunkID:      e.ChunkID,
			DocumentID:   e.DocumentID,
			PageNumber:   e.PageNumber,
			Score:        Cosine(vector, e.Vector),
			DocumentTime: e.DocumentTime,
		})
	}
	domain.SortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Delete removes every entry of a document.
func (x *Index) Delete(_ context.Context, scope domain.Scope, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.entries {
		if e.DocumentID == documentID && scope.Contains(e.Scope) {
			delete(x.entries, id)
		}
	}
	return nil
}

// DeleteScope removes every entry inside scope.
func (x *Index) DeleteScope(_ context.Context, scope domain.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.entries {
		if scope.Contains(e.Scope) {
			delete(x.entries, id)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Close is a no-op.
func (x *Index) Close() error {
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// zero or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

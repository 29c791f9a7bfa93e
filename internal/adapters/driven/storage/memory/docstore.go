package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

type pageKey struct {
	doc  string
	page int
}

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Values are copied in and out so callers never share slices with the store.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	pages     map[pageKey]domain.Page
	regions   map[pageKey][]domain.Region
	figures   map[string]domain.Figure
	chunks    map[string]domain.Chunk
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		pages:     make(map[pageKey]domain.Page),
		regions:   make(map[pageKey][]domain.Region),
		figures:   make(map[string]domain.Figure),
		chunks:    make(map[string]domain.Chunk),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// ListDocuments returns documents inside scope, oldest upload first.
func (s *DocumentStore) ListDocuments(_ context.Context, scope domain.Scope) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Document
	for id := range s.documents {
		doc := s.documents[id]
		if scope.Contains(doc.Scope) {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].UploadedAt.Before(result[j].UploadedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteDocument removes a document and every derived artifact.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	s.deleteDerived(id)
	return nil
}

// DeleteDerived removes pages, regions, figures and chunks of a document.
func (s *DocumentStore) DeleteDerived(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteDerived(documentID)
	return nil
}

func (s *DocumentStore) deleteDerived(documentID string) {
	for k := range s.pages {
		if k.doc == documentID {
			delete(s.pages, k)
		}
	}
	for k := range s.regions {
		if k.doc == documentID {
			delete(s.regions, k)
		}
	}
	for id, f := range s.figures {
		if f.DocumentID == documentID {
			delete(s.figures, id)
		}
	}
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
}

// SavePage stores or updates a page.
func (s *DocumentStore) SavePage(_ context.Context, page *domain.Page) error {
	if page == nil || page.DocumentID == "" || page.Number < 1 {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[pageKey{page.DocumentID, page.Number}] = copyPage(*page)
	return nil
}

// GetPages returns the pages of a document in page-number order.
func (s *DocumentStore) GetPages(_ context.Context, documentID string) ([]domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Page
	for k, p := range s.pages {
		if k.doc == documentID {
			result = append(result, copyPage(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// SaveRegions replaces the regions of a page.
func (s *DocumentStore) SaveRegions(_ context.Context, documentID string, page int, regions []domain.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[pageKey{documentID, page}] = append([]domain.Region(nil), regions...)
	return nil
}

// GetRegions returns the regions of a page in index order.
func (s *DocumentStore) GetRegions(_ context.Context, documentID string, page int) ([]domain.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := append([]domain.Region(nil), s.regions[pageKey{documentID, page}]...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

// SaveFigure stores or updates a figure.
func (s *DocumentStore) SaveFigure(_ context.Context, figure *domain.Figure) error {
	if figure == nil || figure.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.figures[figure.ID] = *figure
	return nil
}

// ListFigures returns the figures of a document in page then sequence order.
func (s *DocumentStore) ListFigures(_ context.Context, documentID string) ([]domain.Figure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Figure
	for _, f := range s.figures {
		if f.DocumentID == documentID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PageNumber != result[j].PageNumber {
			return result[i].PageNumber < result[j].PageNumber
		}
		return result[i].Sequence < result[j].Sequence
	})
	return result, nil
}

// SaveChunks stores or updates chunks by ID.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		if chunks[i].ID == "" {
			return domain.ErrInvalidInput
		}
		s.chunks[chunks[i].ID] = copyChunk(chunks[i])
	}
	return nil
}

// GetChunks returns the chunks of a document in page then position order.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			result = append(result, copyChunk(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PageNumber != result[j].PageNumber {
			return result[i].PageNumber < result[j].PageNumber
		}
		return result[i].Position < result[j].Position
	})
	return result, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c = copyChunk(c)
	return &c, nil
}

func copyPage(p domain.Page) domain.Page {
	p.RegionTexts = append([]string(nil), p.RegionTexts...)
	return p
}

func copyChunk(c domain.Chunk) domain.Chunk {
	c.FigureIDs = append([]string(nil), c.FigureIDs...)
	if c.Embedding != nil {
		c.Embedding = append([]float32(nil), c.Embedding...)
	}
	return c
}

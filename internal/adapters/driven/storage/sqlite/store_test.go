package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "lectern-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

var testScope = domain.Scope{Subject: "cs101", Lecture: "week1"}

// createTestDocument creates a document to satisfy foreign key constraints.
func createTestDocument(t *testing.T, store *Store, docID string, scope domain.Scope, uploaded time.Time) {
	t.Helper()
	doc := &domain.Document{
		ID:         docID,
		Scope:      scope,
		SourceRef:  scope.BlobPrefix() + "uploads/" + docID + ".pdf",
		Title:      "Deck " + docID,
		Status:     domain.DocumentQueued,
		UploadedAt: uploaded,
	}
	require.NoError(t, store.DocumentStore().SaveDocument(context.Background(), doc))
}

func baseTime() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	dbPath := filepath.Join(tempDir, "lectern.db")
	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)
	assert.NoError(t, store.db.Ping())
}

func TestNewStore_DirectoryCreation(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "nested", "path", "to", "db")
	store, err := NewStore(nestedDir)
	require.NoError(t, err)
	defer store.Close()

	assert.DirExists(t, nestedDir)
}

func TestNewStore_Migrations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	for _, table := range []string{"documents", "pages", "regions", "figures", "chunks", "jobs"} {
		var exists int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "table %s should exist", table)
	}
}

func TestNewStore_ReopenSkipsAppliedMigrations(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	createTestDocument(t, store, "doc-1", testScope, baseTime())
	require.NoError(t, store.Close())

	store, err = NewStore(tempDir)
	require.NoError(t, err)
	defer store.Close()

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	doc, err := store.DocumentStore().GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Deck doc-1", doc.Title)
}

func TestNewStore_ForeignKeysEnabled(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var fkEnabled int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled)
}

func TestStore_Close(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.NoError(t, store.Close())
	assert.Error(t, store.db.Ping())
}

// ==================== Document Tests ====================

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()

	started := baseTime().Add(time.Minute)
	doc := &domain.Document{
		ID:            "doc-1",
		Scope:         testScope,
		SourceRef:     "cs101/week1/uploads/doc-1.pdf",
		Title:         "Sorting",
		DeclaredPages: 12,
		Status:        domain.DocumentProcessing,
		UploadedAt:    baseTime(),
		StartedAt:     started,
	}
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err := docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, testScope, got.Scope)
	assert.Equal(t, "Sorting", got.Title)
	assert.Equal(t, 12, got.DeclaredPages)
	assert.Equal(t, domain.DocumentProcessing, got.Status)
	assert.True(t, got.UploadedAt.Equal(baseTime()))
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.EndedAt.IsZero())

	doc.Status = domain.DocumentFailed
	doc.Error = "boom"
	doc.EndedAt = started.Add(time.Minute)
	require.NoError(t, docs.SaveDocument(ctx, doc))

	got, err = docs.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.False(t, got.EndedAt.IsZero())
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.DocumentStore().GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.DocumentStore().SaveDocument(context.Background(), &domain.Document{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_ListDocumentsByScope(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	week2 := domain.Scope{Subject: "cs101", Lecture: "week2"}
	other := domain.Scope{Subject: "math", Lecture: "week1"}
	createTestDocument(t, store, "doc-b", testScope, baseTime().Add(time.Hour))
	createTestDocument(t, store, "doc-a", testScope, baseTime())
	createTestDocument(t, store, "doc-c", week2, baseTime())
	createTestDocument(t, store, "doc-d", other, baseTime())

	lecture, err := store.DocumentStore().ListDocuments(ctx, testScope)
	require.NoError(t, err)
	require.Len(t, lecture, 2)
	assert.Equal(t, "doc-a", lecture[0].ID)
	assert.Equal(t, "doc-b", lecture[1].ID)

	subject, err := store.DocumentStore().ListDocuments(ctx, domain.SubjectScope("cs101"))
	require.NoError(t, err)
	assert.Len(t, subject, 3)

	none, err := store.DocumentStore().ListDocuments(ctx, domain.Scope{Subject: "nope", Lecture: "x"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ==================== Page and Region Tests ====================

func TestDocumentStore_Pages(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, "doc-1", testScope, baseTime())

	for _, n := range []int{2, 1} {
		require.NoError(t, docs.SavePage(ctx, &domain.Page{
			DocumentID: "doc-1",
			Number:     n,
			ImageRef:   domain.PageImageRef(testScope, "doc-1", n),
			Width:      1280,
			Height:     720,
		}))
	}

	require.NoError(t, docs.SavePage(ctx, &domain.Page{
		DocumentID:  "doc-1",
		Number:      1,
		ImageRef:    domain.PageImageRef(testScope, "doc-1", 1),
		Width:       1280,
		Height:      720,
		Classified:  true,
		Extracted:   true,
		RegionTexts: []string{"Title", "Body text"},
	}))

	pages, err := docs.GetPages(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.True(t, pages[0].Classified)
	assert.True(t, pages[0].Extracted)
	assert.False(t, pages[0].Chunked)
	assert.Equal(t, []string{"Title", "Body text"}, pages[0].RegionTexts)
	assert.Equal(t, 2, pages[1].Number)
	assert.Nil(t, pages[1].RegionTexts)
}

func TestDocumentStore_SavePageInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.DocumentStore().SavePage(context.Background(), &domain.Page{DocumentID: "doc-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_SavePageRequiresDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.DocumentStore().SavePage(context.Background(), &domain.Page{DocumentID: "ghost", Number: 1})
	assert.Error(t, err)
}

func TestDocumentStore_RegionsReplace(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, "doc-1", testScope, baseTime())

	first := []domain.Region{
		{Index: 1, Box: domain.BoundingBox{X: 0, Y: 300, W: 600, H: 400}, Label: domain.LabelFigure, Confidence: 0.9},
		{Index: 0, Box: domain.BoundingBox{X: 0, Y: 0, W: 1280, H: 200}, Label: domain.LabelText, Confidence: 0.8},
	}
	require.NoError(t, docs.SaveRegions(ctx, "doc-1", 1, first))

	got, err := docs.GetRegions(ctx, "doc-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, domain.LabelText, got[0].Label)
	assert.Equal(t, domain.LabelFigure, got[1].Label)
	assert.Equal(t, domain.BoundingBox{X: 0, Y: 300, W: 600, H: 400}, got[1].Box)
	assert.InDelta(t, 0.9, got[1].Confidence, 1e-9)
	assert.Equal(t, "doc-1", got[1].DocumentID)
	assert.Equal(t, 1, got[1].PageNumber)

	// Re-classifying replaces rather than appends.
	require.NoError(t, docs.SaveRegions(ctx, "doc-1", 1, first[1:]))
	got, err = docs.GetRegions(ctx, "doc-1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := docs.GetRegions(ctx, "doc-1", 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

// ==================== Figure and Chunk Tests ====================

func TestDocumentStore_Figures(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, "doc-1", testScope, baseTime())

	for _, f := range []domain.Figure{
		{ID: "fig-2-1", DocumentID: "doc-1", Scope: testScope, PageNumber: 2, Sequence: 1},
		{ID: "fig-1-2", DocumentID: "doc-1", Scope: testScope, PageNumber: 1, Sequence: 2},
		{ID: "fig-1-1", DocumentID: "doc-1", Scope: testScope, PageNumber: 1, Sequence: 1,
			Box: domain.BoundingBox{X: 5, Y: 6, W: 7, H: 8}, Caption: "tree"},
	} {
		f.ImageRef = domain.FigureRef(testScope, "doc-1", f.PageNumber, f.Sequence)
		require.NoError(t, docs.SaveFigure(ctx, &f))
	}

	figures, err := docs.ListFigures(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, figures, 3)
	assert.Equal(t, "fig-1-1", figures[0].ID)
	assert.Equal(t, "fig-1-2", figures[1].ID)
	assert.Equal(t, "fig-2-1", figures[2].ID)
	assert.Equal(t, "tree", figures[0].Caption)
	assert.Equal(t, domain.BoundingBox{X: 5, Y: 6, W: 7, H: 8}, figures[0].Box)
	assert.Equal(t, testScope, figures[0].Scope)

	assert.ErrorIs(t, docs.SaveFigure(ctx, &domain.Figure{}), domain.ErrInvalidInput)
}

func TestDocumentStore_ChunksRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, "doc-1", testScope, baseTime())

	chunks := []domain.Chunk{
		{ID: "c-2-0", DocumentID: "doc-1", Scope: testScope, PageNumber: 2, Position: 0,
			Content: "Heaps", WordCount: 1, Kind: domain.ChunkHeading},
		{ID: "c-1-1", DocumentID: "doc-1", Scope: testScope, PageNumber: 1, Position: 1,
			Content: "Merge sort splits the input", WordCount: 5, Kind: domain.ChunkParagraph,
			FigureIDs: []string{"fig-1-1"}},
		{ID: "c-1-0", DocumentID: "doc-1", Scope: testScope, PageNumber: 1, Position: 0,
			Content: "Sorting", WordCount: 1, Kind: domain.ChunkHeading},
	}
	require.NoError(t, docs.SaveChunks(ctx, chunks))

	got, err := docs.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c-1-0", "c-1-1", "c-2-0"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []string{"fig-1-1"}, got[1].FigureIDs)
	assert.Nil(t, got[0].FigureIDs)
	assert.Nil(t, got[0].Embedding)
	assert.Equal(t, domain.ChunkParagraph, got[1].Kind)
	assert.Equal(t, 5, got[1].WordCount)

	// Embedding an existing chunk updates it in place.
	chunks[1].Embedding = []float32{0.25, -0.5, 1}
	chunks[1].Indexed = true
	chunks[2].EmbedSkipped = true
	require.NoError(t, docs.SaveChunks(ctx, chunks[1:]))

	one, err := docs.GetChunk(ctx, "c-1-1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, one.Embedding)
	assert.True(t, one.Indexed)
	assert.Equal(t, testScope, one.Scope)

	skipped, err := docs.GetChunk(ctx, "c-1-0")
	require.NoError(t, err)
	assert.True(t, skipped.EmbedSkipped)

	all, err := docs.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDocumentStore_GetChunkNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.DocumentStore().GetChunk(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_SaveChunksInvalidRollsBack(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, "doc-1", testScope, baseTime())

	err := docs.SaveChunks(ctx, []domain.Chunk{
		{ID: "c-1-0", DocumentID: "doc-1", Scope: testScope, PageNumber: 1, Content: "kept?"},
		{DocumentID: "doc-1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	got, err := docs.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ==================== Deletion Tests ====================

func seedDocument(t *testing.T, store *Store, docID string) {
	t.Helper()
	ctx := context.Background()
	docs := store.DocumentStore()
	createTestDocument(t, store, docID, testScope, baseTime())
	require.NoError(t, docs.SavePage(ctx, &domain.Page{DocumentID: docID, Number: 1}))
	require.NoError(t, docs.SaveRegions(ctx, docID, 1, []domain.Region{{Label: domain.LabelText}}))
	require.NoError(t, docs.SaveFigure(ctx, &domain.Figure{ID: docID + "-fig", DocumentID: docID, Scope: testScope, PageNumber: 1, Sequence: 1}))
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{{ID: docID + "-c", DocumentID: docID, Scope: testScope, PageNumber: 1, Content: "x"}}))
}

func assertNoDerived(t *testing.T, store *Store, docID string) {
	t.Helper()
	ctx := context.Background()
	docs := store.DocumentStore()

	pages, err := docs.GetPages(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, pages)
	regions, err := docs.GetRegions(ctx, docID, 1)
	require.NoError(t, err)
	assert.Empty(t, regions)
	figures, err := docs.ListFigures(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, figures)
	chunks, err := docs.GetChunks(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDocumentStore_DeleteDerivedKeepsDocument(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	seedDocument(t, store, "doc-1")
	seedDocument(t, store, "doc-2")

	require.NoError(t, store.DocumentStore().DeleteDerived(ctx, "doc-1"))

	_, err := store.DocumentStore().GetDocument(ctx, "doc-1")
	assert.NoError(t, err)
	assertNoDerived(t, store, "doc-1")

	chunks, err := store.DocumentStore().GetChunks(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestDocumentStore_DeleteDocumentCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	seedDocument(t, store, "doc-1")

	require.NoError(t, store.JobStore().Put(ctx, &domain.Job{
		ID: "job-1", DocumentID: "doc-1", Scope: testScope, Stage: domain.StageCompleted,
		CreatedAt: baseTime(), UpdatedAt: baseTime(),
	}))

	require.NoError(t, store.DocumentStore().DeleteDocument(ctx, "doc-1"))

	_, err := store.DocumentStore().GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assertNoDerived(t, store, "doc-1")

	job, err := store.JobStore().Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCompleted, job.Stage)

	// Deleting again is not an error.
	assert.NoError(t, store.DocumentStore().DeleteDocument(ctx, "doc-1"))
}

// ==================== Job Tests ====================

func TestJobStore_PutAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	jobs := store.JobStore()

	job := &domain.Job{
		ID:         "job-1",
		DocumentID: "doc-1",
		Scope:      testScope,
		Stage:      domain.StageExtracting,
		CreatedAt:  baseTime(),
		UpdatedAt:  baseTime(),
		RetryCount: 2,
	}
	job.SetProgress(9, 20, "page 9 of 20")
	require.NoError(t, jobs.Put(ctx, job))

	got, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageExtracting, got.Stage)
	assert.Equal(t, job.Percent, got.Percent)
	assert.Equal(t, "page 9 of 20", got.Message)
	assert.Equal(t, 9, got.Done)
	assert.Equal(t, 20, got.Total)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, testScope, got.Scope)
	assert.True(t, got.EndedAt.IsZero())

	job.CancelRequested = true
	job.Fail(domain.TagCancelled, nil, baseTime().Add(time.Minute))
	require.NoError(t, jobs.Put(ctx, job))

	got, err = jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageFailed, got.Stage)
	assert.Equal(t, domain.TagCancelled, got.FailureTag)
	assert.True(t, got.CancelRequested)
	assert.True(t, got.EndedAt.Equal(baseTime().Add(time.Minute)))
}

func TestJobStore_GetNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.JobStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobStore_PutInvalid(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.ErrorIs(t, store.JobStore().Put(context.Background(), &domain.Job{}), domain.ErrInvalidInput)
}

func TestJobStore_ListByStage(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	jobs := store.JobStore()

	put := func(id, doc string, stage domain.Stage, offset time.Duration) {
		created := baseTime().Add(offset)
		require.NoError(t, jobs.Put(ctx, &domain.Job{
			ID: id, DocumentID: doc, Scope: testScope, Stage: stage,
			CreatedAt: created, UpdatedAt: created,
		}))
	}
	put("job-c", "doc-2", domain.StageQueued, 2*time.Second)
	put("job-a", "doc-1", domain.StageQueued, 0)
	put("job-b", "doc-1", domain.StageEmbedding, time.Second)
	put("job-d", "doc-1", domain.StageCompleted, 3*time.Second)

	queued, err := jobs.ListByStage(ctx, domain.StageQueued)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, "job-a", queued[0].ID)
	assert.Equal(t, "job-c", queued[1].ID)

	active, err := jobs.ListByStage(ctx, domain.StageQueued, domain.StageEmbedding)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	all, err := jobs.ListByStage(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "job-d", all[3].ID)

	byDoc, err := jobs.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, byDoc, 3)
	assert.Equal(t, []string{"job-a", "job-b", "job-d"}, []string{byDoc[0].ID, byDoc[1].ID, byDoc[2].ID})
}

func TestJobStore_ClaimAndRelease(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	jobs := store.JobStore()
	now := baseTime()
	require.NoError(t, jobs.Put(ctx, &domain.Job{
		ID: "job-1", DocumentID: "doc-1", Scope: testScope, Stage: domain.StageExtracting,
		CreatedAt: now, UpdatedAt: now,
	}))

	ok, err := jobs.Claim(ctx, "job-1", "w1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = jobs.Claim(ctx, "job-1", "w2", now.Add(30*time.Second), now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "a live lease is not taken over")

	ok, err = jobs.Claim(ctx, "job-1", "w1", now.Add(30*time.Second), now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "the owner renews")

	got, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "w1", got.Owner)
	assert.True(t, got.LeaseUntil.Equal(now.Add(2*time.Minute)))
	assert.True(t, got.LeasedAt(now.Add(time.Minute)))

	// Put keeps the lease.
	got.Stage = domain.StageChunking
	got.Owner = ""
	require.NoError(t, jobs.Put(ctx, got))
	got, err = jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageChunking, got.Stage)
	assert.Equal(t, "w1", got.Owner)

	ok, err = jobs.Claim(ctx, "job-1", "w2", now.Add(2*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is taken over")

	require.NoError(t, jobs.Release(ctx, "job-1", "w1"))
	got, err = jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "w2", got.Owner, "only the owner releases")

	require.NoError(t, jobs.Release(ctx, "job-1", "w2"))
	got, err = jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, got.Owner)
	assert.True(t, got.LeaseUntil.IsZero())

	_, err = jobs.Claim(ctx, "missing", "w1", now, now.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobStore_ClaimAcrossConnections(t *testing.T) {
	tempDir := t.TempDir()
	first, err := NewStore(tempDir)
	require.NoError(t, err)
	defer first.Close()
	second, err := NewStore(tempDir)
	require.NoError(t, err)
	defer second.Close()

	ctx := context.Background()
	now := baseTime()
	require.NoError(t, first.JobStore().Put(ctx, &domain.Job{
		ID: "job-1", DocumentID: "doc-1", Scope: testScope, Stage: domain.StageQueued,
		CreatedAt: now, UpdatedAt: now,
	}))

	ok, err := first.JobStore().Claim(ctx, "job-1", "proc-a", now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.JobStore().Claim(ctx, "job-1", "proc-b", now.Add(time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

// ==================== Helper Tests ====================

func TestFloat32Bytes(t *testing.T) {
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))

	in := []float32{1.5, -2, 0, 3.25}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
}

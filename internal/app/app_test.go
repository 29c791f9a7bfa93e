package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/websearch/google"
	"github.com/custodia-labs/lectern/internal/adapters/driven/websearch/searxng"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

func testSettings(t *testing.T) Settings {
	t.Helper()
	t.Setenv("LECTERN_DATA_DIR", t.TempDir())
	t.Setenv("LECTERN_INDEX_BACKEND", IndexMemory)
	t.Setenv("LECTERN_INGEST_WORKERS", "1")
	s, err := LoadSettings(nil)
	require.NoError(t, err)
	return s
}

func TestNew_WiresServices(t *testing.T) {
	s := testSettings(t)

	a, err := New(context.Background(), s)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Ingestion)
	assert.NotNil(t, a.Ask)
	assert.NotNil(t, a.Upload)
	assert.NotNil(t, a.Progress)
	assert.NotNil(t, a.Scheduler)
	assert.FileExists(t, filepath.Join(s.DataDir, "data", "lectern.db"))
	assert.DirExists(t, filepath.Join(s.DataDir, "blobs"))
}

func TestNew_AskWithoutGeneratorIsUnavailable(t *testing.T) {
	a, err := New(context.Background(), testSettings(t))
	require.NoError(t, err)
	defer a.Close()

	scope, err := domain.NewScope("physics", "lecture-01")
	require.NoError(t, err)

	answer, err := a.Ask.Ask(context.Background(), scope, "what is momentum?", domain.AskOptions{})
	require.NoError(t, err)
	assert.True(t, answer.Unavailable)
	assert.Empty(t, answer.Sources)
}

func TestNew_UploadRejectsNonPDF(t *testing.T) {
	a, err := New(context.Background(), testSettings(t))
	require.NoError(t, err)
	defer a.Close()

	scope, err := domain.NewScope("physics", "lecture-01")
	require.NoError(t, err)

	_, err = a.Upload.Upload(context.Background(), driving.UploadRequest{
		Scope:    scope,
		Filename: "notes.pdf",
		Data:     []byte("plain text, not a pdf"),
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNew_BoltBlobs(t *testing.T) {
	t.Setenv("LECTERN_STORAGE_BLOBS", BlobsBolt)
	s := testSettings(t)

	a, err := New(context.Background(), s)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(s.DataDir, "blobs.db"))
	assert.NoError(t, err)
}

func TestNew_MemoryStorageLeavesNoFiles(t *testing.T) {
	t.Setenv("LECTERN_STORAGE_BLOBS", BlobsMemory)
	t.Setenv("LECTERN_STORAGE_METADATA", MetadataMemory)
	s := testSettings(t)

	a, err := New(context.Background(), s)
	require.NoError(t, err)
	defer a.Close()

	scope, err := domain.NewScope("physics", "lecture-01")
	require.NoError(t, err)
	docs, err := a.Ingestion.ListDocuments(context.Background(), scope)
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.NoDirExists(t, filepath.Join(s.DataDir, "data"))
	assert.NoDirExists(t, filepath.Join(s.DataDir, "blobs"))
}

func TestNew_ChromemIndex(t *testing.T) {
	s := testSettings(t)
	s.Index.Backend = IndexChromem

	a, err := New(context.Background(), s)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.DirExists(t, filepath.Join(s.DataDir, "index"))
}

func TestNew_RemoteLayoutWithoutURLFails(t *testing.T) {
	t.Setenv("LECTERN_LAYOUT_PROVIDER", LayoutRemote)
	s := testSettings(t)

	a, err := New(context.Background(), s)

	assert.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, a)
}

func TestNew_GoogleWebSearchWithoutEngineFails(t *testing.T) {
	t.Setenv("LECTERN_WEBSEARCH_PROVIDER", WebGoogle)
	t.Setenv("LECTERN_WEBSEARCH_API_KEY", "key")
	s := testSettings(t)

	_, err := New(context.Background(), s)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewWebSearch_Providers(t *testing.T) {
	ctx := context.Background()

	none, err := newWebSearch(ctx, WebSearchSettings{Provider: WebNone})
	require.NoError(t, err)
	assert.Nil(t, none)

	sx, err := newWebSearch(ctx, WebSearchSettings{Provider: WebSearXNG, BaseURL: "http://127.0.0.1:8888"})
	require.NoError(t, err)
	assert.IsType(t, &searxng.Search{}, sx)

	g, err := newWebSearch(ctx, WebSearchSettings{Provider: WebGoogle, EngineID: "cx", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &google.Search{}, g)
}

func TestNew_UnknownEmbeddingProviderFails(t *testing.T) {
	t.Setenv("LECTERN_EMBEDDING_PROVIDER", "word2vec")
	s := testSettings(t)

	_, err := New(context.Background(), s)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestApp_StartStop(t *testing.T) {
	a, err := New(context.Background(), testSettings(t))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Start(ctx))

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
}

func TestApp_CloseStopsWorkers(t *testing.T) {
	a, err := New(context.Background(), testSettings(t))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.NoError(t, a.Close())
}

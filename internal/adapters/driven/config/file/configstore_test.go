package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[ingest]
workers = 4
recovery = "fail"

[retrieval]
confidence_threshold = 0.5
top_k = 3

[chunker]
max_words = 200

[embedding]
threshold = 1

[websearch]
enabled = true
engines = ["duckduckgo", "wikipedia"]
`

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))
}

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_NestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "[ingest\nworkers = ")

	_, err := NewConfigStore(tmpDir)
	assert.Error(t, err)
}

func TestConfigStore_FlattensTables(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, sampleConfig)

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 4, store.GetInt("ingest.workers"))
	assert.Equal(t, "fail", store.GetString("ingest.recovery"))
	assert.InDelta(t, 0.5, store.GetFloat("retrieval.confidence_threshold"), 1e-9)
	assert.Equal(t, 3, store.GetInt("retrieval.top_k"))
	assert.True(t, store.GetBool("websearch.enabled"))
	assert.Equal(t, []string{"duckduckgo", "wikipedia"}, store.GetStringSlice("websearch.engines"))
	assert.True(t, store.Has("chunker.max_words"))
	assert.False(t, store.Has("chunker"))
}

func TestConfigStore_GetFloat(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, sampleConfig)
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	// Integers widen.
	assert.InDelta(t, 1.0, store.GetFloat("embedding.threshold"), 1e-9)
	assert.Zero(t, store.GetFloat("missing"))
	assert.Zero(t, store.GetFloat("ingest.recovery"))

	require.NoError(t, store.Set("x", float32(0.25)))
	assert.InDelta(t, 0.25, store.GetFloat("x"), 1e-6)
	require.NoError(t, store.Set("y", 7))
	assert.InDelta(t, 7.0, store.GetFloat("y"), 1e-9)
}

func TestConfigStore_WrongTypes(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, sampleConfig)
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Empty(t, store.GetString("ingest.workers"))
	assert.Zero(t, store.GetInt("ingest.recovery"))
	assert.False(t, store.GetBool("ingest.workers"))
	assert.Nil(t, store.GetStringSlice("ingest.workers"))

	val, ok := store.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_SetPersists(t *testing.T) {
	tmpDir := t.TempDir()

	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store1.Set("llm.model", "gpt-4o-mini"))
	require.NoError(t, store1.Set("ingest.workers", 3))
	require.NoError(t, store1.Set("websearch.enabled", true))
	require.NoError(t, store1.Set("retrieval.confidence_threshold", 0.42))

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", store2.GetString("llm.model"))
	assert.Equal(t, 3, store2.GetInt("ingest.workers"))
	assert.True(t, store2.GetBool("websearch.enabled"))
	assert.InDelta(t, 0.42, store2.GetFloat("retrieval.confidence_threshold"), 1e-9)
}

func TestConfigStore_FilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Save())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestConfigStore_LoadCommentOnly(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "# nothing here\n\n")

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	_, ok := store.Get("any")
	assert.False(t, ok)
}

func TestConfigStore_LoadReplacesValues(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("stale", "yes"))

	writeConfig(t, tmpDir, sampleConfig)
	require.NoError(t, store.Load())

	assert.False(t, store.Has("stale"))
	assert.Equal(t, 4, store.GetInt("ingest.workers"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("ingest.workers", n)
			_ = store.GetInt("ingest.workers")
			_ = store.GetFloat("ingest.workers")
		}(i)
	}
	wg.Wait()

	assert.True(t, store.Has("ingest.workers"))
}

func TestConfigStore_GetStringSliceNumbers(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "[ingest.retry.embedding]\nbackoff_ms = [100, 2500]\n")
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "2500"}, store.GetStringSlice("ingest.retry.embedding.backoff_ms"))
}

func TestConfigStore_SaveWritesTables(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("retrieval.confidence_threshold", 0.4))
	require.NoError(t, store.Set("retrieval.top_k", 5))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[retrieval]")
	assert.NotContains(t, string(data), "'retrieval.top_k'")
}

func TestConfigStore_SetRejectsConflicts(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.model", "gpt-4o-mini"))

	assert.Error(t, store.Set("llm", "openai"))
	assert.Error(t, store.Set("llm.model.name", "x"))
	assert.Error(t, store.Set("", "x"))
	assert.Error(t, store.Set("llm.", "x"))
}

func TestConfigStore_KeysAndUnset(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, sampleConfig)
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	keys := store.Keys()
	assert.Contains(t, keys, "ingest.workers")
	assert.IsIncreasing(t, keys)

	require.NoError(t, store.Unset("ingest.workers"))
	require.NoError(t, store.Unset("never.set"))

	reopened, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.False(t, reopened.Has("ingest.workers"))
	assert.Equal(t, "fail", reopened.GetString("ingest.recovery"))
}

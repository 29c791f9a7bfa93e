package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

var errBadBackend = errors.New("unknown index backend")

// setupConfig installs a file config store whose validator rejects
// index.backend = "faiss".
func setupConfig(t *testing.T) *file.ConfigStore {
	t.Helper()
	store, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)

	SetServices(Services{
		Config: store,
		ValidateConfig: func(c driven.ConfigStore) error {
			if c.GetString("index.backend") == "faiss" {
				return errBadBackend
			}
			return nil
		},
	})
	resetFlags()
	t.Cleanup(func() {
		SetServices(Services{})
		resetFlags()
	})
	return store
}

func TestConfigCmd_Path(t *testing.T) {
	store := setupConfig(t)

	out, err := execute("config", "path")

	require.NoError(t, err)
	assert.Equal(t, store.Path(), strings.TrimSpace(out))
}

func TestConfigCmd_SetAndGet(t *testing.T) {
	store := setupConfig(t)

	out, err := execute("config", "set", "retrieval.confidence_threshold", "0.4")
	require.NoError(t, err)
	assert.Contains(t, out, "Set retrieval.confidence_threshold")
	assert.InDelta(t, 0.4, store.GetFloat("retrieval.confidence_threshold"), 1e-9)

	out, err = execute("config", "get", "retrieval.confidence_threshold")
	require.NoError(t, err)
	assert.Equal(t, "0.4", strings.TrimSpace(out))
}

func TestConfigCmd_SetTypes(t *testing.T) {
	store := setupConfig(t)

	_, err := execute("config", "set", "ingest.workers", "3")
	require.NoError(t, err)
	_, err = execute("config", "set", "websearch.enabled", "true")
	require.NoError(t, err)
	_, err = execute("config", "set", "ingest.retry.embedding.backoff_ms", "[200, 1000]")
	require.NoError(t, err)

	assert.Equal(t, 3, store.GetInt("ingest.workers"))
	assert.True(t, store.GetBool("websearch.enabled"))
	assert.Equal(t, []string{"200", "1000"}, store.GetStringSlice("ingest.retry.embedding.backoff_ms"))
}

func TestConfigCmd_InvalidSetIsReverted(t *testing.T) {
	store := setupConfig(t)
	require.NoError(t, store.Set("index.backend", "memory"))

	_, err := execute("config", "set", "index.backend", "faiss")

	require.Error(t, err)
	assert.ErrorIs(t, err, errBadBackend)
	assert.Equal(t, "memory", store.GetString("index.backend"))
}

func TestConfigCmd_InvalidNewKeyIsRemoved(t *testing.T) {
	store := setupConfig(t)

	_, err := execute("config", "set", "index.backend", "faiss")

	require.Error(t, err)
	assert.False(t, store.Has("index.backend"))
}

func TestConfigCmd_Unset(t *testing.T) {
	store := setupConfig(t)
	require.NoError(t, store.Set("llm.model", "gpt-4o-mini"))

	out, err := execute("config", "unset", "llm.model")
	require.NoError(t, err)
	assert.Contains(t, out, "Unset llm.model")
	assert.False(t, store.Has("llm.model"))

	out, err = execute("config", "unset", "llm.model")
	require.NoError(t, err)
	assert.Contains(t, out, "llm.model is not set")
}

func TestConfigCmd_GetMissing(t *testing.T) {
	setupConfig(t)

	_, err := execute("config", "get", "llm.model")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set")
}

func TestConfigCmd_List(t *testing.T) {
	store := setupConfig(t)

	out, err := execute("config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No settings in")

	require.NoError(t, store.Set("llm.model", "gpt-4o-mini"))
	require.NoError(t, store.Set("ingest.workers", 2))

	out, err = execute("config", "list")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "ingest.workers = 2"), strings.Index(out, "llm.model = gpt-4o-mini"))

	out, err = execute("config", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"llm.model": "gpt-4o-mini"`)
}

func TestConfigCmd_WithoutStore(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("config", "path")

	assert.ErrorIs(t, err, errNotConfigured)
}

func TestIsConfigCommand(t *testing.T) {
	assert.True(t, IsConfigCommand([]string{"config"}))
	assert.True(t, IsConfigCommand([]string{"config", "set", "a.b", "1"}))
	assert.True(t, IsConfigCommand([]string{"-v", "config", "list"}))
	assert.False(t, IsConfigCommand([]string{"ask", "what?"}))
	assert.False(t, IsConfigCommand(nil))
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"true", true},
		{"false", false},
		{"1", int64(1)},
		{"0.35", 0.35},
		{"chromem", "chromem"},
		{"[]", []any{}},
		{"[100, 2500]", []any{int64(100), int64(2500)}},
		{`["a", "b"]`, []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseConfigValue(tt.raw))
		})
	}
}

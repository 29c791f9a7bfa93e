package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driving/api"
	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/services"
	"github.com/custodia-labs/lectern/internal/postprocessors"
)

// EnvPrefix prefixes environment overrides. A key such as llm.api_key is
// overridden by LECTERN_LLM_API_KEY.
const EnvPrefix = "LECTERN_"

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDataDir   = "data_dir"
	keyPromptDir = "prompt_dir"
	keyLogFormat = "log.format"

	keyBlobBackend     = "storage.blobs"
	keyMetadataBackend = "storage.metadata"

	keyIndexBackend  = "index.backend"
	keyIndexDSN      = "index.dsn"
	keyIndexCompress = "index.compress"

	keyEmbedProvider  = "embedding.provider"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedModel     = "embedding.model"
	keyEmbedDims      = "embedding.dimensions"
	keyEmbedRate      = "embedding.rate"
	keyEmbedMaxWords  = "embedding.max_input_words"
	keyEmbedBatchSize = "embedding.batch_size"

	keyLLMProvider    = "llm.provider"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMModel       = "llm.model"
	keyLLMMaxTokens   = "llm.max_tokens"
	keyLLMTemperature = "llm.temperature"

	keyLayoutProvider = "layout.provider"
	keyLayoutBaseURL  = "layout.base_url"
	keyLayoutAPIKey   = "layout.api_key"
	keyLayoutRate     = "layout.rate"

	keyOverlapThreshold = "classifier.overlap_threshold"
	keyMinConfidence    = "classifier.min_confidence"

	keyOCRProvider  = "ocr.provider"
	keyOCRBinary    = "ocr.binary"
	keyOCRLanguage  = "ocr.language"
	keyRasterBinary = "raster.binary"

	keyIngestDPI       = "ingest.dpi"
	keyIngestWorkers   = "ingest.workers"
	keyIngestQueue     = "ingest.queue_size"
	keyIngestUnits     = "ingest.units_per_advance"
	keyIngestSalvage   = "ingest.salvage_partial"
	keyIngestRecovery  = "ingest.recovery"
	keyIngestLeaseTTL  = "ingest.lease_ttl_s"
	keyIngestRetryBase = "ingest.retry."

	keyChunkMaxWords     = "chunker.max_words"
	keyChunkHeadingWords = "chunker.heading_words"
	keyBoilerplateRatio  = "normaliser.boilerplate_ratio"
	keyBoilerplatePages  = "normaliser.min_pages"

	keyConfidenceThreshold = "retrieval.confidence_threshold"
	keyWebResults          = "retrieval.web_results"
	keyWebTimeoutMS        = "retrieval.web_timeout_ms"

	keyWebProvider = "websearch.provider"
	keyWebBaseURL  = "websearch.base_url"
	keyWebLanguage = "websearch.language"
	keyWebRate     = "websearch.rate"
	keyWebEngineID = "websearch.engine_id"
	keyWebAPIKey   = "websearch.api_key"
	keyWebToken    = "websearch.access_token"

	keyUploadMaxMB      = "upload.max_mb"
	keyUploadExtensions = "upload.extensions"

	keyServerAddr      = "server.addr"
	keyServerOrigins   = "server.cors_origins"
	keyServerHeartbeat = "server.heartbeat_s"

	keyWatchSettleMS = "watch.settle_ms"

	keyQueuePollInterval = "scheduler.queue_poll_interval_s"
)

// Backend names.
const (
	BlobsFilesystem = "filesystem"
	BlobsBolt       = "bolt"
	BlobsMemory     = "memory"

	MetadataSQLite = "sqlite"
	MetadataMemory = "memory"

	IndexChromem  = "chromem"
	IndexMemory   = "memory"
	IndexPGVector = "pgvector"

	LayoutWholePage = "wholepage"
	LayoutRemote    = "remote"

	OCRPDFText   = "pdftext"
	OCRTesseract = "tesseract"

	WebNone    = "none"
	WebSearXNG = "searxng"
	WebGoogle  = "google"
)

// Defaults not owned by an adapter or service package.
const (
	DefaultServerAddr  = ":8080"
	DefaultWatchSettle = 2 * time.Second
)

// Settings is the resolved application configuration.
type Settings struct {
	DataDir   string
	PromptDir string
	LogFormat string

	BlobBackend     string
	MetadataBackend string
	Index           IndexSettings

	Embedding ai.EmbeddingSettings
	Embedder  services.EmbedderConfig

	LLM      ai.GeneratorSettings
	Composer services.ComposerConfig

	Layout       LayoutSettings
	RegionPolicy services.RegionPolicy
	OCR          OCRSettings
	RasterBinary string

	Orchestrator services.OrchestratorConfig
	Chunker      postprocessors.Settings
	Normaliser   NormaliserSettings

	Retrieval services.RetrievalConfig
	WebSearch WebSearchSettings

	Upload    services.UploadConfig
	Server    api.Config
	Watch     time.Duration
	Scheduler domain.SchedulerConfig
}

// IndexSettings selects the knowledge index backend.
type IndexSettings struct {
	Backend  string
	DSN      string
	Compress bool
}

// LayoutSettings selects the region classifier.
type LayoutSettings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Rate     float64
}

// OCRSettings selects the text extractor.
type OCRSettings struct {
	Provider string
	Binary   string
	Language string
}

// NormaliserSettings configures repeated-line removal.
type NormaliserSettings struct {
	BoilerplateRatio float64
	MinPages         int
}

// WebSearchSettings selects the web search backend.
type WebSearchSettings struct {
	Provider string
	BaseURL  string
	Language string
	Rate     float64

	// Google Custom Search only.
	EngineID    string
	APIKey      string
	AccessToken string
}

// LoadSettings resolves settings from the config store, environment
// overrides and defaults, in that order of precedence: environment first.
// A nil store resolves from the environment and defaults only.
func LoadSettings(store driven.ConfigStore) (Settings, error) {
	r := reader{store: store, env: os.LookupEnv}

	dataDir := r.getString(keyDataDir, "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Settings{}, err
		}
		dataDir = filepath.Join(home, ".lectern")
	}

	orch := services.DefaultOrchestratorConfig()
	orch.DPI = r.getInt(keyIngestDPI, orch.DPI)
	orch.Workers = r.getInt(keyIngestWorkers, orch.Workers)
	orch.QueueSize = r.getInt(keyIngestQueue, orch.QueueSize)
	orch.UnitsPerAdvance = r.getInt(keyIngestUnits, orch.UnitsPerAdvance)
	orch.SalvagePartial = r.getBool(keyIngestSalvage, orch.SalvagePartial)
	orch.Recovery = services.RecoveryMode(r.getString(keyIngestRecovery, string(orch.Recovery)))
	if orch.Recovery != services.RecoveryResume && orch.Recovery != services.RecoveryFail {
		return Settings{}, invalid(keyIngestRecovery, string(orch.Recovery))
	}
	orch.LeaseTTL = r.getDuration(keyIngestLeaseTTL, time.Second, orch.LeaseTTL)
	orch.Retry = r.retryPolicies()

	sched := domain.DefaultSchedulerConfig()
	sched.Every[domain.TaskQueuePoll] = r.getDuration(keyQueuePollInterval, time.Second, sched.Interval(domain.TaskQueuePoll))

	s := Settings{
		DataDir:         dataDir,
		PromptDir:       r.getString(keyPromptDir, filepath.Join(dataDir, "prompts")),
		LogFormat:       r.getString(keyLogFormat, ""),
		BlobBackend:     strings.ToLower(r.getString(keyBlobBackend, BlobsFilesystem)),
		MetadataBackend: strings.ToLower(r.getString(keyMetadataBackend, MetadataSQLite)),
		Index: IndexSettings{
			Backend:  strings.ToLower(r.getString(keyIndexBackend, IndexChromem)),
			DSN:      r.getString(keyIndexDSN, ""),
			Compress: r.getBool(keyIndexCompress, false),
		},
		Embedding: ai.EmbeddingSettings{
			Provider:   r.getString(keyEmbedProvider, ai.EmbeddingHashing),
			BaseURL:    r.getString(keyEmbedBaseURL, ""),
			APIKey:     r.getString(keyEmbedAPIKey, ""),
			Model:      r.getString(keyEmbedModel, ""),
			Dimensions: r.getInt(keyEmbedDims, 0),
			Rate:       r.getFloat(keyEmbedRate, 0),
		},
		Embedder: services.EmbedderConfig{
			MaxInputWords: r.getInt(keyEmbedMaxWords, services.DefaultMaxInputWords),
			BatchSize:     r.getInt(keyEmbedBatchSize, services.DefaultBatchSize),
			Retry:         orch.Retry[domain.StageEmbedding],
		},
		LLM: ai.GeneratorSettings{
			Provider: r.getString(keyLLMProvider, ai.GeneratorNone),
			BaseURL:  r.getString(keyLLMBaseURL, ""),
			APIKey:   r.getString(keyLLMAPIKey, ""),
			Model:    r.getString(keyLLMModel, ""),
		},
		Composer: services.ComposerConfig{
			MaxTokens:   r.getInt(keyLLMMaxTokens, 0),
			Temperature: r.getFloat(keyLLMTemperature, 0),
		},
		Layout: LayoutSettings{
			Provider: strings.ToLower(r.getString(keyLayoutProvider, LayoutWholePage)),
			BaseURL:  r.getString(keyLayoutBaseURL, ""),
			APIKey:   r.getString(keyLayoutAPIKey, ""),
			Rate:     r.getFloat(keyLayoutRate, 0),
		},
		RegionPolicy: services.RegionPolicy{
			OverlapThreshold: r.getFloat(keyOverlapThreshold, services.DefaultOverlapThreshold),
			MinConfidence:    r.getFloat(keyMinConfidence, services.DefaultMinConfidence),
		},
		OCR: OCRSettings{
			Provider: strings.ToLower(r.getString(keyOCRProvider, OCRPDFText)),
			Binary:   r.getString(keyOCRBinary, ""),
			Language: r.getString(keyOCRLanguage, ""),
		},
		RasterBinary: r.getString(keyRasterBinary, ""),
		Orchestrator: orch,
		Chunker: postprocessors.Settings{
			"max_words":     r.getInt(keyChunkMaxWords, 0),
			"heading_words": r.getInt(keyChunkHeadingWords, 0),
		},
		Normaliser: NormaliserSettings{
			BoilerplateRatio: r.getFloat(keyBoilerplateRatio, 0),
			MinPages:         r.getInt(keyBoilerplatePages, 0),
		},
		Retrieval: services.RetrievalConfig{
			ConfidenceThreshold: r.getFloat(keyConfidenceThreshold, services.DefaultConfidenceThreshold),
			WebResults:          r.getInt(keyWebResults, services.DefaultWebResults),
			WebTimeout:          r.getDuration(keyWebTimeoutMS, time.Millisecond, services.DefaultWebTimeout),
		},
		WebSearch: WebSearchSettings{
			Provider: strings.ToLower(r.getString(keyWebProvider, WebNone)),
			BaseURL:  r.getString(keyWebBaseURL, ""),
			Language: r.getString(keyWebLanguage, ""),
			Rate:     r.getFloat(keyWebRate, 0),

			EngineID:    r.getString(keyWebEngineID, ""),
			APIKey:      r.getString(keyWebAPIKey, ""),
			AccessToken: r.getString(keyWebToken, ""),
		},
		Upload: services.UploadConfig{
			MaxBytes:   int64(r.getInt(keyUploadMaxMB, services.DefaultMaxUploadMB)) << 20,
			Extensions: r.getStrings(keyUploadExtensions, services.DefaultUploadExtensions),
		},
		Server: api.Config{
			Addr:           r.getString(keyServerAddr, DefaultServerAddr),
			AllowedOrigins: r.getStrings(keyServerOrigins, nil),
			Heartbeat:      r.getDuration(keyServerHeartbeat, time.Second, api.DefaultHeartbeat),
		},
		Watch:     r.getDuration(keyWatchSettleMS, time.Millisecond, DefaultWatchSettle),
		Scheduler: sched,
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch s.BlobBackend {
	case BlobsFilesystem, BlobsBolt, BlobsMemory:
	default:
		return invalid(keyBlobBackend, s.BlobBackend)
	}
	switch s.MetadataBackend {
	case MetadataSQLite, MetadataMemory:
	default:
		return invalid(keyMetadataBackend, s.MetadataBackend)
	}
	switch s.Index.Backend {
	case IndexChromem, IndexMemory:
	case IndexPGVector:
		if s.Index.DSN == "" {
			return invalid(keyIndexDSN, "")
		}
	default:
		return invalid(keyIndexBackend, s.Index.Backend)
	}
	switch s.Layout.Provider {
	case LayoutWholePage, LayoutRemote:
	default:
		return invalid(keyLayoutProvider, s.Layout.Provider)
	}
	switch s.OCR.Provider {
	case OCRPDFText, OCRTesseract:
	default:
		return invalid(keyOCRProvider, s.OCR.Provider)
	}
	switch s.WebSearch.Provider {
	case WebNone, WebSearXNG, WebGoogle:
	default:
		return invalid(keyWebProvider, s.WebSearch.Provider)
	}
	return nil
}

// retryPolicies reads ingest.retry.<stage>.attempts, .backoff_ms and
// .timeout_s for every working stage. Stages without any key keep the
// default policy.
func (r reader) retryPolicies() map[domain.Stage]domain.RetryPolicy {
	out := make(map[domain.Stage]domain.RetryPolicy)
	for _, stage := range domain.Stages() {
		if stage == domain.StageQueued || stage.IsTerminal() {
			continue
		}
		base := keyIngestRetryBase + string(stage) + "."
		if !r.has(base+"attempts") && !r.has(base+"backoff_ms") && !r.has(base+"timeout_s") {
			continue
		}
		def := domain.DefaultRetryPolicy
		policy := domain.RetryPolicy{
			MaxAttempts: r.getInt(base+"attempts", def.MaxAttempts),
			Backoff:     def.Backoff,
			Timeout:     r.getDuration(base+"timeout_s", time.Second, def.Timeout),
		}
		if ms := r.getStrings(base+"backoff_ms", nil); len(ms) > 0 {
			policy.Backoff = policy.Backoff[:0:0]
			for _, v := range ms {
				n, err := strconv.Atoi(strings.TrimSpace(v))
				if err != nil || n < 0 {
					continue
				}
				policy.Backoff = append(policy.Backoff, time.Duration(n)*time.Millisecond)
			}
		}
		out[stage] = policy
	}
	return out
}

func invalid(key, value string) error {
	return &SettingError{Key: key, Value: value}
}

// SettingError reports an unusable configuration value.
type SettingError struct {
	Key   string
	Value string
}

func (e *SettingError) Error() string {
	if e.Value == "" {
		return "invalid setting " + e.Key + ": value required"
	}
	return "invalid setting " + e.Key + ": " + strconv.Quote(e.Value)
}

// Unwrap lets callers test for domain.ErrInvalidInput.
func (e *SettingError) Unwrap() error {
	return domain.ErrInvalidInput
}

// EnvName returns the environment variable overriding key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// reader resolves keys from the environment, then the store.
type reader struct {
	store driven.ConfigStore
	env   func(string) (string, bool)
}

func (r reader) lookupEnv(key string) (string, bool) {
	v, ok := r.env(EnvName(key))
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r reader) has(key string) bool {
	if _, ok := r.lookupEnv(key); ok {
		return true
	}
	return r.store != nil && r.store.Has(key)
}

func (r reader) getString(key, defaultValue string) string {
	if v, ok := r.lookupEnv(key); ok {
		return v
	}
	if r.store != nil {
		if v := r.store.GetString(key); v != "" {
			return v
		}
	}
	return defaultValue
}

func (r reader) getInt(key string, defaultValue int) int {
	if v, ok := r.lookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		return defaultValue
	}
	if r.store != nil && r.store.Has(key) {
		return r.store.GetInt(key)
	}
	return defaultValue
}

func (r reader) getFloat(key string, defaultValue float64) float64 {
	if v, ok := r.lookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return defaultValue
	}
	if r.store != nil && r.store.Has(key) {
		return r.store.GetFloat(key)
	}
	return defaultValue
}

func (r reader) getBool(key string, defaultValue bool) bool {
	if v, ok := r.lookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return defaultValue
	}
	if r.store != nil && r.store.Has(key) {
		return r.store.GetBool(key)
	}
	return defaultValue
}

// getStrings reads a list. Environment values and plain config strings
// are comma separated.
func (r reader) getStrings(key string, defaultValue []string) []string {
	if v, ok := r.lookupEnv(key); ok {
		return splitList(v)
	}
	if r.store != nil {
		if list := r.store.GetStringSlice(key); len(list) > 0 {
			return list
		}
		if v := r.store.GetString(key); v != "" {
			return splitList(v)
		}
	}
	return defaultValue
}

// getDuration reads a number of units.
func (r reader) getDuration(key string, unit, defaultValue time.Duration) time.Duration {
	n := r.getInt(key, -1)
	if n < 0 {
		return defaultValue
	}
	return time.Duration(n) * unit
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

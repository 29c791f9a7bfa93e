// Package app wires the adapters and services of Lectern into a running
// application. It is the only package that knows every concrete adapter.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/lectern/internal/adapters/driven/ai"
	"github.com/custodia-labs/lectern/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern/internal/adapters/driven/figurestore"
	"github.com/custodia-labs/lectern/internal/adapters/driven/index/chromem"
	memindex "github.com/custodia-labs/lectern/internal/adapters/driven/index/memory"
	"github.com/custodia-labs/lectern/internal/adapters/driven/index/pgvector"
	"github.com/custodia-labs/lectern/internal/adapters/driven/layout/remote"
	"github.com/custodia-labs/lectern/internal/adapters/driven/layout/wholepage"
	"github.com/custodia-labs/lectern/internal/adapters/driven/ocr/pdftext"
	"github.com/custodia-labs/lectern/internal/adapters/driven/ocr/tesseract"
	"github.com/custodia-labs/lectern/internal/adapters/driven/progress"
	"github.com/custodia-labs/lectern/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/lectern/internal/adapters/driven/raster/pdftoppm"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/boltdb"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/filesystem"
	memstore "github.com/custodia-labs/lectern/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lectern/internal/adapters/driven/websearch/google"
	"github.com/custodia-labs/lectern/internal/adapters/driven/websearch/searxng"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/core/services"
	"github.com/custodia-labs/lectern/internal/logger"
	"github.com/custodia-labs/lectern/internal/normalisers/slidetext"
	"github.com/custodia-labs/lectern/internal/postprocessors"
)

// App holds the wired services. Close releases every adapter opened by New.
type App struct {
	Settings Settings

	Ingestion *services.Orchestrator
	Ask       *services.AskService
	Upload    *services.Uploader
	Progress  *progress.Broadcaster
	Scheduler *services.Scheduler

	closers []func() error

	mu      sync.Mutex
	running bool
	halt    context.CancelFunc
	done    chan struct{}
}

// New opens storage, builds the pipeline adapters and wires the services.
func New(ctx context.Context, s Settings) (*App, error) {
	a := &App{Settings: s}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	docs, jobs, err := a.openMetadata(s)
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobs(s)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, blobs.Close)

	embedSvc, err := openEmbedding(ctx, s)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, embedSvc.Close)

	index, err := openIndex(ctx, s, embedSvc.Dimensions())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index.Close)

	gen, err := ai.CreateGenerator(s.LLM)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	if gen != nil {
		a.closers = append(a.closers, gen.Close)
	} else {
		logger.Debug("No generation model configured; answers will be unavailable")
	}

	prompts, err := file.NewPromptStore(s.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("open prompt store: %w", err)
	}

	classifier, err := newClassifier(s.Layout)
	if err != nil {
		return nil, err
	}
	web, err := newWebSearch(ctx, s.WebSearch)
	if err != nil {
		return nil, err
	}
	chunker, err := postprocessors.Build(postprocessors.DefaultChunker, s.Chunker)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	raster := pdftoppm.New(s.RasterBinary)
	if !raster.Available() {
		logger.Warn("pdftoppm not found; ingestion jobs will fail at rasterizing")
	}

	embedder := services.NewEmbedder(embedSvc, s.Embedder)
	a.Progress = progress.NewBroadcaster()
	a.Ingestion = services.NewOrchestrator(services.OrchestratorDeps{
		Jobs:       jobs,
		Documents:  docs,
		Blobs:      blobs,
		Rasterizer: raster,
		Classifier: classifier,
		Extractor:  newExtractor(s.OCR, blobs),
		Figures:    figurestore.New(blobs),
		Normaliser: newNormaliser(s.Normaliser),
		Chunker:    chunker,
		Embedder:   embedder,
		Index:      index,
		Progress:   progress.Multi{a.Progress, progress.NewLogPublisher(logger.Get())},
	}, s.Orchestrator, s.RegionPolicy)

	composer := services.NewAnswerComposer(gen, s.Composer)
	composer.SetPromptStore(prompts)
	retrieval := services.NewRetrievalEngine(embedder, index, docs, web, s.Retrieval)
	a.Ask = services.NewAskService(retrieval, composer)
	a.Upload = services.NewUploader(blobs, a.Ingestion, s.Upload)
	a.Scheduler = services.NewScheduler(s.Scheduler, a.Ingestion)

	logger.Debug("Wired %s classifier, %s extractor, %s embeddings, %s index",
		classifier.Name(), s.OCR.Provider, embedSvc.ModelName(), s.Index.Backend)
	ok = true
	return a, nil
}

// Start launches the ingestion workers and the background scheduler.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	if err := a.Ingestion.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	a.running = true
	a.done = make(chan struct{})
	schedCtx, halt := context.WithCancel(ctx)
	a.halt = halt
	go func(done chan struct{}) {
		defer close(done)
		if err := a.Scheduler.Start(schedCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduler stopped: %v", err)
		}
	}(a.done)
	return nil
}

// Stop halts the scheduler and the workers. In-flight jobs resume on the
// next Start.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	err := a.Scheduler.Stop()
	// Covers a scheduler that had not entered its loop when Stop ran.
	a.halt()
	<-a.done
	return errors.Join(err, a.Ingestion.Stop())
}

// Close stops background work and releases every adapter.
func (a *App) Close() error {
	var errs []error
	if a.Ingestion != nil {
		errs = append(errs, a.Stop())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openMetadata opens the document and job stores. The memory backend keeps
// nothing across restarts and cannot share a queue with another process.
func (a *App) openMetadata(s Settings) (driven.DocumentStore, driven.JobStore, error) {
	if s.MetadataBackend == MetadataMemory {
		logger.Warn("Metadata is held in memory; documents and jobs are lost on exit")
		return memstore.NewDocumentStore(), memstore.NewJobStore(), nil
	}
	store, err := sqlite.NewStore(filepath.Join(s.DataDir, "data"))
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store.DocumentStore(), store.JobStore(), nil
}

func openBlobs(s Settings) (driven.BlobStore, error) {
	switch s.BlobBackend {
	case BlobsMemory:
		return memstore.NewBlobStore(), nil
	case BlobsBolt:
		store, err := boltdb.NewBlobStore(filepath.Join(s.DataDir, "blobs.db"))
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return store, nil
	default:
		store, err := filesystem.NewBlobStore(filepath.Join(s.DataDir, "blobs"))
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return store, nil
	}
}

// openEmbedding creates the embedding service. pgvector needs the vector
// width up front, so a model that only learns it on first contact is
// pinged here.
func openEmbedding(ctx context.Context, s Settings) (driven.EmbeddingService, error) {
	svc, err := ai.CreateEmbeddingService(s.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedding service: %w", err)
	}
	if s.Index.Backend != IndexPGVector || svc.Dimensions() > 0 {
		return svc, nil
	}
	svc.Close()
	return ai.CreateAndValidateEmbeddingService(ctx, s.Embedding)
}

func openIndex(ctx context.Context, s Settings, dims int) (driven.KnowledgeIndex, error) {
	switch s.Index.Backend {
	case IndexMemory:
		return memindex.New(), nil
	case IndexPGVector:
		x, err := pgvector.Open(ctx, s.Index.DSN, dims)
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		return x, nil
	default:
		x, err := chromem.New(filepath.Join(s.DataDir, "index"), s.Index.Compress)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		return x, nil
	}
}

func newClassifier(l LayoutSettings) (driven.RegionClassifier, error) {
	if l.Provider != LayoutRemote {
		return wholepage.Classifier{}, nil
	}
	c, err := remote.New(remote.Config{
		BaseURL:   l.BaseURL,
		APIKey:    l.APIKey,
		RateLimit: ratelimit.Config{RequestsPerSecond: l.Rate, Burst: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create layout classifier: %w", err)
	}
	return c, nil
}

func newExtractor(o OCRSettings, blobs driven.BlobStore) driven.TextExtractor {
	if o.Provider == OCRTesseract {
		x := tesseract.New(tesseract.Config{Binary: o.Binary, Language: o.Language})
		if !x.Available() {
			logger.Warn("tesseract not found; ingestion jobs will fail at extracting")
		}
		return x
	}
	return pdftext.New(blobs)
}

func newNormaliser(n NormaliserSettings) driven.TextNormaliser {
	var opts []slidetext.Option
	if n.BoilerplateRatio > 0 {
		opts = append(opts, slidetext.WithBoilerplateRatio(n.BoilerplateRatio))
	}
	if n.MinPages > 0 {
		opts = append(opts, slidetext.WithMinPages(n.MinPages))
	}
	return slidetext.New(opts...)
}

// newWebSearch returns nil when web augmentation is disabled.
func newWebSearch(ctx context.Context, w WebSearchSettings) (driven.WebSearch, error) {
	switch w.Provider {
	case WebSearXNG:
		s, err := searxng.New(searxng.Config{
			BaseURL:   w.BaseURL,
			Language:  w.Language,
			RateLimit: ratelimit.Config{RequestsPerSecond: w.Rate},
		})
		if err != nil {
			return nil, fmt.Errorf("create web search: %w", err)
		}
		return s, nil
	case WebGoogle:
		s, err := google.New(ctx, google.Config{
			EngineID:    w.EngineID,
			APIKey:      w.APIKey,
			AccessToken: w.AccessToken,
			Endpoint:    w.BaseURL,
			Language:    w.Language,
			RateLimit:   ratelimit.Config{RequestsPerSecond: w.Rate},
		})
		if err != nil {
			return nil, fmt.Errorf("create web search: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}

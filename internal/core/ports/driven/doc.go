// Package driven holds the interfaces the core calls out through: storage,
// page rendering, region classification, text extraction, embedding, the
// knowledge index, the LLM and web search. Adapters under
// internal/adapters/driven implement them; this package imports nothing but
// domain.
//
// Ingestion cannot run without a BlobStore, Rasterizer, RegionClassifier,
// TextExtractor, FigureStore, EmbeddingService, KnowledgeIndex,
// DocumentStore and JobStore. Three ports may be nil:
//
//   - Generator: ask replies with the answer-unavailable message.
//   - WebSearch: low-confidence retrieval keeps its indexed context only.
//   - ProgressPublisher: progress is visible only through job status.
package driven

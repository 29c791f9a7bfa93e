package driven

import "context"

// EmbeddingService turns chunk text and questions into vectors.
//
// For a given model the output is deterministic, and EmbedBatch returns
// exactly what Embed would for each text, in input order. Vectors stored
// under one model are never compared with vectors from another, so
// ModelName is recorded beside every indexed chunk.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length. It may be 0 until the first call
	// for models whose size is learned from a response.
	Dimensions() int
	ModelName() string

	// Ping checks the backend can serve the configured model.
	Ping(ctx context.Context) error
	Close() error
}

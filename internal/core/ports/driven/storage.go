package driven

import "context"

// BlobStore reads and writes opaque blobs by reference.
// References follow the path convention scope/document/page/figure-index,
// see domain.PageImageRef and domain.FigureRef.
type BlobStore interface {
	// Get returns the blob stored under ref.
	// Returns domain.ErrNotFound if nothing is stored there.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Put stores data under ref, replacing any previous blob.
	Put(ctx context.Context, ref string, data []byte) error

	// Delete removes a single blob. Missing blobs are not an error.
	Delete(ctx context.Context, ref string) error

	// DeletePrefix removes every blob whose reference starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases resources.
	Close() error
}

package domain

import "time"

// DocumentStatus is the lifecycle status of an uploaded deck.
type DocumentStatus string

// Document lifecycle statuses.
const (
	DocumentQueued     DocumentStatus = "queued"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document represents one uploaded slide deck.
// It is created on upload and mutated only by the orchestrator.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Scope is the owning subject/lecture.
	Scope Scope

	// SourceRef is the blob reference of the uploaded bytes.
	SourceRef string

	// Title is the human-readable title.
	Title string

	// DeclaredPages is the page count declared at upload.
	// Zero means the rasterizer's count is adopted.
	DeclaredPages int

	// Status is the lifecycle status.
	Status DocumentStatus

	// Error holds the failure detail when Status is DocumentFailed.
	Error string

	// UploadedAt is when the document was submitted.
	UploadedAt time.Time

	// StartedAt is when processing started. Zero until rasterizing begins.
	StartedAt time.Time

	// EndedAt is when processing reached a terminal state.
	EndedAt time.Time
}

// Page is one rendered page of a Document.
// The rendered image is immutable; the flags record which stages
// have durably materialised their output for the page.
type Page struct {
	// DocumentID links to the parent Document.
	DocumentID string

	// Number is the 1-based page number.
	Number int

	// ImageRef is the blob reference of the rendered image.
	ImageRef string

	// Width and Height are the rendered pixel dimensions.
	Width  int
	Height int

	// Classified is set once regions for the page are stored.
	Classified bool

	// ClassifyFallback is set when the classifier failed and the whole
	// page is treated as a single text region.
	ClassifyFallback bool

	// Extracted is set once RegionTexts are stored.
	Extracted bool

	// RegionTexts holds the raw extracted text per text region, in region order.
	RegionTexts []string

	// Chunked is set once chunks for the page are stored.
	Chunked bool
}

// Figure is a persisted crop of a figure region.
type Figure struct {
	// ID is the deterministic identifier for the figure.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Scope is the owning subject/lecture.
	Scope Scope

	// PageNumber is the source page.
	PageNumber int

	// Sequence is the 1-based index of the figure within its page.
	Sequence int

	// ImageRef is the blob reference of the cropped image.
	ImageRef string

	// Box is the region the crop was taken from.
	Box BoundingBox

	// Caption is an optional caption.
	Caption string
}

// ChunkKind tags the shape of a chunk's text.
type ChunkKind string

// Chunk kinds.
const (
	ChunkHeading   ChunkKind = "heading"
	ChunkParagraph ChunkKind = "paragraph"
	ChunkList      ChunkKind = "list"
)

// Chunk is a retrieval unit of cleaned text.
// Every chunk belongs to exactly one Document and is never split
// or merged after creation.
type Chunk struct {
	// ID is deterministic for (document, page, position).
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Scope is the owning subject/lecture.
	Scope Scope

	// PageNumber is the page the text was extracted from.
	PageNumber int

	// Position is the ordinal position within the page.
	Position int

	// Content is the cleaned text.
	Content string

	// WordCount is the number of whitespace-separated words in Content.
	WordCount int

	// Kind is the content-type tag.
	Kind ChunkKind

	// FigureIDs references figures co-located on the same page.
	FigureIDs []string

	// Embedding is the vector representation. Nil until embedded.
	Embedding []float32

	// EmbedSkipped is set when embedding permanently failed for the chunk.
	EmbedSkipped bool

	// Indexed is set once the chunk's entry is in the knowledge index.
	Indexed bool
}

// IndexEntry is one (chunk, vector, scope) tuple stored in the knowledge index.
type IndexEntry struct {
	ChunkID    string
	DocumentID string
	Scope      Scope
	PageNumber int
	Content    string
	Vector     []float32

	// DocumentTime orders otherwise equal hits, most recent first.
	DocumentTime time.Time
}

// IndexHit is a ranked match returned by the knowledge index.
type IndexHit struct {
	ChunkID      string
	DocumentID   string
	PageNumber   int
	Score        float64
	DocumentTime time.Time
}

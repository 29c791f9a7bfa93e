package driven

// TextNormaliser cleans raw extracted text before chunking.
// It sees every page of a document at once so repetition across pages
// can be detected.
type TextNormaliser interface {
	// Name returns the normaliser name for logging.
	Name() string

	// Normalise returns one cleaned text per page. pages[i] holds the raw
	// region texts of the i-th page, in region order.
	Normalise(pages [][]string) []string
}

package domain

import (
	"sort"
	"strconv"
)

// DefaultTopK is the number of indexed chunks retrieved per question.
const DefaultTopK = 3

// SourceKind distinguishes indexed chunks from external web results.
type SourceKind string

// Source kinds.
const (
	SourceIndexed SourceKind = "indexed"
	SourceWeb     SourceKind = "web"
)

// ContextEntry is one piece of retrieved context.
type ContextEntry struct {
	// Kind tags where the entry came from.
	Kind SourceKind

	// Score is the similarity score for indexed entries. Web entries carry
	// a descending rank-derived score so ordering stays deterministic.
	Score float64

	// Text is the chunk content or web snippet.
	Text string

	// Indexed entries only.
	ChunkID    string
	DocumentID string
	PageNumber int
	FigureIDs  []string

	// Web entries only.
	Title string
	URL   string
}

// Marker returns the provenance marker shown to the model.
func (e ContextEntry) Marker() string {
	if e.Kind == SourceWeb {
		return "[web]"
	}
	return "[page " + strconv.Itoa(e.PageNumber) + "]"
}

// RetrievalOptions configures a retrieval call.
type RetrievalOptions struct {
	// TopK is the number of indexed chunks to retrieve. Defaults to DefaultTopK.
	TopK int

	// UseWeb requests web augmentation regardless of confidence.
	UseWeb bool

	// WidenToSubject searches every lecture of the scope's subject.
	WidenToSubject bool
}

// RetrievalResult is the ranked context returned for a question.
type RetrievalResult struct {
	Entries []ContextEntry

	// Confidence is the top indexed similarity score, 0 when nothing matched.
	Confidence float64

	// WebUsed is true if the web search collaborator was invoked.
	WebUsed bool
}

// WebResult is one external search hit.
type WebResult struct {
	Title   string
	Snippet string
	URL     string
}

// AskOptions configures a question.
type AskOptions struct {
	UseWeb         bool
	WidenToSubject bool
	TopK           int
}

// Source is the attribution returned with an answer.
type Source struct {
	Kind       SourceKind
	DocumentID string
	ChunkID    string
	PageNumber int
	Title      string
	URL        string
	Score      float64
}

// Answer is the response to a question. Ask never fails; Unavailable
// reports that the answer text is the fallback message.
type Answer struct {
	Text        string
	Sources     []Source
	Unavailable bool
}

// SortHits orders hits by descending score, then most recent document,
// then chunk ID so equal inputs always produce the same order.
func SortHits(hits []IndexHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].DocumentTime.Equal(hits[j].DocumentTime) {
			return hits[i].DocumentTime.After(hits[j].DocumentTime)
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

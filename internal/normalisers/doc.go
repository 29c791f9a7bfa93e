// Package normalisers holds the text cleaners applied between extraction
// and chunking. slidetext cleans text recognised on slide pages and html
// strips markup from web search results.
package normalisers

// Package domain holds Lectern's vocabulary: the (subject, lecture) Scope
// that bounds every read and write, the Document and the Pages, Regions,
// Figures and Chunks cut from it, the Job that walks a Document through
// ingestion, and the ContextEntry and Answer types of the ask path.
//
// It imports only the standard library; every other package may import it.
package domain

// Package sqlite persists documents, their derived rows and ingestion jobs
// in one SQLite file (modernc.org/sqlite, no cgo), lectern.db under the data
// directory.
//
// Pages, regions, figures and chunks reference their document with ON DELETE
// CASCADE, so deleting a document removes everything cut from it. Jobs carry
// no such key: a job's terminal status can still be read after its document
// is gone.
//
// The connection opens in WAL mode with foreign keys on and a 5s busy
// timeout. The schema comes from the numbered .up.sql files in migrations/.
package sqlite

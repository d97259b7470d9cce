// Package catalog keeps a SQLite history of archive saves and loads.
//
// Each workspace save or load appends one event recording the archive path,
// its size, side-file count, and the shape of the animation it carried. The
// CLI history command reads it back. The database runs in WAL mode with a
// busy timeout, and writes retry on SQLITE_BUSY with exponential backoff.
//
// The schema is embedded and versioned; a database written by a different
// schema version is rejected with ErrSchemaMismatch rather than migrated.
package catalog

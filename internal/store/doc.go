// Package store provides the persistence backends for scan sessions.
//
// Two implementations of session.Store are available:
//
//   - FileStore keeps every session in a single YAML document. Writes go to a
//     temporary file that is renamed into place. Watch reports changes made by
//     other processes so a long-running catalog can reload.
//   - SQLiteStore keeps one row per session in a SQLite database. Device lists
//     are stored as CBOR blobs.
//
// Open selects a backend by name.
package store

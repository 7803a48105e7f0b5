// Package catalog holds the set of databases a sqlgate process serves.
//
// Databases are registered once at startup from the configured file list and
// are immutable afterwards, except for the content hash and file size which
// are computed lazily on first request.
//
// Naming:
//   - A file-backed database is named after its file stem ("fixtures.db" → "fixtures").
//   - The in-memory database is named ":memory:".
//   - Names are unique per process. Two files sharing a stem is a fatal
//     configuration error (DuplicateNameError).
package catalog

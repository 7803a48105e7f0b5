// Package store opens and caches SQLite connections.
//
// An Opener owns one *sql.DB per catalog database, built on a private
// mattn/go-sqlite3 driver whose ConnectHook prepares each connection exactly
// once:
//   - custom SQL functions (RegisterFunc)
//   - native extensions (driver Extensions, or LoadExtension for path:entry)
//   - PRAGMA cache_size when configured
//   - registered prepare callbacks, in order
//
// # Open Modes
//
//   - in-memory: ":memory:", a private anonymous database per connection
//   - mutable file: "file:<path>?mode=ro"
//   - immutable file: "file:<path>?immutable=1"
//
// # Ownership
//
// A Registry pins at most one connection per database for a single worker.
// Connections never migrate between registries, so a connection is only ever
// used by one goroutine at a time and needs no locking of its own.
package store

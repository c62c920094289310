// Package journal keeps a SQLite log of proxy state transitions.
//
// The supervisor itself persists nothing; the CLI subscribes a Journal so
// that `ironbelly-tor history` can show how past runs went. Each row is one
// published state tagged with the run it belongs to.
//
// SQLite is used through modernc.org/sqlite, which needs no cgo, in WAL
// mode so `history` can read while `run` writes.
package journal

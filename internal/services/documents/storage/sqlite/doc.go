// Package sqlite provides SQLite-backed document persistence.
//
// It stores the type catalog, holders, document instances with their
// append-only history, and per-holder conversation state. Instance writes are
// guarded by an optimistic version column so lifecycle transitions and the
// reminder scheduler never overwrite each other.
package sqlite

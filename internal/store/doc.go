// Package store persists review runs in SQLite.
//
// A run owns its checklist items, final results (one per item, written by
// upsert), per-document comments from large-document mode and the extracted
// documents that chat reuses. The chunk-count memo is shared across runs
// and keyed by file hash and purpose; it only ever grows.
package store

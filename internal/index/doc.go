// Package index persists the cache manifest: one row per finished
// rendition, keyed by dedup fingerprint. The manifest lets finished
// work survive process restarts and backs cache statistics and
// clearing.
//
// Storage is a single SQLite file opened in WAL mode.
package index

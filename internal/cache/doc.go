// Package cache produces and caches codec-normalized renditions of
// source media files.
//
// A Manager accepts job specs, deduplicates them by source identity
// (canonical path + size + mtime), runs at most one pipeline per
// identity under a bounded concurrency gate, and publishes finished
// files by atomic tmp-to-final rename so readers never observe partial
// output. Job transitions are broadcast as events to any number of
// subscribers.
package cache

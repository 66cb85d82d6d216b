// Package kvstore implements the crash-safe, file-backed key-value store
// each follower owns.
//
// # On-disk layout
//
// Every live key is a single file in the store directory. The filename is
// the lowercase hex encoding of ring.Hash64(key); since that hash is not
// invertible, the file body carries the key alongside the value so
// recovery can rebuild an in-memory index purely by scanning the
// directory. A mutation writes to a temporary file and renames it over
// the canonical name — rename is atomic on the platforms this runs on, so
// a reader never observes a half-written file, and a crash mid-write
// leaves the previous (or no) canonical file in place.
//
// # Concurrency
//
// Store is safe for concurrent use: an in-memory index (a cache over the
// one-time directory scan done at Open, not a second source of truth) is
// guarded by a sync.RWMutex, the same read/write discipline used
// elsewhere in this codebase for long-lived shared state.
package kvstore

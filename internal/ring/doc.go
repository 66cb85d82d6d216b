// Package ring implements the consistent-hashing ring used by the leader
// to decide which followers are responsible for a key.
//
// # Overview
//
// Followers are identified by the 64-bit hash of their "host:port" string.
// The ring keeps those IDs in sorted order; a key's primary is the first
// follower whose ID is greater than or equal to the key's hash, wrapping
// around to the lowest ID if the key hashes past the highest follower. The
// R replicas for a key are the primary followed by its R-1 successors,
// walking the ring clockwise.
//
// # Concurrency
//
// Ring is safe for concurrent use. Insert takes an exclusive lock; every
// lookup (Primary, Successor, Replicas, Records) takes a shared lock. The
// ring only grows (up to its fixed capacity) and never shrinks, so readers
// never observe a follower disappearing out from under them.
package ring

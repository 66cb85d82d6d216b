// Package tpclog implements the write-ahead log each follower uses to
// make its current 2PC transaction crash-recoverable.
//
// The log is a single append-only file. Each record is length-prefixed so
// that a record torn by a crash mid-append — the only consistency hazard
// an append-only file has — is detectable and discarded rather than
// misread, without needing a checksum. Append fsyncs before returning,
// matching the rule that a follower must not vote commit (or acknowledge
// a decision) until the corresponding record is durable.
//
// Only the most recent record matters for recovery (see
// internal/follower), so Truncate resets the log to empty once a
// transaction's outcome has been applied.
package tpclog

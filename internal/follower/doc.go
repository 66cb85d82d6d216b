// Package follower implements the 2PC participant state machine that runs
// on each storage node.
//
// # State machine
//
// A Follower is in INIT, READY, COMMIT, or ABORT (COMMIT/ABORT are
// transient: Handle always leaves the follower in INIT once a decision
// has been applied and the log truncated). WAIT exists only for symmetry
// with the leader's vocabulary and is never entered here.
//
//	INIT --PUTREQ/DELREQ(ok)--> READY --COMMIT--> INIT
//	INIT --PUTREQ/DELREQ(ok)--> READY --ABORT--> INIT
//	INIT --PUTREQ/DELREQ(rejected)--> INIT
//
// Every transition that changes durable state appends to the write-ahead
// log and fsyncs before the in-memory state or the KVStore is touched, so
// a crash at any point during Handle leaves the on-disk state
// reconstructible by Recover.
//
// # Concurrency
//
// Handle takes a single mutex for its entire body: the follower is a
// single-writer system by design (see the package-level design notes) —
// one message runs to completion, including its fsync and any store
// mutation, before the next is even decoded.
package follower

// Package leader implements the coordinator side of the protocol: the
// follower ring, registration gating, GET fail-over, and the two-phase
// commit rounds driven for PUT/DELETE.
//
// # Architecture
//
//	        client
//	          |
//	          v
//	    +-----------+        vote (parallel)        +----------+
//	    | Coordinator| ----------------------------> | Follower |
//	    |  (Ring,    | <---------------------------- | (x R)    |
//	    |  striped   |       decision (retry-until-ack)+----------+
//	    |  key locks)|
//	    +-----------+
//
// A Coordinator refuses client work until its ring has filled to capacity.
// GETs fail over across a key's replicas in ring order and never touch
// the log. PUT/DELETE run a full two-phase commit: a parallel vote
// fan-out, a decision computed from the votes, and a decision broadcast
// retried independently per replica until every replica acknowledges. A
// fixed-size stripe of mutexes, indexed by the key's hash, gives each key
// a total order over its own rounds without serializing unrelated keys.
//
// FollowerClient abstracts the RPC to a follower so this package's tests
// can substitute an in-memory fake instead of driving real HTTP traffic;
// internal/wire provides the production implementation.
package leader

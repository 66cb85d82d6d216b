package follower

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dreamware/tpckv/internal/kvmessage"
	"github.com/dreamware/tpckv/internal/kvstore"
	"github.com/dreamware/tpckv/internal/tpclog"
)

// State is one of the follower's 2PC transaction states.
type State int

const (
	StateInit State = iota
	StateWait // unused placeholder, reserved for symmetry with the leader
	StateReady
	StateCommit
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateWait:
		return "WAIT"
	case StateReady:
		return "READY"
	case StateCommit:
		return "COMMIT"
	case StateAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// OperationStats counts operations handled, for observability. Counters
// are incremented with atomic ops so Stats() can be read without holding
// the follower's main lock.
type OperationStats struct {
	Gets    uint64
	Puts    uint64
	Deletes uint64
}

// Follower is a single 2PC participant: a KVStore, a TPCLog, and the
// transaction state that ties them together.
type Follower struct {
	Host string
	Port int

	store *kvstore.Store
	log   *tpclog.Log

	mu      sync.Mutex
	state   State
	pending *tpclog.Record

	gets, puts, dels atomic.Uint64
}

// Open opens a Follower backed by dir, recovering any in-flight 2PC
// transaction per the recovery procedure before returning.
func Open(dir, host string, port int) (*Follower, error) {
	store, err := kvstore.Open(dir)
	if err != nil {
		return nil, err
	}
	log, err := tpclog.Open(dir)
	if err != nil {
		return nil, err
	}
	f := &Follower{Host: host, Port: port, store: store, log: log}
	if err := f.recover(); err != nil {
		return nil, fmt.Errorf("follower: recover: %w", err)
	}
	return f, nil
}

// State returns the follower's current transaction state.
func (f *Follower) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Stats returns a snapshot of the operation counters.
func (f *Follower) Stats() OperationStats {
	return OperationStats{
		Gets:    f.gets.Load(),
		Puts:    f.puts.Load(),
		Deletes: f.dels.Load(),
	}
}

// Handle processes a single request to completion — including any log
// fsync and store mutation — before returning, implementing the
// single-writer discipline described in the package doc. It is safe to
// call concurrently; callers do not need their own locking.
func (f *Follower) Handle(req kvmessage.Request) kvmessage.Response {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Type {
	case kvmessage.GetReq:
		return f.handleGetLocked(req.Key)
	case kvmessage.PutReq:
		return f.handleVoteLocked(kvmessage.PutReq, req.Key, req.Val)
	case kvmessage.DelReq:
		return f.handleVoteLocked(kvmessage.DelReq, req.Key, "")
	case kvmessage.Commit:
		return f.handleDecisionLocked(kvmessage.Commit)
	case kvmessage.Abort:
		return f.handleDecisionLocked(kvmessage.Abort)
	default:
		return errorResponse(kvmessage.ErrInvalidRequest)
	}
}

func (f *Follower) handleGetLocked(key string) kvmessage.Response {
	if err := kvmessage.ValidateKey(key); err != nil {
		return errorResponse(err)
	}
	val, err := f.store.Get(key)
	if err != nil {
		return errorResponse(err)
	}
	f.gets.Add(1)
	return kvmessage.Response{Type: kvmessage.GetResp, Body: val}
}

// handleVoteLocked implements the INIT row of the transition table for
// PUTREQ/DELREQ: validate, append the pending op to the log (durably),
// move to READY, and vote commit — or stay in INIT and vote abort if
// validation failed, without writing anything to the log.
func (f *Follower) handleVoteLocked(typ kvmessage.Type, key, val string) kvmessage.Response {
	if f.state != StateInit {
		return errorResponse(kvmessage.ErrInvalidRequest)
	}

	var checkErr error
	if typ == kvmessage.PutReq {
		checkErr = f.store.PutCheck(key, val)
	} else {
		checkErr = f.store.DelCheck(key)
	}
	if checkErr != nil {
		return kvmessage.Response{Type: kvmessage.Vote, Body: kvmessage.AbortVote(checkErr.Error())}
	}

	rec := tpclog.Record{Type: typ, Key: key, Val: val}
	if err := f.log.Append(rec); err != nil {
		return kvmessage.Response{Type: kvmessage.Vote, Body: kvmessage.AbortVote(kvmessage.ErrGeneric.Error())}
	}

	f.state = StateReady
	f.pending = &rec
	return kvmessage.Response{Type: kvmessage.Vote, Body: kvmessage.VoteCommit}
}

// handleDecisionLocked implements the READY row of the transition table
// for COMMIT/ABORT, and the idempotent no-op case for a decision
// re-delivered after the log has already been truncated.
func (f *Follower) handleDecisionLocked(decision kvmessage.Type) kvmessage.Response {
	if f.state != StateReady {
		// Duplicate delivery (or a decision with nothing pending): a
		// no-op that still acks, so the leader's retry loop terminates.
		return kvmessage.Response{Type: kvmessage.Ack}
	}

	if decision == kvmessage.Commit {
		if err := f.log.Append(tpclog.Record{Type: kvmessage.Commit}); err != nil {
			return errorResponse(kvmessage.ErrGeneric)
		}
		f.applyPendingLocked()
	} else {
		if err := f.log.Append(tpclog.Record{Type: kvmessage.Abort}); err != nil {
			return errorResponse(kvmessage.ErrGeneric)
		}
	}

	if err := f.log.Truncate(); err != nil {
		return errorResponse(kvmessage.ErrGeneric)
	}
	f.state = StateInit
	f.pending = nil
	return kvmessage.Response{Type: kvmessage.Ack}
}

// applyPendingLocked applies f.pending to the store. It is only ever
// called with a COMMIT decision already durably logged (or, during
// recovery, already read back from a durable log), so a failure here
// does not threaten correctness of the decision itself — only its
// visibility, which a subsequent recovery pass will retry.
func (f *Follower) applyPendingLocked() {
	if f.pending == nil {
		return
	}
	switch f.pending.Type {
	case kvmessage.PutReq:
		_ = f.store.Put(f.pending.Key, f.pending.Val)
		f.puts.Add(1)
	case kvmessage.DelReq:
		_ = f.store.Del(f.pending.Key)
		f.dels.Add(1)
	}
}

// recover rebuilds in-memory state after a restart from the latest log
// record (for a COMMIT, together with the op record just before it).
func (f *Follower) recover() error {
	records, err := f.log.Iterate()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		f.state = StateInit
		return nil
	}

	latest := records[len(records)-1]
	switch latest.Type {
	case kvmessage.PutReq, kvmessage.DelReq:
		rec := latest
		f.pending = &rec
		f.state = StateReady
	case kvmessage.Commit:
		if len(records) >= 2 {
			pending := records[len(records)-2]
			f.pending = &pending
			f.applyPendingLocked()
			f.pending = nil
		}
		if err := f.log.Truncate(); err != nil {
			return err
		}
		f.state = StateInit
	case kvmessage.Abort:
		if err := f.log.Truncate(); err != nil {
			return err
		}
		f.state = StateInit
	default:
		f.state = StateInit
	}
	return nil
}

// Reset deletes every entry in the follower's store, removes the store
// directory, and clears the log. The follower must be reopened with Open
// after calling Reset. Intended for test teardown and operator-triggered
// wipes; it is not part of the 2PC hot path.
func (f *Follower) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.log.Truncate(); err != nil {
		return err
	}
	for _, k := range f.store.List() {
		if err := f.store.Del(k); err != nil {
			return err
		}
	}
	return os.RemoveAll(f.store.Dir())
}

func errorResponse(err error) kvmessage.Response {
	return kvmessage.Response{Type: kvmessage.ErrorResp, Body: err.Error()}
}

package leader

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/tpckv/internal/kvmessage"
	"github.com/dreamware/tpckv/internal/ring"
)

// abortReason strips the "abort: " prefix a follower's VOTE body carries
// (see kvmessage.AbortVote), so the error surfaced to the client carries
// just the underlying reason.
func abortReason(voteBody string) string {
	return strings.TrimPrefix(voteBody, "abort: ")
}

// FollowerClient is the leader's view of a single follower connection. It
// is the seam internal/wire plugs a real HTTP client into, and tests
// plug a fake into.
type FollowerClient interface {
	Get(ctx context.Context, addr, key string) (kvmessage.Response, error)
	Put(ctx context.Context, addr, key, val string) (kvmessage.Response, error)
	Delete(ctx context.Context, addr, key string) (kvmessage.Response, error)
	Commit(ctx context.Context, addr, key string) (kvmessage.Response, error)
	Abort(ctx context.Context, addr, key string) (kvmessage.Response, error)
}

// numKeyStripes is the number of mutexes the per-key critical section is
// striped across. Any discipline that preserves per-key linearizability
// is fine here; a fixed stripe avoids an unbounded map of locks.
const numKeyStripes = 256

// Options configures timeouts used during a 2PC round. The zero value of
// every field is replaced by a documented default in NewCoordinator.
type Options struct {
	VoteTimeout     time.Duration
	RetryBackoffMin time.Duration
	RetryBackoffMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.VoteTimeout == 0 {
		o.VoteTimeout = 2 * time.Second
	}
	if o.RetryBackoffMin == 0 {
		o.RetryBackoffMin = 50 * time.Millisecond
	}
	if o.RetryBackoffMax == 0 {
		o.RetryBackoffMax = 2 * time.Second
	}
	return o
}

// Coordinator is the leader: it owns the follower ring and drives every
// client request across the replicas responsible for its key.
type Coordinator struct {
	ring       *ring.Ring
	redundancy int
	client     FollowerClient
	opts       Options

	keyLocks [numKeyStripes]sync.Mutex
}

// NewCoordinator creates a Coordinator expecting capacity followers and
// replicating each key across redundancy of them.
func NewCoordinator(capacity, redundancy int, client FollowerClient, opts Options) *Coordinator {
	if redundancy < 1 || redundancy > capacity {
		panic("leader: redundancy must satisfy 1 <= R <= capacity")
	}
	return &Coordinator{
		ring:       ring.New(capacity),
		redundancy: redundancy,
		client:     client,
		opts:       opts.withDefaults(),
	}
}

// Ring exposes the follower ring for status/introspection endpoints.
func (c *Coordinator) Ring() *ring.Ring {
	return c.ring
}

// Register admits a follower at host:port into the ring.
// Duplicate identity hashes and registrations after the ring has filled
// both surface as FollowerCapacity, since both mean the new follower
// cannot be given a place in the ring.
func (c *Coordinator) Register(host string, port int) error {
	f := ring.Follower{ID: ring.Hash64(ring.Identity(host, port)), Host: host, Port: port}
	if err := c.ring.Insert(f); err != nil {
		if c.hasFollower(host, port) {
			log.Printf("leader: duplicate registration from %s", f.Addr())
		} else {
			log.Printf("leader: registration from %s rejected, ring is full", f.Addr())
		}
		return kvmessage.ErrFollowerCapacity
	}
	return nil
}

// Get queries each of the key's replicas in ring order until one answers
// with a value.
func (c *Coordinator) Get(ctx context.Context, key string) (string, error) {
	if !c.ring.Full() {
		return "", kvmessage.ErrNotAtCapacity
	}
	if err := kvmessage.ValidateKey(key); err != nil {
		return "", err
	}

	for _, f := range c.ring.Replicas(key, c.redundancy) {
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.VoteTimeout)
		resp, err := c.client.Get(reqCtx, f.Addr(), key)
		cancel()
		if err != nil {
			continue // transport error is equivalent to NO_KEY for fail-over
		}
		if resp.Type == kvmessage.GetResp {
			return resp.Body, nil
		}
	}
	return "", kvmessage.ErrNoKey
}

// Put drives a full 2PC round for a PUTREQ.
func (c *Coordinator) Put(ctx context.Context, key, val string) error {
	return c.twoPhaseCommit(ctx, kvmessage.PutReq, key, val)
}

// Delete drives a full 2PC round for a DELREQ.
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	return c.twoPhaseCommit(ctx, kvmessage.DelReq, key, "")
}

type vote struct {
	commit bool
	reason string
}

// twoPhaseCommit runs the full vote/decision round for key, serialized
// against any other in-flight round for the same key stripe.
func (c *Coordinator) twoPhaseCommit(ctx context.Context, typ kvmessage.Type, key, val string) error {
	if !c.ring.Full() {
		return kvmessage.ErrNotAtCapacity
	}

	lock := &c.keyLocks[ring.Hash64(key)%numKeyStripes]
	lock.Lock()
	defer lock.Unlock()

	replicas := c.ring.Replicas(key, c.redundancy)
	votes := c.collectVotes(ctx, typ, key, val, replicas)

	commit := true
	reason := ""
	for _, v := range votes {
		if !v.commit {
			commit = false
			if reason == "" {
				reason = v.reason
			}
		}
	}

	decision := kvmessage.Abort
	if commit {
		decision = kvmessage.Commit
	}
	// Phase 2 deliberately ignores the inbound ctx: client cancellation
	// must not abort an in-flight round, and decision delivery has no
	// timeout, it retries until every replica acks.
	c.broadcastDecision(decision, key, replicas)

	if !commit {
		if reason == "" {
			reason = kvmessage.ErrGeneric.Error()
		}
		return &AbortError{Reason: reason}
	}
	return nil
}

// AbortError is returned by Put/Delete when the 2PC round decided to
// abort. Reason is a representative abort message from one of the
// replicas that voted against committing (or a generic message if the
// abort was caused by a transport failure rather than an explicit vote).
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return e.Reason
}

func (c *Coordinator) collectVotes(ctx context.Context, typ kvmessage.Type, key, val string, replicas []ring.Follower) []vote {
	votes := make([]vote, len(replicas))
	var wg sync.WaitGroup
	for i, f := range replicas {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			reqCtx, cancel := context.WithTimeout(ctx, c.opts.VoteTimeout)
			defer cancel()

			var resp kvmessage.Response
			var err error
			if typ == kvmessage.PutReq {
				resp, err = c.client.Put(reqCtx, addr, key, val)
			} else {
				resp, err = c.client.Delete(reqCtx, addr, key)
			}
			if err != nil {
				votes[i] = vote{commit: false, reason: kvmessage.ErrGeneric.Error()}
				return
			}
			if resp.Type != kvmessage.Vote || resp.Body != kvmessage.VoteCommit {
				votes[i] = vote{commit: false, reason: abortReason(resp.Body)}
				return
			}
			votes[i] = vote{commit: true}
		}(i, f.Addr())
	}
	wg.Wait()
	return votes
}

// broadcastDecision sends decision to every replica, retrying each one
// independently with bounded exponential backoff until it acks.
func (c *Coordinator) broadcastDecision(decision kvmessage.Type, key string, replicas []ring.Follower) {
	var wg sync.WaitGroup
	for _, f := range replicas {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			c.retryUntilAck(decision, addr, key)
		}(f.Addr())
	}
	wg.Wait()
}

func (c *Coordinator) retryUntilAck(decision kvmessage.Type, addr, key string) {
	backoff := c.opts.RetryBackoffMin
	for {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.VoteTimeout)
		var resp kvmessage.Response
		var err error
		if decision == kvmessage.Commit {
			resp, err = c.client.Commit(ctx, addr, key)
		} else {
			resp, err = c.client.Abort(ctx, addr, key)
		}
		cancel()
		if err == nil && resp.Type == kvmessage.Ack {
			return
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > c.opts.RetryBackoffMax {
			backoff = c.opts.RetryBackoffMax
		}
	}
}

// hasFollower reports whether host:port is already registered, used by
// the registration handler to log a clearer duplicate-registration
// message.
func (c *Coordinator) hasFollower(host string, port int) bool {
	id := ring.Hash64(ring.Identity(host, port))
	records := c.ring.Records()
	return slices.IndexFunc(records, func(f ring.Follower) bool { return f.ID == id }) >= 0
}

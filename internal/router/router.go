// Package router fans incoming stream events out to every compiled pattern
// chain subscribed to them and drives the stabilize protocol between
// batches, the way go-crablet's channel-based EventStream drives a single
// reader goroutine over a result channel (spec section 6).
package router

import (
	"context"
	"log"
	"sync"
	"time"

	"go.jetify.com/typeid"

	"cepcore/pkg/cep"
)

// Input is a single timestamped event arriving on a named input stream,
// the unit the Router dispatches to every pattern chain bound to that
// stream.
type Input struct {
	StreamID  string
	Timestamp int64
	Data      []cep.AttributeValue
}

// Router dispatches Input values to every registered ProcessorChain's Pre
// processors subscribed to that stream, then runs stabilize (spec section
// 4.4): drain new_and_every into pending on every Pre, across every
// registered chain, once per dispatched input.
type Router struct {
	in   chan Input
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	chains []*cep.ProcessorChain

	expireInterval time.Duration
}

// New creates a Router. expireInterval is how often WITHIN-bounded pending
// states are swept (spec section 4.4's periodic expire_events); 0 disables
// the sweep.
func New(expireInterval time.Duration) *Router {
	return &Router{
		in:             make(chan Input, 256),
		done:           make(chan struct{}),
		expireInterval: expireInterval,
	}
}

// Register wires a compiled chain into dispatch.
func (r *Router) Register(chain *cep.ProcessorChain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains = append(r.chains, chain)
}

// In returns the channel callers send Input values on.
func (r *Router) In() chan<- Input { return r.in }

// Run drives the dispatch loop until ctx is cancelled or Close is called.
// Call it from its own goroutine; it blocks until shutdown.
func (r *Router) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()

	var tick <-chan time.Time
	if r.expireInterval > 0 {
		ticker := time.NewTicker(r.expireInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case input, ok := <-r.in:
			if !ok {
				return
			}
			r.dispatch(input)
		case now := <-tick:
			r.expire(now.UnixMilli())
		}
	}
}

func (r *Router) snapshot() []*cep.ProcessorChain {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*cep.ProcessorChain(nil), r.chains...)
}

func (r *Router) dispatch(input Input) {
	chains := r.snapshot()

	batchID, err := typeid.WithPrefix("batch")
	if err != nil {
		log.Printf("router: batch id generation failed, continuing untagged: %v", err)
	}

	ev := cep.NewStreamEvent(input.Timestamp, input.Data)
	for _, chain := range chains {
		for _, pre := range sameStreamTargets(chain, input.StreamID) {
			if lf := pre.ProcessAndReturn(ev); lf != nil {
				log.Printf("router: batch=%s %v", batchID, lf)
			}
		}
	}
	r.stabilize(chains, batchID.String())
}

// sameStreamTargets implements spec section 4.4's same-stream adapter:
// when two (or more) of one chain's positions are bound to the same
// stream id (e.g. `e1=Trades -> e2=Trades`), delivering every arrival to
// all of them would let a single physical event simultaneously seed a
// brand-new instance at the earlier position and extend an existing one
// at a later position, producing a spurious extra match (verified
// against scenario S4). Instead, the event goes to exactly one
// processor per dispatch: the furthest-advanced position that already
// has a pending state to extend, or the earliest (start) position if
// none does yet. Chains with at most one processor on the stream are
// unaffected and receive the event as before.
func sameStreamTargets(chain *cep.ProcessorChain, streamID string) []cep.PreStateProcessor {
	var group []cep.PreStateProcessor
	for _, pre := range chain.PreProcessors() {
		if pre.StreamID() == streamID {
			group = append(group, pre)
		}
	}
	if len(group) <= 1 {
		return group
	}
	for i := len(group) - 1; i > 0; i-- {
		if group[i].State().PendingLen() > 0 {
			return group[i : i+1]
		}
	}
	return group[0:1]
}

// stabilize runs update_state on every Pre in every registered chain,
// draining each one's new_and_every list into pending, then reads and
// clears each Pre's state_changed flag (spec section 4.4).
// batchID tags log lines so a single dispatch's stabilize pass can be
// correlated across every chain it touches.
func (r *Router) stabilize(chains []*cep.ProcessorChain, batchID string) {
	for _, chain := range chains {
		for _, pre := range chain.PreProcessors() {
			if lf := pre.UpdateState(); lf != nil {
				log.Printf("router: batch=%s stabilize: %v", batchID, lf)
			}
			pre.State().Shared.ConsumeChanged()
		}
	}
}

func (r *Router) expire(nowMillis int64) {
	chains := r.snapshot()
	for _, chain := range chains {
		for _, pre := range chain.PreProcessors() {
			if _, lf := pre.ExpireEvents(nowMillis); lf != nil {
				log.Printf("router: expire: %v", lf)
			}
		}
	}
}

// Close stops Run and waits for it to return.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.wg.Wait()
}

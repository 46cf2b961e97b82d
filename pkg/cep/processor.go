package cep

import "sync/atomic"

// idCounter hands out the monotonic StateEvent ids used to distinguish
// EVERY siblings (spec.md section 3.2). One is shared by every processor
// in a chain (set up once by PatternChainBuilder).
type idCounter struct {
	next atomic.Uint64
}

func newIDCounter() *idCounter {
	c := &idCounter{}
	c.next.Store(1)
	return c
}

func (c *idCounter) allocate() uint64 {
	return c.next.Add(1) - 1
}

// PreStateProcessor is the event-ingesting state machine family from
// spec.md section 4.1: Stream, Count, and Logical variants all implement
// this.
type PreStateProcessor interface {
	// ProcessAndReturn is the main entry point: it advances pending
	// StateEvents against an incoming event and returns nothing directly
	// (successes are forwarded to the paired Post inline, per spec.md
	// section 4.1.1 step 1.5) but surfaces any LockFailure encountered.
	ProcessAndReturn(event *StreamEvent) *LockFailure

	// AddState hands off an advancing match from the previous step's Post
	// (spec.md section 4.1 add_state). The event goes into new_and_every.
	AddState(se *StateEvent)

	// AddEveryState is the same, used by the terminal step's Post when
	// EVERY is active, to re-seed the start state (spec.md section 4.1
	// add_every_state).
	AddEveryState(se *StateEvent)

	// UpdateState drains new_and_every into pending (spec.md section 4.1
	// update_state). Called during stabilization.
	UpdateState() *LockFailure

	// ResetState drops pending; used only by start-state processors after
	// a Sequence-mode match (spec.md section 4.1 reset_state).
	ResetState() *LockFailure

	// ExpireEvents removes pending entries older than now - within_time,
	// returning any that were expired (spec.md section 4.1 expire_events).
	ExpireEvents(now int64) ([]*StateEvent, *LockFailure)

	// StateID is this processor's position in StateEvent.StreamEvents
	// (spec.md section 4.1 state_id).
	StateID() int

	// IsStartState reports whether this processor seeds new matches
	// without upstream input (spec.md section 4.1 is_start_state).
	IsStartState() bool

	// StreamID returns the stream this processor subscribes to, used by
	// the router to build its dispatch table. Logical processors return
	// the stream bound to their own side.
	StreamID() string

	// State exposes the underlying ProcessorState, used by the router for
	// stabilization and by PatternChainBuilder for wiring.
	State() *ProcessorState
}

// PostStateProcessor is the success gatekeeper family from spec.md section
// 4.2.
type PostStateProcessor interface {
	// Process receives a StateEvent forwarded by the paired Pre. It marks
	// ProcessorSharedState.state_changed, forwards to next_pre /
	// next_every_pre if set, and if this is the terminal Post, hands the
	// completed StateEvent to the downstream consumer.
	Process(se *StateEvent) *LockFailure

	SetNextPre(p PreStateProcessor)
	SetNextEveryPre(p PreStateProcessor)
}

// Consumer receives a completed StateEvent from the terminal Post (spec.md
// section 6, "Exposed (to the projector below)").
type Consumer func(se *StateEvent)

package cep

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// StateType selects the matching discipline for a processor, spec.md
// section 4.1.1 "Modes (StateType)".
type StateType int

const (
	// Pattern: non-matching intermediate events are ignored; pending
	// states are preserved; multiple matches may be emitted; EVERY is
	// permitted.
	Pattern StateType = iota
	// Sequence: a non-matching intermediate event dissolves the pending;
	// once matched, pending is removed; EVERY is rejected at build time.
	Sequence
)

// ProcessorSharedState is the single piece of mutable state referenced by
// more than one processor (spec.md section 5): a Post sets it with a
// single atomic write, and the router reads and clears it at stabilization. No
// lock is ever held across the Pre/Post boundary, which is what avoids the
// deadlock hazard described in spec.md section 5 and section 9.
type ProcessorSharedState struct {
	changed atomic.Bool
}

// MarkChanged is called by a PostStateProcessor when it accepts a
// forwarded match.
func (p *ProcessorSharedState) MarkChanged() {
	p.changed.Store(true)
}

// ConsumeChanged reads and clears the flag, as done once per Pre at
// stabilization (spec.md section 4.4 stabilize, step 3).
func (p *ProcessorSharedState) ConsumeChanged() bool {
	return p.changed.Swap(false)
}

// Peek reads the flag without clearing it.
func (p *ProcessorSharedState) Peek() bool {
	return p.changed.Load()
}

// ProcessorState is the per-Pre-processor state container: the three-list
// protocol from spec.md section 3.3. pending and new_and_every are
// implemented as container/list deques ordered by insertion (equivalently
// by first-event timestamp), which is what allows in-order expiration.
//
// Each ProcessorState is owned by exactly one Pre; mutation of its lists
// requires exclusive access, provided here by mu (spec.md section 5,
// "Shared-resource policy").
type ProcessorState struct {
	mu sync.Mutex

	pending      *list.List // of *StateEvent
	newAndEvery  *list.List // of *StateEvent
	current      []*StateEvent

	Shared *ProcessorSharedState

	WithinTime       *int64 // ms, set on every Pre of a WITHIN-bounded chain
	WithinEventCount *int64 // reserved, not implemented in core

	StartStateIDs map[int]struct{}
}

// NewProcessorState creates an empty ProcessorState sharing shared (created
// once per Pre/Post pair during chain construction).
func NewProcessorState(shared *ProcessorSharedState) *ProcessorState {
	return &ProcessorState{
		pending:     list.New(),
		newAndEvery: list.New(),
		Shared:      shared,
	}
}

// lockOrLog attempts the exclusive lock used by every mutator below. In
// this single-threaded-per-chain core the lock cannot actually contend
// (spec.md section 5: "process_and_return does not suspend"), but it is
// still acquired so that a host embedding multiple goroutines per chain
// fails safely: TryLock failure is surfaced as a LockFailure rather than a
// silent race, matching spec.md section 7's LockFailure row.
func (p *ProcessorState) lockOrLog(stateID int) (*LockFailure, func()) {
	if !p.mu.TryLock() {
		return &LockFailure{ChainError: ChainError{Op: "ProcessorState"}, StateID: stateID}, func() {}
	}
	return nil, p.mu.Unlock
}

// AddNewAndEvery appends a StateEvent to the new_and_every list (used by
// add_state / add_every_state, spec.md section 4.1).
func (p *ProcessorState) AddNewAndEvery(stateID int, se *StateEvent) *LockFailure {
	if lf, unlock := p.lockOrLog(stateID); lf != nil {
		return lf
	} else {
		defer unlock()
	}
	p.newAndEvery.PushBack(se)
	return nil
}

// UpdateState drains new_and_every into pending, ordered by timestamp
// (spec.md section 4.1 update_state). Called during stabilization.
func (p *ProcessorState) UpdateState(stateID int) *LockFailure {
	if lf, unlock := p.lockOrLog(stateID); lf != nil {
		return lf
	} else {
		defer unlock()
	}
	var drained []*StateEvent
	for e := p.newAndEvery.Front(); e != nil; e = e.Next() {
		drained = append(drained, e.Value.(*StateEvent))
	}
	p.newAndEvery.Init()

	// Insertion-sort into pending by timestamp to keep pending ordered for
	// in-order expiration (spec.md section 3.3 "pending" ordering note).
	for _, se := range drained {
		inserted := false
		for e := p.pending.Front(); e != nil; e = e.Next() {
			if se.Timestamp < e.Value.(*StateEvent).Timestamp {
				p.pending.InsertBefore(se, e)
				inserted = true
				break
			}
		}
		if !inserted {
			p.pending.PushBack(se)
		}
	}
	return nil
}

// ResetState drops pending; used only by start-state processors after a
// Sequence-mode match (spec.md section 4.1 reset_state).
func (p *ProcessorState) ResetState(stateID int) *LockFailure {
	if lf, unlock := p.lockOrLog(stateID); lf != nil {
		return lf
	} else {
		defer unlock()
	}
	p.pending.Init()
	return nil
}

// removePendingElement removes a specific element from pending by its list
// element handle. Used by Pre-processors while iterating pending to drop a
// dissolved (Sequence mode) or maximal (Count mode) entry.
func (p *ProcessorState) removePendingElement(e *list.Element) {
	p.pending.Remove(e)
}

// PendingSnapshot returns the current pending list's elements in order, for
// a Pre-processor to iterate during process_and_return. The returned slice
// of elements lets the caller remove specific entries mid-iteration via
// RemovePendingElement without invalidating list.List's own iteration.
func (p *ProcessorState) PendingSnapshot() []*list.Element {
	var out []*list.Element
	for e := p.pending.Front(); e != nil; e = e.Next() {
		out = append(out, e)
	}
	return out
}

// RemovePendingElement removes e from the pending list (exposed so Pre
// processors can drop entries discovered via PendingSnapshot).
func (p *ProcessorState) RemovePendingElement(e *list.Element) {
	p.removePendingElement(e)
}

// PendingLen reports the current pending list length.
func (p *ProcessorState) PendingLen() int {
	return p.pending.Len()
}

// ExpireEvents removes pending entries whose anchoring start-state event is
// older than now - WithinTime, returning the expired StateEvents (spec.md
// section 4.1 expire_events / section 7 Expired). Does nothing unless
// WithinTime is set; PatternChainBuilder sets it on every Pre of a
// WITHIN-bounded chain.
func (p *ProcessorState) ExpireEvents(now int64, stateID int) ([]*StateEvent, *LockFailure) {
	if p.WithinTime == nil {
		return nil, nil
	}
	if lf, unlock := p.lockOrLog(stateID); lf != nil {
		return nil, lf
	} else {
		defer unlock()
	}

	threshold := now - *p.WithinTime
	var expired []*StateEvent
	var next *list.Element
	for e := p.pending.Front(); e != nil; e = next {
		next = e.Next()
		se := e.Value.(*StateEvent)
		anchor := anchorTimestamp(se, p.StartStateIDs)
		if anchor < threshold {
			se.EventType = EventTypeExpired
			expired = append(expired, se)
			p.pending.Remove(e)
		}
	}
	return expired, nil
}

// anchorTimestamp finds the earliest head timestamp among the anchor
// positions (spec.md section 3.3 start_state_ids).
func anchorTimestamp(se *StateEvent, startStateIDs map[int]struct{}) int64 {
	if len(startStateIDs) == 0 {
		return se.Timestamp
	}
	var earliest int64 = -1
	found := false
	for id := range startStateIDs {
		head := se.GetStreamEvent(id)
		if head == nil {
			continue
		}
		if !found || head.Timestamp < earliest {
			earliest = head.Timestamp
			found = true
		}
	}
	if !found {
		return se.Timestamp
	}
	return earliest
}

package cep

// evaluateFilter runs f against candidate, folding both "false" and any
// FilterFault (arithmetic overflow, type mismatch) to boolean false per
// spec.md sections 4.7 and 4.8: a filter exception is never propagated,
// the candidate is simply discarded as non-matching. A nil filter always
// matches.
func evaluateFilter(f FilterFn, candidate *StateEvent, position int) bool {
	if f == nil {
		return true
	}
	ok, err := f(candidate, position)
	if err != nil {
		return false
	}
	return ok
}

// baseProcessor holds the fields every PreStateProcessor family member
// needs: its position, the stream it subscribes to, its matching
// discipline, its ProcessorState, paired Post, start-state status, and
// whether it is wired into an EVERY loopback (which changes who is
// responsible for reseeding an empty start candidate, see ensureStartSeed).
type baseProcessor struct {
	stateID  int
	streamID string
	mode     StateType
	state    *ProcessorState
	post     PostStateProcessor
	isStart  bool
	everyLoop bool
	ids      *idCounter
}

func (b *baseProcessor) StateID() int            { return b.stateID }
func (b *baseProcessor) IsStartState() bool      { return b.isStart }
func (b *baseProcessor) StreamID() string        { return b.streamID }
func (b *baseProcessor) State() *ProcessorState  { return b.state }

func (b *baseProcessor) AddState(se *StateEvent) {
	b.state.AddNewAndEvery(b.stateID, se)
}

// AddEveryState re-seeds the start state with a fresh empty instance,
// ignoring the forwarded StateEvent's own content: spec.md's GLOSSARY
// describes EVERY as re-seeding the start state to "enable overlapping
// instances", which means a brand new empty partial match, not a clone of
// the just-completed one.
func (b *baseProcessor) AddEveryState(_ *StateEvent) {
	seed := NewStateEvent(b.ids.allocate())
	b.state.AddNewAndEvery(b.stateID, seed)
}

func (b *baseProcessor) UpdateState() *LockFailure {
	return b.state.UpdateState(b.stateID)
}

func (b *baseProcessor) ResetState() *LockFailure {
	return b.state.ResetState(b.stateID)
}

func (b *baseProcessor) ExpireEvents(now int64) ([]*StateEvent, *LockFailure) {
	return b.state.ExpireEvents(now, b.stateID)
}

// ensureStartSeed adds a fresh empty seed to new_and_every when this
// processor is a Pattern-mode start state not wired into an EVERY
// loopback: such a processor is the only mechanism that restarts matching
// after its single seed is consumed (spec.md section 4.1.1 step 2). When
// everyLoop is true, reseeding is the terminal Post's exclusive job via
// AddEveryState, once per completed instance rather than once per event,
// avoiding duplicate concurrent empty seeds (see DESIGN.md).
func (b *baseProcessor) ensureStartSeed() {
	if !b.isStart || b.mode != Pattern || b.everyLoop {
		return
	}
	if b.state.PendingLen() > 0 {
		return
	}
	seed := NewStateEvent(b.ids.allocate())
	b.state.AddNewAndEvery(b.stateID, seed)
}

package cep

// basePostStateProcessor implements the common behavior shared by every
// PostStateProcessor variant (spec.md section 4.2): mark state_changed,
// forward to next_pre / next_every_pre, or hand off to the downstream
// consumer when terminal.
type basePostStateProcessor struct {
	shared        *ProcessorSharedState
	nextPre       PreStateProcessor
	nextEveryPre  PreStateProcessor
	consumer      Consumer // set only on the terminal Post
}

func newBasePost(shared *ProcessorSharedState, consumer Consumer) basePostStateProcessor {
	return basePostStateProcessor{shared: shared, consumer: consumer}
}

func (p *basePostStateProcessor) SetNextPre(next PreStateProcessor)      { p.nextPre = next }
func (p *basePostStateProcessor) SetNextEveryPre(next PreStateProcessor) { p.nextEveryPre = next }

// forward implements the three possible routes a Post takes after marking
// state_changed: hand to next_pre, re-seed next_every_pre, or emit to the
// terminal consumer. All three may apply to the same StateEvent instance
// (a terminal EVERY step both re-seeds and emits).
func (p *basePostStateProcessor) forward(se *StateEvent) {
	p.shared.MarkChanged()
	if p.nextPre != nil {
		p.nextPre.AddState(se.Clone())
	}
	if p.nextEveryPre != nil {
		p.nextEveryPre.AddEveryState(se.Clone())
	}
	if p.consumer != nil {
		p.consumer(se)
	}
}

// StreamPostStateProcessor is the base Post paired with a
// StreamPreStateProcessor.
type StreamPostStateProcessor struct {
	basePostStateProcessor
}

func NewStreamPostStateProcessor(shared *ProcessorSharedState, consumer Consumer) *StreamPostStateProcessor {
	return &StreamPostStateProcessor{basePostStateProcessor: newBasePost(shared, consumer)}
}

func (p *StreamPostStateProcessor) Process(se *StateEvent) *LockFailure {
	p.forward(se)
	return nil
}

// CountPostStateProcessor additionally asserts that the count at its state
// id lies in [min, max] before forwarding (spec.md section 4.2). An
// out-of-bound arrival is an internal consistency error: it indicates the
// paired Pre misbehaved, since CountPreStateProcessor itself enforces the
// bound before forwarding. It is never surfaced to the caller per spec.md
// section 7 (BacktrackOvershoot-class faults are internal signals only);
// it is reported here as a LockFailure-shaped internal error purely so the
// host's log sees it.
type CountPostStateProcessor struct {
	basePostStateProcessor
	stateID  int
	min, max int
}

func NewCountPostStateProcessor(stateID, min, max int, shared *ProcessorSharedState, consumer Consumer) *CountPostStateProcessor {
	return &CountPostStateProcessor{
		basePostStateProcessor: newBasePost(shared, consumer),
		stateID:                stateID,
		min:                    min,
		max:                    max,
	}
}

func (p *CountPostStateProcessor) Process(se *StateEvent) *LockFailure {
	c := se.CountEventsAt(p.stateID)
	if c < p.min || c > p.max {
		return &LockFailure{
			ChainError: ChainError{Op: "CountPostStateProcessor.Process", Err: ErrCountOutOfBounds},
			StateID:    p.stateID,
		}
	}
	p.forward(se)
	return nil
}

// LogicalPostStateProcessor applies the AND/OR gating described in spec.md
// section 4.1.3: it is shared by both LogicalPreStateProcessor sides, each
// calling Process only when their own side thinks it has a completable
// candidate; the actual AND/OR decision already happened in the Pre (it
// decides whether to call Process at all), so the Post's job here is
// purely the common forward/terminal behavior plus double-emission
// suppression under OR (property P10), tracked via the emitted map.
type LogicalPostStateProcessor struct {
	basePostStateProcessor
	op LogicalOp

	emitted map[uint64]bool
}

func NewLogicalPostStateProcessor(op LogicalOp, shared *ProcessorSharedState, consumer Consumer) *LogicalPostStateProcessor {
	return &LogicalPostStateProcessor{
		basePostStateProcessor: newBasePost(shared, consumer),
		op:                     op,
		emitted:                make(map[uint64]bool),
	}
}

func (p *LogicalPostStateProcessor) Process(se *StateEvent) *LockFailure {
	if p.op == LogicalOr {
		if p.emitted[se.ID] {
			return nil // property P10: at most one match per pending state under OR
		}
		p.emitted[se.ID] = true
	}
	p.forward(se)
	return nil
}

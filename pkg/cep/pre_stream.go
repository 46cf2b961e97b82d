package cep

// StreamPreStateProcessor is the base Pre-processor family member from
// spec.md section 4.1.1. It matches incoming events of one specific stream
// against pending partial matches; for each that still passes the
// optional filter, it clones the partial, writes the event at state_id,
// and forwards it to the Post-processor.
type StreamPreStateProcessor struct {
	baseProcessor
	filter FilterFn
}

// NewStreamPreStateProcessor constructs a StreamPreStateProcessor. shared
// must be the ProcessorSharedState created for this step's Post; ids is
// the chain-wide monotonic id counter.
func NewStreamPreStateProcessor(stateID int, streamID string, filter FilterFn, mode StateType, isStart, everyLoop bool, state *ProcessorState, post PostStateProcessor, ids *idCounter) *StreamPreStateProcessor {
	return &StreamPreStateProcessor{
		baseProcessor: baseProcessor{
			stateID:   stateID,
			streamID:  streamID,
			mode:      mode,
			state:     state,
			post:      post,
			isStart:   isStart,
			everyLoop: everyLoop,
			ids:       ids,
		},
		filter: filter,
	}
}

// ProcessAndReturn implements spec.md section 4.1.1's algorithm.
func (p *StreamPreStateProcessor) ProcessAndReturn(event *StreamEvent) *LockFailure {
	for _, el := range p.state.PendingSnapshot() {
		pending := el.Value.(*StateEvent)

		candidate := pending.Clone()
		candidate.SetEvent(p.stateID, event.Clone()) // expand-then-set, invariant I4

		if !evaluateFilter(p.filter, candidate, p.stateID) {
			// Step 4: non-matching event. An empty start-state seed has
			// not begun a sequence yet, so it is exempt from dissolution
			// even in Sequence mode (see DESIGN.md).
			if p.mode == Sequence && !isEmptySeed(pending) {
				p.state.RemovePendingElement(el)
			}
			continue
		}

		// Step 5: match. Forward, then this pending has advanced to the
		// next stage and is removed from this processor's own list
		// (resolved Open Question 1, SPEC_FULL.md).
		if lf := p.post.Process(candidate); lf != nil {
			return lf
		}
		p.state.RemovePendingElement(el)
	}

	p.ensureStartSeed()
	return nil
}

// isEmptySeed reports whether se has no events set at any position yet.
func isEmptySeed(se *StateEvent) bool {
	for _, head := range se.StreamEvents {
		if head != nil {
			return false
		}
	}
	return true
}

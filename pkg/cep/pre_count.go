package cep

// CountPreStateProcessor implements the {min, max} quantifier family
// member from spec.md section 4.1.2.
type CountPreStateProcessor struct {
	baseProcessor
	filter         FilterFn
	minCount       int
	maxCount       int
}

// NewCountPreStateProcessor constructs a CountPreStateProcessor. A
// sentinel max (MaxUnbounded) is rejected at build time by
// PatternChainBuilder (V3), never reaching this constructor.
func NewCountPreStateProcessor(stateID int, streamID string, filter FilterFn, min, max int, mode StateType, isStart, everyLoop bool, state *ProcessorState, post PostStateProcessor, ids *idCounter) *CountPreStateProcessor {
	return &CountPreStateProcessor{
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
		filter:   filter,
		minCount: min,
		maxCount: max,
	}
}

// ProcessAndReturn implements spec.md section 4.1.2's algorithm, including
// the EVERY sliding-window re-seed.
func (p *CountPreStateProcessor) ProcessAndReturn(event *StreamEvent) *LockFailure {
	for _, el := range p.state.PendingSnapshot() {
		pending := el.Value.(*StateEvent)

		if p.filter != nil {
			trial := pending.Clone()
			trial.AddEvent(p.stateID, event.Clone())
			if !evaluateFilter(p.filter, trial, p.stateID) {
				if p.mode == Sequence && !isEmptySeed(pending) {
					p.state.RemovePendingElement(el)
				}
				continue
			}
		}

		// Step 1: append event to the chain at state_id.
		pending.AddEvent(p.stateID, event.Clone())
		c := pending.CountEventsAt(p.stateID)

		// Step 3: forward a clone once min_count is reached.
		if c >= p.minCount {
			if lf := p.post.Process(pending.Clone()); lf != nil {
				return lf
			}
		}

		// Step 4: maximal, no further extension possible.
		if c == p.maxCount {
			p.state.RemovePendingElement(el)
		} else if c > p.maxCount {
			// Step 5: defensive backtrack, should not happen given step 4.
			pending.RemoveLastEvent(p.stateID)
		}

		// EVERY interaction: sliding window (spec.md section 4.1.2).
		if p.everyLoop && c >= p.minCount {
			spawn := pending.CloneWithNewID(p.ids.allocate())
			spawn.DropOldestEvent(p.stateID)
			p.state.AddNewAndEvery(p.stateID, spawn)
		}
	}

	p.ensureStartSeed()
	return nil
}

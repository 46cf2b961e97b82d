package cep

// LogicalSide identifies which operand of an AND/OR pattern a
// LogicalPreStateProcessor handles (spec.md section 4.1.3).
type LogicalSide int

const (
	LogicalLeft LogicalSide = iota
	LogicalRight
)

// LogicalPreStateProcessor implements one side of `A AND B` / `A OR B`
// (spec.md section 4.1.3). One instance exists per side, each subscribed
// to its own stream; both share the same ProcessorState (so each side can
// observe whether the other already contributed) and the same paired
// LogicalPostStateProcessor.
type LogicalPreStateProcessor struct {
	baseProcessor
	side         LogicalSide
	otherStateID int
	op           LogicalOp
	filter       FilterFn
	logicalPost  *LogicalPostStateProcessor
}

func NewLogicalPreStateProcessor(stateID, otherStateID int, side LogicalSide, streamID string, filter FilterFn, op LogicalOp, isStart, everyLoop bool, mode StateType, state *ProcessorState, post *LogicalPostStateProcessor, ids *idCounter) *LogicalPreStateProcessor {
	return &LogicalPreStateProcessor{
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
		side:         side,
		otherStateID: otherStateID,
		op:           op,
		filter:       filter,
		logicalPost:  post,
	}
}

// ProcessAndReturn implements spec.md section 4.1.3's algorithm.
func (p *LogicalPreStateProcessor) ProcessAndReturn(event *StreamEvent) *LockFailure {
	for _, el := range p.state.PendingSnapshot() {
		pending := el.Value.(*StateEvent)

		if pending.GetStreamEvent(p.stateID) != nil {
			// this side already filled for this pending instance.
			continue
		}

		trial := pending.Clone()
		trial.SetEvent(p.stateID, event.Clone())
		if !evaluateFilter(p.filter, trial, p.stateID) {
			continue
		}

		pending.SetEvent(p.stateID, event.Clone())
		otherFilled := pending.GetStreamEvent(p.otherStateID) != nil

		switch p.op {
		case LogicalAnd:
			if otherFilled {
				if lf := p.logicalPost.Process(pending.Clone()); lf != nil {
					return lf
				}
				p.state.RemovePendingElement(el)
			}
		case LogicalOr:
			// Forward on the first side to match. The pending stays in the
			// list (not yet retired) so the losing side can still fill its
			// slot; logicalPost's own id-keyed dedup (post.go) discards
			// that second forward instead of emitting a sibling match
			// (spec.md section 4.1.3's "discard the newer event" rule).
			// Retire the pending only once both sides have filled.
			if lf := p.logicalPost.Process(pending.Clone()); lf != nil {
				return lf
			}
			if otherFilled {
				p.state.RemovePendingElement(el)
			}
		}
	}

	p.ensureStartSeed()
	return nil
}

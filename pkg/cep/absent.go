package cep

import "context"

// AbsentProcessor defines how a future absent-pattern ("NOT ... FOR")
// processor plugs into the chain (spec.md section 2, item 9 / section
// 3.4's reserved Absent variant). It is intentionally not wired into
// PatternChainBuilder's buildable output: every PatternExpression
// containing KindAbsent is rejected at build time (V8 next to Logical,
// AbsentUnsupported elsewhere), per spec.md's scope.
//
// The interface exists so a future timer-integrated implementation has a
// documented seam: it would sit at a position like any other PreStateProcessor,
// but instead of reacting to stream events it reacts to the absence of one
// within a duration, driven by a host-provided timer tick.
type AbsentProcessor interface {
	PreStateProcessor

	// OnTimerTick is invoked by the host's timer integration (specified,
	// not implemented here, per spec.md section 2) when the absence
	// duration for an in-flight pending has elapsed without a qualifying
	// event arriving.
	OnTimerTick(ctx context.Context, now int64) *LockFailure
}

// noopAbsentProcessor is the zero-value AbsentProcessor: ProcessAndReturn
// and OnTimerTick return ErrAbsentNotImplemented wrapped in a LockFailure;
// the other methods are baseProcessor's and act on the ProcessorState it
// was given. It exists so
// code written against AbsentProcessor compiles today without a concrete
// absent-detection implementation.
type noopAbsentProcessor struct {
	baseProcessor
}

// NewNoopAbsentProcessor returns a scaffolding AbsentProcessor that never
// matches and always reports ErrAbsentNotImplemented when driven.
func NewNoopAbsentProcessor(stateID int, streamID string, state *ProcessorState, post PostStateProcessor, ids *idCounter) AbsentProcessor {
	return &noopAbsentProcessor{baseProcessor: baseProcessor{
		stateID:  stateID,
		streamID: streamID,
		state:    state,
		post:     post,
		ids:      ids,
	}}
}

func (n *noopAbsentProcessor) ProcessAndReturn(_ *StreamEvent) *LockFailure {
	return &LockFailure{ChainError: ChainError{Op: "AbsentProcessor.ProcessAndReturn", Err: ErrAbsentNotImplemented}, StateID: n.stateID}
}

func (n *noopAbsentProcessor) OnTimerTick(_ context.Context, _ int64) *LockFailure {
	return &LockFailure{ChainError: ChainError{Op: "AbsentProcessor.OnTimerTick", Err: ErrAbsentNotImplemented}, StateID: n.stateID}
}

package cep

import (
	"errors"
	"fmt"
)

// ChainError is the base error type for pattern chain operations, mirroring
// go-crablet's EventStoreError: a wrappable Op/Err pair that every other
// error in this package embeds.
type ChainError struct {
	Op  string // operation that failed
	Err error  // underlying error, if any
}

func (e ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e ChainError) Unwrap() error {
	return e.Err
}

// BuildRejectedKind enumerates the validation rules V1-V8 from spec.md
// section 4.3, plus the two reserved-but-unsupported constructs this
// implementation recognizes and rejects explicitly (see SPEC_FULL.md,
// Supplemented Features).
type BuildRejectedKind int

const (
	// FirstStepMinCount is V1: first step must have min_count >= 1.
	FirstStepMinCount BuildRejectedKind = iota
	// LastStepNotExact is V2: last step must have min_count == max_count.
	LastStepNotExact
	// StepBoundsInvalid is V3: every step needs 1 <= min <= max, with max
	// not the MaxUnbounded sentinel.
	StepBoundsInvalid
	// EveryInSequence is V4: EVERY is rejected inside Sequence mode.
	EveryInSequence
	// EveryNotAtRoot is V5: EVERY must wrap the entire pattern root.
	EveryNotAtRoot
	// MultipleEvery is V6: at most one EVERY in the tree.
	MultipleEvery
	// PartitionColumnsInvalid is V7: PARTITION BY columns must be non-empty
	// and unique.
	PartitionColumnsInvalid
	// AbsentNextToLogical is V8: absent patterns must not appear on either
	// side of a Logical node.
	AbsentNextToLogical
	// AbsentUnsupported covers an Absent node reached outside of a Logical
	// context; the absent-pattern processor is scaffolding only (see
	// absent.go) and is never wired into a buildable chain.
	AbsentUnsupported
	// EventCountWithinUnsupported covers WithinConstraint::EventCount,
	// an advertised contract spec.md section 5 states is "not implemented
	// in this core".
	EventCountWithinUnsupported
)

func (k BuildRejectedKind) String() string {
	switch k {
	case FirstStepMinCount:
		return "FirstStepMinCount"
	case LastStepNotExact:
		return "LastStepNotExact"
	case StepBoundsInvalid:
		return "StepBoundsInvalid"
	case EveryInSequence:
		return "EveryInSequence"
	case EveryNotAtRoot:
		return "EveryNotAtRoot"
	case MultipleEvery:
		return "MultipleEvery"
	case PartitionColumnsInvalid:
		return "PartitionColumnsInvalid"
	case AbsentNextToLogical:
		return "AbsentNextToLogical"
	case AbsentUnsupported:
		return "AbsentUnsupported"
	case EventCountWithinUnsupported:
		return "EventCountWithinUnsupported"
	default:
		return "Unknown"
	}
}

// BuildRejected is returned by PatternChainBuilder.Build when the input
// PatternExpression violates one of the validation rules. No chain is
// constructed when this error is returned.
type BuildRejected struct {
	ChainError
	Kind BuildRejectedKind
}

func NewBuildRejected(op string, kind BuildRejectedKind, msg string) *BuildRejected {
	return &BuildRejected{
		ChainError: ChainError{Op: op, Err: errors.New(msg)},
		Kind:       kind,
	}
}

// IsBuildRejected reports whether err is (or wraps) a BuildRejected.
func IsBuildRejected(err error) bool {
	var br *BuildRejected
	return errors.As(err, &br)
}

// GetBuildRejected extracts a BuildRejected from the error chain.
func GetBuildRejected(err error) (*BuildRejected, bool) {
	var br *BuildRejected
	if errors.As(err, &br) {
		return br, true
	}
	return nil, false
}

// FilterFault represents a predicate evaluation failure (arithmetic
// overflow, type mismatch). Per spec.md section 4.8 / section 7, a
// FilterFault never propagates out of the chain: the candidate StateEvent
// that produced it is simply discarded as non-matching. The type exists so
// callers that want to observe why a candidate was dropped can do so, but
// PreStateProcessor implementations fold it to `false` themselves.
type FilterFault struct {
	ChainError
	Position int
}

// LockFailure represents a failed exclusive-access acquisition on a
// processor's ProcessorState (spec.md section 7: "a host panic in another
// thread"). It is logged and the offending event is dropped; the chain
// continues operating.
type LockFailure struct {
	ChainError
	StateID int
}

func (e *LockFailure) Error() string {
	return fmt.Sprintf("lock failure at state %d: %s", e.StateID, e.ChainError.Error())
}

// ErrAbsentNotImplemented is returned by the scaffolding AbsentProcessor
// interface's zero-value implementation (see absent.go).
var ErrAbsentNotImplemented = errors.New("absent-pattern processor is not implemented in this core")

// ErrCountOutOfBounds signals a CountPostStateProcessor observing a count
// outside [min, max]: an internal consistency error indicating the paired
// CountPreStateProcessor forwarded when it should not have (spec.md
// section 4.2).
var ErrCountOutOfBounds = errors.New("count out of [min, max] bounds at forward time")

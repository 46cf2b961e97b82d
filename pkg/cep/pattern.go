package cep

import "time"

// LogicalOp is the operator of a Logical pattern node.
type LogicalOp int

const (
	LogicalAnd LogicalOp = iota
	LogicalOr
)

// WithinKind distinguishes the two WITHIN bound forms spec.md names in
// section 3.4 / 5. Only Time is implemented by the core; EventCount is
// recognized and rejected at build time (SPEC_FULL.md Supplemented
// Features).
type WithinKind int

const (
	WithinTimeKind WithinKind = iota
	WithinEventCountKind
)

// WithinConstraint anchors from the first matched event; pendings older
// than the bound are expired (spec.md GLOSSARY "WITHIN").
type WithinConstraint struct {
	Kind     WithinKind
	Duration time.Duration // meaningful when Kind == WithinTimeKind (ms precision)
	Events   int64         // meaningful when Kind == WithinEventCountKind
}

// FilterFn evaluates a Stream node's optional filter predicate against the
// expanded candidate StateEvent (spec.md section 4.7). It returns a
// three-valued result folded to bool by the caller: true, false, or
// "indeterminate" signaled by returning (false, err) where err is a
// *FilterFault. A nil FilterFn always matches.
type FilterFn func(candidate *StateEvent, position int) (bool, error)

// PatternExpression is the compiled input tree the core consumes, per
// spec.md section 3.4. Exactly one field group is populated per node,
// selected by Kind; this mirrors a tagged-variant tree rather than an
// options bag (spec.md section 9, "Configuration as a tagged-variant
// tree").
type PatternExpressionKind int

const (
	KindStream PatternExpressionKind = iota
	KindCount
	KindSequence
	KindLogical
	KindEvery
	KindAbsent
	KindGrouped
)

// PatternExpression is a tagged tree. Only the fields relevant to Kind are
// populated; implementations must match over Kind exhaustively, per
// spec.md section 9.
type PatternExpression struct {
	Kind PatternExpressionKind

	// KindStream
	Alias    string
	StreamID string
	Filter   FilterFn

	// KindCount
	Inner *PatternExpression
	Min   int
	Max   int // sentinel MaxUnbounded is explicitly rejected at build time

	// KindSequence / KindLogical
	First  *PatternExpression
	Second *PatternExpression
	Op     LogicalOp
	Left   *PatternExpression
	Right  *PatternExpression

	// KindEvery: Inner populated
	// KindAbsent
	AbsentStream   string
	AbsentDuration time.Duration

	// KindGrouped: Inner populated (transparent)
}

// MaxUnbounded is the sentinel value reserved to signal "unbounded" for a
// Count node's Max. spec.md section 4.1.2 requires this be explicitly
// rejected at build time (V3).
const MaxUnbounded = -1

// NewStreamPattern constructs a KindStream leaf.
func NewStreamPattern(alias, streamID string, filter FilterFn) *PatternExpression {
	return &PatternExpression{Kind: KindStream, Alias: alias, StreamID: streamID, Filter: filter}
}

// NewCountPattern wraps inner with a {min,max} quantifier.
func NewCountPattern(inner *PatternExpression, min, max int) *PatternExpression {
	return &PatternExpression{Kind: KindCount, Inner: inner, Min: min, Max: max}
}

// NewSequencePattern chains first -> second.
func NewSequencePattern(first, second *PatternExpression) *PatternExpression {
	return &PatternExpression{Kind: KindSequence, First: first, Second: second}
}

// NewLogicalPattern builds a left `op` right node.
func NewLogicalPattern(left *PatternExpression, op LogicalOp, right *PatternExpression) *PatternExpression {
	return &PatternExpression{Kind: KindLogical, Left: left, Op: op, Right: right}
}

// NewEveryPattern wraps inner in an EVERY root. Permitted only at the root
// (V5).
func NewEveryPattern(inner *PatternExpression) *PatternExpression {
	return &PatternExpression{Kind: KindEvery, Inner: inner}
}

// NewAbsentPattern constructs the reserved (not wired) Absent node.
func NewAbsentPattern(stream string, duration time.Duration) *PatternExpression {
	return &PatternExpression{Kind: KindAbsent, AbsentStream: stream, AbsentDuration: duration}
}

// NewGroupedPattern wraps inner in transparent parentheses.
func NewGroupedPattern(inner *PatternExpression) *PatternExpression {
	return &PatternExpression{Kind: KindGrouped, Inner: inner}
}

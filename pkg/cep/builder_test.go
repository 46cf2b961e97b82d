package cep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intAttr(v int) []AttributeValue { return []AttributeValue{v} }

func TestBuilderRejectsFirstStepMinCount(t *testing.T) {
	root := NewCountPattern(NewStreamPattern("a", "A", nil), 0, 3)
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, FirstStepMinCount, br.Kind)
}

func TestBuilderRejectsLastStepNotExact(t *testing.T) {
	root := NewSequencePattern(
		NewStreamPattern("a", "A", nil),
		NewCountPattern(NewStreamPattern("b", "B", nil), 1, 3),
	)
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, LastStepNotExact, br.Kind)
}

func TestBuilderRejectsUnboundedMax(t *testing.T) {
	root := NewCountPattern(NewStreamPattern("a", "A", nil), 1, MaxUnbounded)
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, StepBoundsInvalid, br.Kind)
}

func TestBuilderRejectsEveryInSequenceMode(t *testing.T) {
	root := NewEveryPattern(NewStreamPattern("a", "A", nil))
	_, err := NewPatternChainBuilder().Build(root, Sequence, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, EveryInSequence, br.Kind)
}

func TestBuilderRejectsEveryNotAtRoot(t *testing.T) {
	root := NewSequencePattern(
		NewEveryPattern(NewStreamPattern("a", "A", nil)),
		NewStreamPattern("b", "B", nil),
	)
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, EveryNotAtRoot, br.Kind)
}

func TestBuilderRejectsAbsentNextToLogical(t *testing.T) {
	root := NewLogicalPattern(NewAbsentPattern("A", time.Second), LogicalAnd, NewStreamPattern("b", "B", nil))
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, AbsentNextToLogical, br.Kind)
}

func TestBuilderRejectsBareAbsent(t *testing.T) {
	root := NewAbsentPattern("A", time.Second)
	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, AbsentUnsupported, br.Kind)
}

func TestBuilderRejectsInvalidPartitionColumns(t *testing.T) {
	root := NewStreamPattern("a", "A", nil)

	_, err := NewPatternChainBuilder().Build(root, Pattern, nil, []string{}, nil)
	require.Error(t, err)
	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, PartitionColumnsInvalid, br.Kind)

	_, err = NewPatternChainBuilder().Build(root, Pattern, nil, []string{"user_id", "user_id"}, nil)
	require.Error(t, err)
	br, ok = GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, PartitionColumnsInvalid, br.Kind)
}

// TestSequenceTwoStepMatch exercises scenario S1-style A->B in Sequence mode.
func TestSequenceTwoStepMatch(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewSequencePattern(NewStreamPattern("a", "A", nil), NewStreamPattern("b", "B", nil))
	chain, err := NewPatternChainBuilder().Build(root, Sequence, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, intAttr(1)))
	require.NoError(t, driveAndStabilize(chain, "B", 2, intAttr(2)))

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].CountEventsAt(0))
	assert.Equal(t, 1, got[0].CountEventsAt(1))
}

// TestSequenceDissolvesOnMismatch checks that an unrelated event in between
// dissolves a pending Sequence-mode match.
func TestSequenceDissolvesOnMismatch(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewSequencePattern(NewStreamPattern("a", "A", nil), NewStreamPattern("b", "B", nil))
	chain, err := NewPatternChainBuilder().Build(root, Sequence, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, nil))
	require.NoError(t, driveAndStabilize(chain, "A", 2, nil)) // second A on the same stream: not B, dissolves
	require.NoError(t, driveAndStabilize(chain, "B", 3, nil))

	assert.Empty(t, got, "the first A's pending must have dissolved before B arrived")
}

// TestEveryCountSlidingWindow mirrors scenario S5: EVERY(A{2} -> B) over
// A1, A2, A3, B4 should produce two overlapping matches: (A1,A2,B4) and
// (A2,A3,B4).
func TestEveryCountSlidingWindow(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewEveryPattern(NewSequencePattern(
		NewCountPattern(NewStreamPattern("a", "A", nil), 2, 2),
		NewStreamPattern("b", "B", nil),
	))
	chain, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, nil))
	require.NoError(t, driveAndStabilize(chain, "A", 2, nil))
	require.NoError(t, driveAndStabilize(chain, "A", 3, nil))
	require.NoError(t, driveAndStabilize(chain, "B", 4, nil))

	assert.Len(t, got, 2)
}

// TestLogicalAndWaitsForBothSides checks that an AND node only forwards once
// both sides of the pattern have filled.
func TestLogicalAndWaitsForBothSides(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewLogicalPattern(NewStreamPattern("a", "A", nil), LogicalAnd, NewStreamPattern("b", "B", nil))
	chain, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, nil))
	assert.Empty(t, got, "AND must not forward with only one side filled")

	require.NoError(t, driveAndStabilize(chain, "B", 2, nil))
	assert.Len(t, got, 1)
}

// TestLogicalOrEmitsOnFirstSide checks that OR forwards a match as soon as
// one side matches, without waiting for the other side.
func TestLogicalOrEmitsOnFirstSide(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewLogicalPattern(NewStreamPattern("a", "A", nil), LogicalOr, NewStreamPattern("b", "B", nil))
	chain, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, nil))
	assert.Len(t, got, 1, "OR must forward on the first side that matches")
}

// TestLogicalOrDrivingBothSidesEmitsOnce is property P10 driven against both
// operands, not just one: a losing side's later arrival must not spawn a
// second, independently-reseeded match (regression test for the builder's
// former right-side is_start bug).
func TestLogicalOrDrivingBothSidesEmitsOnce(t *testing.T) {
	var got []*StateEvent
	consumer := func(se *StateEvent) { got = append(got, se) }

	root := NewLogicalPattern(NewStreamPattern("a", "A", nil), LogicalOr, NewStreamPattern("b", "B", nil))
	chain, err := NewPatternChainBuilder().Build(root, Pattern, nil, nil, consumer)
	require.NoError(t, err)

	require.NoError(t, driveAndStabilize(chain, "A", 1, nil))
	require.NoError(t, driveAndStabilize(chain, "B", 2, nil))

	assert.Len(t, got, 1, "the losing side's arrival must not emit a second match")
}

// driveAndStabilize feeds one event to every Pre bound to streamID, then
// performs the stabilize protocol (update_state on every Pre) as the router
// would (spec.md section 4.4).
func driveAndStabilize(chain *ProcessorChain, streamID string, timestamp int64, data []AttributeValue) error {
	ev := NewStreamEvent(timestamp, data)
	for _, pre := range chain.PreProcessors() {
		if pre.StreamID() != streamID {
			continue
		}
		if lf := pre.ProcessAndReturn(ev); lf != nil {
			return lf
		}
	}
	for _, pre := range chain.PreProcessors() {
		if lf := pre.UpdateState(); lf != nil {
			return lf
		}
	}
	return nil
}

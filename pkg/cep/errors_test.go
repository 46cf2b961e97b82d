package cep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectedRoundTrip(t *testing.T) {
	err := NewBuildRejected("PatternChainBuilder.Build", EveryNotAtRoot, "EVERY is permitted only at the pattern root")

	assert.True(t, IsBuildRejected(err))

	br, ok := GetBuildRejected(err)
	require.True(t, ok)
	assert.Equal(t, EveryNotAtRoot, br.Kind)
	assert.Equal(t, "EveryNotAtRoot", br.Kind.String())
}

func TestBuildRejectedKindString(t *testing.T) {
	cases := map[BuildRejectedKind]string{
		FirstStepMinCount:           "FirstStepMinCount",
		LastStepNotExact:            "LastStepNotExact",
		StepBoundsInvalid:           "StepBoundsInvalid",
		EveryInSequence:             "EveryInSequence",
		EveryNotAtRoot:              "EveryNotAtRoot",
		MultipleEvery:               "MultipleEvery",
		PartitionColumnsInvalid:     "PartitionColumnsInvalid",
		AbsentNextToLogical:         "AbsentNextToLogical",
		AbsentUnsupported:           "AbsentUnsupported",
		EventCountWithinUnsupported: "EventCountWithinUnsupported",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestLockFailureError(t *testing.T) {
	lf := &LockFailure{ChainError: ChainError{Op: "ProcessorState", Err: errors.New("busy")}, StateID: 3}
	assert.Contains(t, lf.Error(), "lock failure at state 3")
	assert.Equal(t, "busy", lf.Unwrap().Error())
}

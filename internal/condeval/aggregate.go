package condeval

import (
	"math"

	"cepcore/pkg/cep"
)

// toFloat best-effort converts a positional attribute to float64 for
// aggregation (spec section 4.6). A value that cannot be converted
// contributes nothing to the aggregate rather than aborting it, consistent
// with the engine's rule that a fault degrades the candidate to
// non-matching instead of propagating.
func toFloat(v cep.AttributeValue) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// floatsAt collects the idx-th positional attribute of every event in the
// chain at position, skipping events that are missing it or hold a
// non-numeric value.
func floatsAt(se *cep.StateEvent, position, idx int) []float64 {
	chain := se.GetEventChain(position)
	out := make([]float64, 0, len(chain))
	for _, ev := range chain {
		if ev == nil || idx < 0 || idx >= len(ev.BeforeWindowData) {
			continue
		}
		if f, ok := toFloat(ev.BeforeWindowData[idx]); ok {
			out = append(out, f)
		}
	}
	return out
}

// reducer folds a chain's numeric values to a single float. The bool result
// is false when the reduction has no value to report (an empty or
// entirely-NULL chain, spec section 4.6), in which case aggregate degrades
// it to NULL rather than a real float64 zero.
type reducer func([]float64) (float64, bool)

// aggregate runs fn over the chain at position and folds a "no value"
// result to plain Go nil, the NULL this package's expr-lang environment
// understands (spec section 4.6: "An empty or entirely-NULL collection
// yields NULL for sum, avg, min, max, stddev"). nil compares unequal to
// every number and faults any arithmetic expr-lang attempts against it, so
// a filter referencing it folds to false either way (spec sections 4.7-4.8).
func aggregate(se *cep.StateEvent, position, idx int, fn reducer) any {
	v, ok := fn(floatsAt(se, position, idx))
	if !ok {
		return nil
	}
	return v
}

func sumFn(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	var s float64
	for _, v := range vs {
		s += v
	}
	return s, true
}

func avgFn(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	s, _ := sumFn(vs)
	return s / float64(len(vs)), true
}

func minFn(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

func maxFn(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// stddevFn computes the sample standard deviation (divisor n-1). A single
// observation yields 0 rather than NaN (there is a value, just no spread);
// zero observations yields NULL per spec section 4.6.
func stddevFn(vs []float64) (float64, bool) {
	if len(vs) == 0 {
		return 0, false
	}
	if len(vs) < 2 {
		return 0, true
	}
	mean, _ := avgFn(vs)
	var sq float64
	for _, v := range vs {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vs)-1)), true
}

package condeval

import "cepcore/pkg/cep"

// chainElement is what a single StreamEvent becomes inside the expr
// environment. If its positional payload is exactly one value and that
// value is itself a map, the map is exposed directly so dot-access
// (`e[last].price`) resolves against named fields; otherwise the raw
// positional slice is exposed, addressed by numeric index
// (`e[last][0]`).
func chainElement(se *cep.StreamEvent) any {
	if se == nil {
		return nil
	}
	if len(se.BeforeWindowData) == 1 {
		if m, ok := se.BeforeWindowData[0].(map[string]any); ok {
			return m
		}
	}
	return se.BeforeWindowData
}

// chainEnv materializes the chain at position as the slice `e` is bound to.
func chainEnv(candidate *cep.StateEvent, position int) []any {
	chain := candidate.GetEventChain(position)
	out := make([]any, len(chain))
	for i, se := range chain {
		out[i] = chainElement(se)
	}
	return out
}

// buildEnv assembles the expr-lang environment for one evaluation: alias
// bindings, the current position's indexed chain (e, last), and the
// collection-aggregation functions (spec section 4.6).
//
// Every alias and `e` are bound to their position's full chain
// (chainEnv), not just the head event, so `e2[last].volume` (spec section
// 4.7) addresses e2's own chain regardless of which position is currently
// being evaluated. `last` is the constant -1 rather than a computed
// length: expr-lang resolves negative array indices from the end, so one
// sentinel works against any alias's chain no matter its length.
func buildEnv(candidate *cep.StateEvent, position int, bindings []AliasBinding) map[string]any {
	env := make(map[string]any, len(bindings)+7)

	for _, b := range bindings {
		env[b.Alias] = chainEnv(candidate, b.Position)
	}

	env["e"] = chainEnv(candidate, position)
	env["last"] = -1

	env["count"] = func(pos int) int { return candidate.CountEventsAt(pos) }
	// sum/avg/min/max/stddev return `any`, not float64: each folds to Go nil
	// (NULL) on an empty or entirely-NULL chain instead of a misleading real
	// zero (spec section 4.6).
	env["sum"] = func(pos, idx int) any { return aggregate(candidate, pos, idx, sumFn) }
	env["avg"] = func(pos, idx int) any { return aggregate(candidate, pos, idx, avgFn) }
	env["min"] = func(pos, idx int) any { return aggregate(candidate, pos, idx, minFn) }
	env["max"] = func(pos, idx int) any { return aggregate(candidate, pos, idx, maxFn) }
	env["stddev"] = func(pos, idx int) any { return aggregate(candidate, pos, idx, stddevFn) }

	return env
}

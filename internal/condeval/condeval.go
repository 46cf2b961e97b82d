// Package condeval compiles the cross-stream filter expressions used by
// PatternExpression.Filter into cep.FilterFn values, using expr-lang/expr as
// the expression runtime. It is the only place in this module that imports
// expr-lang/expr; pkg/cep itself only knows about the FilterFn function
// type and never depends on a particular expression language.
package condeval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"cepcore/pkg/cep"
)

// AliasBinding maps a pattern alias (the name given to a Stream node, e.g.
// "a" in `A as a`) to the position it occupies in a StateEvent's
// StreamEvents array, so a compiled expression can reference it by name.
type AliasBinding struct {
	Alias    string
	Position int
}

// compiled wraps a *vm.Program with the alias bindings it closed over, so
// Evaluate can rebuild its environment on every candidate without
// recompiling the expression.
type compiled struct {
	program  *vm.Program
	bindings []AliasBinding
}

// Compile turns an expr-lang boolean expression into a cep.FilterFn.
//
// The expression may reference:
//   - any alias in bindings, bound to the indexed chain of events held at
//     that alias's position: alias[0] is the earliest event, alias[last]
//     the most recent, and alias[i].attr projects a named attribute off
//     the event at that index (nil/unfilled positions yield an empty
//     chain, so any index on them degrades to NULL)
//   - e, the same indexed chain for the position the core is currently
//     evaluating (the position argument cep passes to FilterFn), letting a
//     count-quantifier filter compare across repeats, e.g.
//     e[last].price > e[0].price
//   - last, the constant -1: expr-lang resolves negative indices from the
//     end of an array, so it addresses the final element of e or of any
//     alias's chain regardless of that chain's own length
//   - count(pos), sum(pos, idx), avg(pos, idx), min(pos, idx), max(pos,
//     idx), stddev(pos, idx): collection aggregates over the chain at pos
//     (spec section 4.6)
//
// A three-valued NULL (an alias not yet filled, an index out of range, a
// type mismatch) degrades to a normal `false` filter result rather than a
// panic: compile-time strict typing is disabled on purpose, matching the
// engine's rule that a filter fault discards the candidate instead of
// propagating (spec sections 4.7-4.8).
func Compile(source string, bindings []AliasBinding) (cep.FilterFn, error) {
	program, err := expr.Compile(source, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("condeval: compile %q: %w", source, err)
	}
	c := &compiled{program: program, bindings: bindings}
	return c.Evaluate, nil
}

// Evaluate is the cep.FilterFn produced by Compile.
func (c *compiled) Evaluate(candidate *cep.StateEvent, position int) (bool, error) {
	env := buildEnv(candidate, position, c.bindings)

	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, &cep.FilterFault{Position: position}
	}
	result, ok := out.(bool)
	if !ok {
		return false, &cep.FilterFault{Position: position}
	}
	return result, nil
}

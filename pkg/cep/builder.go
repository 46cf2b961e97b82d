package cep

// ProcessorChain is the compiled output of PatternChainBuilder.Build:
// an ordered sequence of (Pre, Post) pairs with all references wired
// (spec.md section 4.3).
type ProcessorChain struct {
	pre   []PreStateProcessor
	post  []PostStateProcessor
	first PreStateProcessor
}

// First returns Pre_0, the chain's start processor (spec.md section 6).
func (c *ProcessorChain) First() PreStateProcessor { return c.first }

// PreProcessors returns every Pre in the chain, used by the router during
// stabilize (spec.md section 6).
func (c *ProcessorChain) PreProcessors() []PreStateProcessor { return c.pre }

type stepKind int

const (
	stepStream stepKind = iota
	stepCount
	stepLogical
	stepAbsent
)

// flatStep is the builder's flattened, position-assigned view of one
// pattern step. A Logical step occupies two consecutive positions (one per
// side); every other step occupies exactly one.
type flatStep struct {
	kind   stepKind
	pos    int // position of this step (left position for Logical)
	stream string
	filter FilterFn
	min    int
	max    int

	// stepLogical only
	op          LogicalOp
	rightStream string
	rightFilter FilterFn
}

// PatternChainBuilder is the compile-time factory from spec.md section
// 4.3: it validates a PatternExpression and wires a chain of Pre/Post
// pairs with correct position ids, EVERY loopbacks, and WITHIN
// propagation.
type PatternChainBuilder struct{}

func NewPatternChainBuilder() *PatternChainBuilder {
	return &PatternChainBuilder{}
}

// Build validates root and, if it passes V1-V8, wires a ProcessorChain.
// consumer receives every completed StateEvent from the terminal Post.
func (b *PatternChainBuilder) Build(root *PatternExpression, mode StateType, within *WithinConstraint, partitionColumns []string, consumer Consumer) (*ProcessorChain, error) {
	if err := validatePartitionColumns(partitionColumns); err != nil {
		return nil, err
	}

	every, inner := unwrapRootEvery(root)

	if err := rejectNestedEvery(inner, every); err != nil {
		return nil, err
	}
	if every && mode == Sequence {
		return nil, NewBuildRejected("PatternChainBuilder.Build", EveryInSequence, "EVERY is rejected inside Sequence mode")
	}

	if within != nil && within.Kind == WithinEventCountKind {
		return nil, NewBuildRejected("PatternChainBuilder.Build", EventCountWithinUnsupported, "WITHIN n EVENTS is an advertised contract but not implemented in this core")
	}

	steps, err := flatten(inner, 0)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, NewBuildRejected("PatternChainBuilder.Build", StepBoundsInvalid, "pattern has no steps")
	}

	first := steps[0]
	if first.min < 1 {
		return nil, NewBuildRejected("PatternChainBuilder.Build", FirstStepMinCount, "first step must have min_count >= 1")
	}
	for _, s := range steps {
		if s.kind == stepCount {
			if s.min < 1 || s.max == MaxUnbounded || s.max < s.min {
				return nil, NewBuildRejected("PatternChainBuilder.Build", StepBoundsInvalid, "every step must have min_count >= 1 and an explicit, finite max_count")
			}
		}
	}
	last := steps[len(steps)-1]
	if last.kind == stepCount && last.min != last.max {
		return nil, NewBuildRejected("PatternChainBuilder.Build", LastStepNotExact, "last step must have min_count == max_count")
	}

	ids := newIDCounter()
	chain := &ProcessorChain{}

	type wired struct {
		pres  []PreStateProcessor
		posts []PostStateProcessor
	}
	var w wired

	for i, s := range steps {
		isStart := i == 0
		shared := &ProcessorSharedState{}
		var stepConsumer Consumer
		if i == len(steps)-1 {
			stepConsumer = consumer
		}

		switch s.kind {
		case stepStream:
			state := NewProcessorState(shared)
			post := NewStreamPostStateProcessor(shared, stepConsumer)
			pre := NewStreamPreStateProcessor(s.pos, s.stream, s.filter, mode, isStart, every && isStart, state, post, ids)
			if isStart {
				seedStart(state, ids)
			}
			w.pres = append(w.pres, pre)
			w.posts = append(w.posts, post)

		case stepCount:
			state := NewProcessorState(shared)
			post := NewCountPostStateProcessor(s.pos, s.min, s.max, shared, stepConsumer)
			pre := NewCountPreStateProcessor(s.pos, s.stream, s.filter, s.min, s.max, mode, isStart, every && isStart, state, post, ids)
			if isStart {
				seedStart(state, ids)
			}
			w.pres = append(w.pres, pre)
			w.posts = append(w.posts, post)

		case stepLogical:
			state := NewProcessorState(shared)
			post := NewLogicalPostStateProcessor(s.op, shared, stepConsumer)
			leftPre := NewLogicalPreStateProcessor(s.pos, s.pos+1, LogicalLeft, s.stream, s.filter, s.op, isStart, every && isStart, mode, state, post, ids)
			// The right side is never itself a start state: s.pos+1 is
			// never position 0, and a Logical step has exactly one shared
			// pending list seeded once by seedStart below. Giving it its
			// own is_start would let it reseed an empty instance out from
			// under the left side's still-open match (see DESIGN.md).
			rightPre := NewLogicalPreStateProcessor(s.pos+1, s.pos, LogicalRight, s.rightStream, s.rightFilter, s.op, false, false, mode, state, post, ids)
			if isStart {
				seedStart(state, ids)
			}
			w.pres = append(w.pres, leftPre, rightPre)
			w.posts = append(w.posts, post)
			// Both sides share one Post; the wiring loop below must treat
			// this Post as a single link, which it does since w.posts
			// tracks one entry per step, not per Pre.
		}
	}

	// §4.3 step 3: for i in [0, N-2], Post_i.next_pre = Pre_{i+1}.
	// Pre_{i+1} is the first Pre belonging to step i+1 (the left side, for
	// a Logical step).
	firstPreOfStep := make([]PreStateProcessor, len(steps))
	{
		idx := 0
		for i, s := range steps {
			firstPreOfStep[i] = w.pres[idx]
			if s.kind == stepLogical {
				idx += 2
			} else {
				idx++
			}
		}
	}
	for i := 0; i < len(steps)-1; i++ {
		w.posts[i].SetNextPre(firstPreOfStep[i+1])
	}
	if every {
		w.posts[len(steps)-1].SetNextEveryPre(firstPreOfStep[0])
	}

	// A StateEvent that Pre_0 originated moves on into later steps' pending
	// lists, so every Pre gets the bound, anchored on position 0.
	if within != nil && within.Kind == WithinTimeKind {
		ms := within.Duration.Milliseconds()
		for _, pre := range w.pres {
			st := pre.State()
			st.WithinTime = &ms
			st.StartStateIDs = map[int]struct{}{0: {}}
		}
	}

	chain.pre = w.pres
	chain.post = w.posts
	chain.first = firstPreOfStep[0]
	return chain, nil
}

// seedStart gives a start-state processor its initial empty pending
// (spec.md section 3.2 Lifecycle: "or by init() for a start-state
// processor before any event arrives, as an empty seed").
func seedStart(state *ProcessorState, ids *idCounter) {
	seed := NewStateEvent(ids.allocate())
	state.pending.PushBack(seed)
}

func unwrapRootEvery(root *PatternExpression) (bool, *PatternExpression) {
	if root.Kind == KindEvery {
		return true, root.Inner
	}
	return false, root
}

// rejectNestedEvery walks the tree (root Every already unwrapped by the
// caller) looking for any further Every node. If rootHadEvery, a second one
// found here violates V6 (at most one Every); otherwise it violates V5
// (Every permitted only at the root).
func rejectNestedEvery(n *PatternExpression, rootHadEvery bool) error {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindEvery:
		if rootHadEvery {
			return NewBuildRejected("PatternChainBuilder.Build", MultipleEvery, "at most one EVERY is permitted per pattern")
		}
		return NewBuildRejected("PatternChainBuilder.Build", EveryNotAtRoot, "EVERY is permitted only at the pattern root")
	case KindGrouped:
		return rejectNestedEvery(n.Inner, rootHadEvery)
	case KindCount:
		return rejectNestedEvery(n.Inner, rootHadEvery)
	case KindSequence:
		if err := rejectNestedEvery(n.First, rootHadEvery); err != nil {
			return err
		}
		return rejectNestedEvery(n.Second, rootHadEvery)
	case KindLogical:
		if err := rejectNestedEvery(n.Left, rootHadEvery); err != nil {
			return err
		}
		return rejectNestedEvery(n.Right, rootHadEvery)
	}
	return nil
}

// flatten walks n (Sequence/Grouped transparent) producing an ordered list
// of positioned steps starting at pos. It enforces V8 (Absent must not
// appear on either side of a Logical node) and rejects any bare Absent
// node reached outside that context (AbsentUnsupported).
func flatten(n *PatternExpression, pos int) ([]flatStep, error) {
	switch n.Kind {
	case KindGrouped:
		return flatten(n.Inner, pos)

	case KindSequence:
		left, err := flatten(n.First, pos)
		if err != nil {
			return nil, err
		}
		nextPos := pos + stepWidth(left)
		right, err := flatten(n.Second, nextPos)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	case KindStream:
		return []flatStep{{kind: stepStream, pos: pos, stream: n.StreamID, filter: n.Filter, min: 1, max: 1}}, nil

	case KindCount:
		if n.Inner.Kind != KindStream {
			return nil, NewBuildRejected("PatternChainBuilder.Build", StepBoundsInvalid, "a count quantifier must wrap a single stream element")
		}
		return []flatStep{{kind: stepCount, pos: pos, stream: n.Inner.StreamID, filter: n.Inner.Filter, min: n.Min, max: n.Max}}, nil

	case KindLogical:
		if n.Left.Kind == KindAbsent || n.Right.Kind == KindAbsent {
			return nil, NewBuildRejected("PatternChainBuilder.Build", AbsentNextToLogical, "absent patterns must not appear on either side of a Logical node")
		}
		if n.Left.Kind != KindStream || n.Right.Kind != KindStream {
			return nil, NewBuildRejected("PatternChainBuilder.Build", StepBoundsInvalid, "a Logical node's operands must be plain stream elements")
		}
		return []flatStep{{
			kind: stepLogical, pos: pos,
			stream: n.Left.StreamID, filter: n.Left.Filter,
			op: n.Op,
			rightStream: n.Right.StreamID, rightFilter: n.Right.Filter,
			min: 1, max: 1,
		}}, nil

	case KindAbsent:
		return nil, NewBuildRejected("PatternChainBuilder.Build", AbsentUnsupported, "absent-pattern processor is scaffolding only and cannot be built into a chain")

	default:
		return nil, NewBuildRejected("PatternChainBuilder.Build", StepBoundsInvalid, "unrecognized pattern node")
	}
}

func stepWidth(steps []flatStep) int {
	w := 0
	for _, s := range steps {
		if s.kind == stepLogical {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func validatePartitionColumns(cols []string) error {
	if cols == nil {
		return nil
	}
	if len(cols) == 0 {
		return NewBuildRejected("PatternChainBuilder.Build", PartitionColumnsInvalid, "PARTITION BY columns must be non-empty")
	}
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, ok := seen[c]; ok {
			return NewBuildRejected("PatternChainBuilder.Build", PartitionColumnsInvalid, "PARTITION BY columns must be unique")
		}
		seen[c] = struct{}{}
	}
	return nil
}

package cep

import "github.com/google/uuid"

// EventType tags a StreamEvent's provenance, mirroring spec.md section 3.1.
type EventType int

const (
	EventTypeCurrent EventType = iota
	EventTypeExpired
	EventTypeTimer
	EventTypeReset
)

func (t EventType) String() string {
	switch t {
	case EventTypeCurrent:
		return "CURRENT"
	case EventTypeExpired:
		return "EXPIRED"
	case EventTypeTimer:
		return "TIMER"
	case EventTypeReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// AttributeValue is the positional attribute payload carried by a
// StreamEvent. It is deliberately `any`: schema and type enforcement are
// the compiler's job (spec.md section 1, out of scope here).
type AttributeValue = any

// StreamEvent is a single event as observed on an input stream, including
// the singly-linked chain used by count quantifiers (spec.md section 3.1).
// The chain head is the earliest event; Next points to the later one.
type StreamEvent struct {
	Timestamp        int64
	BeforeWindowData []AttributeValue
	EventType        EventType
	Next             *StreamEvent
}

// NewStreamEvent constructs a CURRENT StreamEvent with the given timestamp
// and positional attribute payload.
func NewStreamEvent(timestamp int64, data []AttributeValue) *StreamEvent {
	return &StreamEvent{Timestamp: timestamp, BeforeWindowData: data, EventType: EventTypeCurrent}
}

// Clone deep-copies a StreamEvent and its entire chain. Cloning duplicates
// both the slot and the chain, per spec.md section 3.1.
func (e *StreamEvent) Clone() *StreamEvent {
	if e == nil {
		return nil
	}
	data := make([]AttributeValue, len(e.BeforeWindowData))
	copy(data, e.BeforeWindowData)
	return &StreamEvent{
		Timestamp:        e.Timestamp,
		BeforeWindowData: data,
		EventType:        e.EventType,
		Next:             e.Next.Clone(),
	}
}

// chainSlice materializes the chain from head to tail as a slice, the form
// the indexed-variable and collection-aggregation executors operate on
// (spec.md sections 4.5-4.6).
func (e *StreamEvent) chainSlice() []*StreamEvent {
	var out []*StreamEvent
	for cur := e; cur != nil; cur = cur.Next {
		out = append(out, cur)
	}
	return out
}

// chainLen returns the number of events in the chain rooted at e (0 if e is
// nil).
func (e *StreamEvent) chainLen() int {
	n := 0
	for cur := e; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// appendToChain links next after the current tail of head's chain,
// mutating that chain in place, and returns the chain head (next itself
// when head is nil).
func appendToChain(head, next *StreamEvent) *StreamEvent {
	if head == nil {
		return next
	}
	cur := head
	for cur.Next != nil {
		cur = cur.Next
	}
	cur.Next = next
	return head
}

// dropOldest returns a new chain head with the earliest event in the chain
// removed (used by the CountPreStateProcessor's EVERY sliding-window
// re-seed, spec.md section 4.1.2).
func dropOldest(head *StreamEvent) *StreamEvent {
	if head == nil {
		return nil
	}
	return head.Next
}

// dropNewest returns a new chain head with the last event removed (used by
// remove_last_event for backtracking on a count overshoot, spec.md section
// 4.1.2 step 5).
func dropNewest(head *StreamEvent) *StreamEvent {
	if head == nil || head.Next == nil {
		return nil
	}
	// Clone the prefix up to (not including) the tail so the original
	// chain referenced elsewhere (e.g. already-forwarded clones) is
	// unaffected.
	clonedHead := &StreamEvent{Timestamp: head.Timestamp, BeforeWindowData: head.BeforeWindowData, EventType: head.EventType}
	cur := clonedHead
	for n := head.Next; n.Next != nil; n = n.Next {
		cur.Next = &StreamEvent{Timestamp: n.Timestamp, BeforeWindowData: n.BeforeWindowData, EventType: n.EventType}
		cur = cur.Next
	}
	return clonedHead
}

// StateEvent is a partial or completed pattern match: an array of
// per-position stream-event chains, indexed by position 0..N-1 (spec.md
// section 3.2).
type StateEvent struct {
	StreamEvents []*StreamEvent // position -> chain head (nil if empty)
	Timestamp    int64
	EventType    EventType
	ID           uint64 // monotonic identifier distinguishing EVERY siblings
	OutputData   []AttributeValue

	// CorrelationID is a host-facing tracing handle (SPEC_FULL.md domain
	// stack), distinct from ID: it is assigned once per root seed and
	// carried through every clone/fork so a host can correlate sibling
	// instances in logs without the matching algorithm depending on it.
	CorrelationID uuid.UUID
}

// NewStateEvent creates an empty seed StateEvent, as produced by init() for
// a start-state processor before any event arrives.
func NewStateEvent(id uint64) *StateEvent {
	return &StateEvent{
		StreamEvents:  nil,
		ID:            id,
		CorrelationID: uuid.New(),
	}
}

// expandToSize grows StreamEvents to length n if it is currently shorter,
// filling intervening slots with nil. This is invariant I4: mandatory
// before any cross-stream filter evaluation, and idempotent (property P6)
// since it never touches a slot that already exists.
func (s *StateEvent) expandToSize(n int) {
	if len(s.StreamEvents) >= n {
		return
	}
	grown := make([]*StreamEvent, n)
	copy(grown, s.StreamEvents)
	s.StreamEvents = grown
}

// SetEvent writes event as the chain head at position, expanding the
// backing array first (invariant I4).
func (s *StateEvent) SetEvent(position int, event *StreamEvent) {
	s.expandToSize(position + 1)
	s.StreamEvents[position] = event
	if event != nil {
		s.Timestamp = event.Timestamp
		s.EventType = event.EventType
	}
}

// AddEvent appends event to the chain at position, growing the chain by
// one (used by CountPreStateProcessor, spec.md section 4.1.2 step 1).
func (s *StateEvent) AddEvent(position int, event *StreamEvent) {
	s.expandToSize(position + 1)
	s.StreamEvents[position] = appendToChain(s.StreamEvents[position], event)
	if event != nil {
		s.Timestamp = event.Timestamp
		s.EventType = event.EventType
	}
}

// RemoveLastEvent backtracks by one at position (used when a count
// processor observes c > max_count, spec.md section 4.1.2 step 5 /
// section 7 BacktrackOvershoot).
func (s *StateEvent) RemoveLastEvent(position int) {
	if position >= len(s.StreamEvents) {
		return
	}
	s.StreamEvents[position] = dropNewest(s.StreamEvents[position])
}

// DropOldestEvent drops the earliest event in the chain at position,
// implementing the EVERY sliding-window re-seed (spec.md section 4.1.2).
func (s *StateEvent) DropOldestEvent(position int) {
	if position >= len(s.StreamEvents) {
		return
	}
	s.StreamEvents[position] = dropOldest(s.StreamEvents[position])
}

// GetStreamEvent returns the head of the chain at position, or nil if the
// position is empty or out of bounds (spec.md section 6, exposed to the
// projector).
func (s *StateEvent) GetStreamEvent(position int) *StreamEvent {
	if position < 0 || position >= len(s.StreamEvents) {
		return nil
	}
	return s.StreamEvents[position]
}

// GetEventChain returns the full chain at position as a slice, head first.
func (s *StateEvent) GetEventChain(position int) []*StreamEvent {
	return s.GetStreamEvent(position).chainSlice()
}

// CountEventsAt returns the number of events in the chain at position.
func (s *StateEvent) CountEventsAt(position int) int {
	return s.GetStreamEvent(position).chainLen()
}

// Clone deep-copies the StateEvent, giving the clone the same ID (used for
// non-EVERY forwarding, where the instance identity does not change).
func (s *StateEvent) Clone() *StateEvent {
	cloned := &StateEvent{
		Timestamp:     s.Timestamp,
		EventType:     s.EventType,
		ID:            s.ID,
		CorrelationID: s.CorrelationID,
	}
	if s.StreamEvents != nil {
		cloned.StreamEvents = make([]*StreamEvent, len(s.StreamEvents))
		for i, head := range s.StreamEvents {
			cloned.StreamEvents[i] = head.Clone()
		}
	}
	if s.OutputData != nil {
		cloned.OutputData = append([]AttributeValue(nil), s.OutputData...)
	}
	return cloned
}

// CloneWithNewID deep-copies the StateEvent and assigns it a fresh
// monotonic id, as used when EVERY spawns a new overlapping instance
// (spec.md section 3.2 "Forwarded").
func (s *StateEvent) CloneWithNewID(nextID uint64) *StateEvent {
	cloned := s.Clone()
	cloned.ID = nextID
	return cloned
}

package matcher

import (
	"fmt"

	"timesheet-reconciliation-service/pkg/errors"
)

// State is where a source record stands in the matching flow
type State int

const (
	StateUnmatched State = iota
	StatePass2Candidate
	StateMatched
	StateUnmatchedTerminal
	StateSkipped
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateUnmatched:
		return "Unmatched"
	case StatePass2Candidate:
		return "Pass2Candidate"
	case StateMatched:
		return "Matched"
	case StateUnmatchedTerminal:
		return "UnmatchedTerminal"
	case StateSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further event is accepted
func (s State) Terminal() bool {
	return s == StateMatched || s == StateUnmatchedTerminal || s == StateSkipped
}

// Event drives a transition
type Event int

const (
	EventFieldMissing Event = iota
	EventExcluded
	EventKeyHit
	EventKeyMiss
	EventRuleHit
	EventRuleMiss
)

// String returns the string representation of Event
func (e Event) String() string {
	switch e {
	case EventFieldMissing:
		return "fieldMissing"
	case EventExcluded:
		return "excluded"
	case EventKeyHit:
		return "keyHit"
	case EventKeyMiss:
		return "keyMiss"
	case EventRuleHit:
		return "ruleHit"
	case EventRuleMiss:
		return "ruleMiss"
	default:
		return "unknown"
	}
}

type transition struct {
	from  State
	event Event
}

// transitions is the whole matching flow. Pass 2 is only reachable through
// a pass 1 miss.
var transitions = map[transition]State{
	{StateUnmatched, EventFieldMissing}:  StateSkipped,
	{StateUnmatched, EventExcluded}:      StateSkipped,
	{StateUnmatched, EventKeyHit}:        StateMatched,
	{StateUnmatched, EventKeyMiss}:       StatePass2Candidate,
	{StatePass2Candidate, EventRuleHit}:  StateMatched,
	{StatePass2Candidate, EventRuleMiss}: StateUnmatchedTerminal,
}

// machine tracks one record through the table
type machine struct {
	state State
	trail []State
}

func newMachine() *machine {
	return &machine{state: StateUnmatched, trail: []State{StateUnmatched}}
}

func (m *machine) fire(e Event) error {
	next, ok := transitions[transition{m.state, e}]
	if !ok {
		return errors.InternalError(errors.CodeInvalidState, "matching",
			fmt.Errorf("no transition from %s on %s", m.state, e))
	}
	m.state = next
	m.trail = append(m.trail, next)
	return nil
}

// pass derives the reported pass from the state the record matched from
func (m *machine) pass() MatchPass {
	if m.state != StateMatched {
		return PassUnmatched
	}
	if len(m.trail) >= 2 && m.trail[len(m.trail)-2] == StatePass2Candidate {
		return PassMultimatch
	}
	return PassComposite
}

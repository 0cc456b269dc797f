package pipeline

import "fmt"

// State is the lifecycle stage of one import request.
type State int

// Import states, in order.
const (
	Queued State = iota
	Parsing
	FannedOut
	Joining
	Assembling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "Queued"
	case Parsing:
		return "Parsing"
	case FannedOut:
		return "FannedOut"
	case Joining:
		return "Joining"
	case Assembling:
		return "Assembling"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// next lists the legal successor of each non-terminal state besides Failed.
var next = map[State]State{
	Queued:     Parsing,
	Parsing:    FannedOut,
	FannedOut:  Joining,
	Joining:    Assembling,
	Assembling: Done,
}

// CanTransition reports whether from → to is legal. Every non-terminal
// state may fail.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	return to == Failed || next[from] == to
}

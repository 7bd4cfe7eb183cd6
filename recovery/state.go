package recovery

// State is the orchestrator's position in a resolution pass.
type State int

const (
	Idle      State = iota // pass not started
	Scanning               // checking candidate Transition.Index
	Resolved               // terminal: a candidate hit the index
	Exhausted              // terminal: every candidate missed or failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Resolved:
		return "resolved"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == Resolved || s == Exhausted
}

// Transition is one step of the state machine. Index and Candidate refer to
// the candidate being scanned (or the one that resolved); they are -1 and
// "" when not applicable.
type Transition struct {
	From      State
	To        State
	Index     int
	Candidate string
}

// Observer receives transitions in order, synchronously.
type Observer func(Transition)

package domain

// State is a dispute's position in the processing state machine.
type State string

const (
	StateDiscovered   State = "Discovered"
	StateInvestigated State = "Investigated"
	StateClassified   State = "Classified"
	StateResolved     State = "Resolved"
	StateUpdated      State = "Updated"
	StateAudited      State = "Audited"
	StateFailed       State = "Failed"
)

// allowedTransitions lists forward moves. Failed is reachable from every
// non-terminal state and is absorbing. Resolved goes straight to Audited when
// the resolution is a NoAction and the sheet update is skipped.
var allowedTransitions = map[State][]State{
	StateDiscovered:   {StateInvestigated, StateFailed},
	StateInvestigated: {StateClassified, StateFailed},
	StateClassified:   {StateResolved, StateFailed},
	StateResolved:     {StateUpdated, StateAudited, StateFailed},
	StateUpdated:      {StateAudited, StateFailed},
	StateAudited:      {},
	StateFailed:       {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateAudited || s == StateFailed
}

package flow

// State is a step of a run. A run only ever moves forward, ending in
// StateDone or StateFailed.
type State int

const (
	StateStart State = iota
	StateKeyLoaded
	StateAssertionBuilt
	StateExchanged
	StateInspected
	StateSkippedInspection
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateKeyLoaded:
		return "KeyLoaded"
	case StateAssertionBuilt:
		return "AssertionBuilt"
	case StateExchanged:
		return "Exchanged"
	case StateInspected:
		return "Inspected"
	case StateSkippedInspection:
		return "SkippedInspection"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

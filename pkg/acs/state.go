package acs

// State is one of the controller's explicit states (§4.5, §9 "model as an
// explicit state enum ... do not use hidden coroutine stacks").
type State int

const (
	StateIdle State = iota
	StateSanity
	StateInitialScan
	StateSurveying
	StatePassComplete
	StateDeciding
	StateHandoff
	StateTerminatedOK
	StateTerminatedFail
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSanity:
		return "Sanity"
	case StateInitialScan:
		return "InitialScan"
	case StateSurveying:
		return "Surveying"
	case StatePassComplete:
		return "PassComplete"
	case StateDeciding:
		return "Deciding"
	case StateHandoff:
		return "Handoff"
	case StateTerminatedOK:
		return "Terminated-OK"
	case StateTerminatedFail:
		return "Terminated-Fail"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one of the two terminal states.
func (s State) Terminal() bool {
	return s == StateTerminatedOK || s == StateTerminatedFail
}

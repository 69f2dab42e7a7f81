package model

// Probe run state constants.
const (
	StatePending   = "pending"
	StateReady     = "ready"
	StateRunning   = "running"
	StateRetrying  = "retrying"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateTimedOut  = "timedout"
	StateSkipped   = "skipped"
)

// validStateTransitions maps each state to the set of states it may move to.
// Transitions are monotonic except for the running/retrying loop.
var validStateTransitions = map[string]map[string]bool{
	StatePending: {
		StateReady:   true,
		StateSkipped: true,
	},
	StateReady: {
		StateRunning: true,
		StateSkipped: true,
	},
	StateRunning: {
		StateRetrying:  true,
		StateSucceeded: true,
		StateFailed:    true,
		StateTimedOut:  true,
	},
	StateRetrying: {
		StateRunning:  true,
		StateTimedOut: true,
		StateSkipped:  true,
	},
}

// ValidStateTransition reports whether moving a probe from one state to
// another is allowed.
func ValidStateTransition(from, to string) bool {
	targets, ok := validStateTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// TerminalState reports whether a probe in state s will never transition again.
func TerminalState(s string) bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateSkipped:
		return true
	}
	return false
}

package model

import "time"

// Run status constants.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunAborted   = "aborted"
)

// validRunTransitions maps each run status to the set of statuses it may
// transition to.
var validRunTransitions = map[string]map[string]bool{
	RunPending: {
		RunRunning:   true,
		RunCancelled: true,
	},
	RunRunning: {
		RunCompleted: true,
		RunCancelled: true,
		RunAborted:   true,
	},
}

// ValidRunTransition reports whether transitioning a run from one status to
// another is allowed.
func ValidRunTransition(from, to string) bool {
	targets, ok := validRunTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Run represents one complete scan: admission of every registered probe
// through full terminal-state resolution.
type Run struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	Trigger      string     `json:"trigger"`
	Hostname     string     `json:"hostname"`
	Total        int        `json:"total"`
	Supported    int        `json:"supported"`
	Partial      int        `json:"partial"`
	Unsupported  int        `json:"unsupported"`
	Errors       int        `json:"errors"`
	OverallScore *int       `json:"overall_score,omitempty"`
	AbortReason  string     `json:"abort_reason,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

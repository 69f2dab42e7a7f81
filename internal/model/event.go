package model

import "time"

// Event type constants. The set is closed; observers can rely on it.
const (
	EventProbeStart   = "probe-start"
	EventProbeRetry   = "probe-retry"
	EventProbeTimeout = "probe-timeout"
	EventProbeSuccess = "probe-success"
	EventProbeError   = "probe-error"
	EventProbeSkipped = "probe-skipped"
	EventRunProgress  = "run-progress"
	EventRunComplete  = "run-complete"
)

// Event is a lifecycle notification emitted during a run. Events for one probe
// are strictly ordered: probe-start always precedes that probe's retry,
// timeout, success, error, or skipped events.
type Event struct {
	Type      string      `json:"type"`
	ProbeID   string      `json:"probe_id,omitempty"`
	Attempt   int         `json:"attempt,omitempty"`
	Result    *Result     `json:"result,omitempty"`
	Completed int         `json:"completed,omitempty"`
	Total     int         `json:"total,omitempty"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Time      time.Time   `json:"time"`
}

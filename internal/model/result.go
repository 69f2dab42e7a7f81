package model

import "time"

// Result status constants. Every probe ends with exactly one of these.
const (
	StatusSupported   = "supported"
	StatusPartial     = "partial"
	StatusUnsupported = "unsupported"
	StatusError       = "error"
)

// ValidStatus reports whether s is a status an executor may deliberately return.
// "error" is reserved for the aggregator; executors signal errors by failing.
func ValidStatus(s string) bool {
	return s == StatusSupported || s == StatusPartial || s == StatusUnsupported
}

// Outcome is the raw value an executor yields on completion. The orchestrator
// inspects nothing about probe internals beyond this shape.
type Outcome struct {
	Status     string         `json:"status"`
	Details    string         `json:"details,omitempty"`
	Score      *int           `json:"score,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Result is the canonical record produced for every registered probe.
// A completed run always holds exactly one Result per registered probe.
type Result struct {
	ProbeID    string         `json:"probe_id"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Status     string         `json:"status"`
	Details    string         `json:"details"`
	Score      *int           `json:"score,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Attempts   int            `json:"attempts"`
	Payload    map[string]any `json:"payload,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// CategorySummary holds per-category status counts and score.
type CategorySummary struct {
	Total       int `json:"total"`
	Supported   int `json:"supported"`
	Partial     int `json:"partial"`
	Unsupported int `json:"unsupported"`
	Errors      int `json:"errors"`
	Score       int `json:"score"`
}

// RunSummary is computed once, after the last probe reaches a terminal state.
type RunSummary struct {
	Total        int                        `json:"total"`
	Supported    int                        `json:"supported"`
	Partial      int                        `json:"partial"`
	Unsupported  int                        `json:"unsupported"`
	Errors       int                        `json:"errors"`
	OverallScore int                        `json:"overall_score"`
	Categories   map[string]CategorySummary `json:"categories"`
	Aborted      bool                       `json:"aborted,omitempty"`
	AbortReason  string                     `json:"abort_reason,omitempty"`
	DurationMS   int64                      `json:"duration_ms"`
}

// Package report normalizes raw probe outcomes into canonical Result records
// and computes summary statistics over a completed or partial result set.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// Normalize maps a deliberate executor outcome to a Result. Any malformed
// outcome (unrecognized status, out-of-range score) is converted to a status
// "error" Result with a generic diagnostic so a misbehaving probe can never
// corrupt the result model. The second return value reports whether the
// outcome was well formed.
func Normalize(def registry.Definition, out model.Outcome, started, finished time.Time, attempts int) (model.Result, bool) {
	r := base(def, started, finished, attempts)

	if !model.ValidStatus(out.Status) {
		r.Status = model.StatusError
		r.Details = fmt.Sprintf("probe returned unrecognized status %q", out.Status)
		return r, false
	}

	r.Status = out.Status
	r.Details = out.Details
	if r.Details == "" {
		r.Details = "no details reported"
	}
	if out.Score != nil {
		score := *out.Score
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		r.Score = &score
	}
	if out.DurationMS != nil && *out.DurationMS >= 0 {
		r.DurationMS = *out.DurationMS
	}
	r.Payload = out.Payload
	return r, true
}

// Failure converts an executor failure into an error Result.
func Failure(def registry.Definition, err error, started, finished time.Time, attempts int) model.Result {
	r := base(def, started, finished, attempts)
	r.Status = model.StatusError
	r.Details = fmt.Sprintf("probe failed: %v", err)
	return r
}

// Timeout converts an exhausted, timed-out probe into an error Result.
func Timeout(def registry.Definition, started, finished time.Time, attempts int) model.Result {
	r := base(def, started, finished, attempts)
	r.Status = model.StatusError
	r.Details = fmt.Sprintf("probe timed out after %s (%d attempts)", def.Timeout, attempts)
	return r
}

// Skipped produces the Result for a probe that never ran. Per the default
// dependency-failure policy its status is "unsupported".
func Skipped(def registry.Definition, reason string, at time.Time) model.Result {
	r := base(def, at, at, 0)
	r.Status = model.StatusUnsupported
	r.Details = reason
	return r
}

// Aborted produces the error Result for an in-flight probe cut off by the
// global run deadline.
func Aborted(def registry.Definition, reason string, started, finished time.Time, attempts int) model.Result {
	r := base(def, started, finished, attempts)
	r.Status = model.StatusError
	r.Details = reason
	return r
}

func base(def registry.Definition, started, finished time.Time, attempts int) model.Result {
	name := def.Name
	if name == "" {
		name = def.ID
	}
	return model.Result{
		ProbeID:    def.ID,
		Name:       name,
		Category:   def.Category,
		Attempts:   attempts,
		DurationMS: finished.Sub(started).Milliseconds(),
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// Summarize counts results per status and computes the overall and
// per-category scores.
func Summarize(results []model.Result) model.RunSummary {
	s := model.RunSummary{
		Total:      len(results),
		Categories: make(map[string]model.CategorySummary),
	}

	for _, r := range results {
		c := s.Categories[r.Category]
		c.Total++
		switch r.Status {
		case model.StatusSupported:
			s.Supported++
			c.Supported++
		case model.StatusPartial:
			s.Partial++
			c.Partial++
		case model.StatusUnsupported:
			s.Unsupported++
			c.Unsupported++
		default:
			s.Errors++
			c.Errors++
		}
		s.Categories[r.Category] = c
	}

	s.OverallScore = Score(s.Supported, s.Partial, s.Total)
	for cat, c := range s.Categories {
		c.Score = Score(c.Supported, c.Partial, c.Total)
		s.Categories[cat] = c
	}
	return s
}

// Score applies the summary formula: round(((supported + partial*0.5) / total) * 100).
func Score(supported, partial, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round((float64(supported) + float64(partial)*0.5) / float64(total) * 100))
}

package scheduler

import (
	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
)

// Blocked identifies a probe that must be skipped because a dependency ended
// in a non-succeeded terminal state.
type Blocked struct {
	ID              string
	Dependency      string
	DependencyState string
}

// Resolver computes probe readiness over a fixed definition list. It holds no
// mutable state of its own; callers pass the current state view.
type Resolver struct {
	defs []registry.Definition
}

// NewResolver creates a resolver over the given definitions. The slice order
// is the deterministic admission tie-break (registration order).
func NewResolver(defs []registry.Definition) *Resolver {
	return &Resolver{defs: defs}
}

// Ready returns, in registration order, every probe that has not started and
// whose full dependency set has reached a terminal state. Probes with a
// failed, timed-out, or skipped dependency are excluded unless they opted
// into running regardless; those appear in Blocked instead.
func (r *Resolver) Ready(states map[string]string) []string {
	var ready []string
	for _, def := range r.defs {
		if !waiting(states[def.ID]) {
			continue
		}
		allTerminal := true
		anyFailed := false
		for _, dep := range def.Requires {
			ds := states[dep]
			if !model.TerminalState(ds) {
				allTerminal = false
				break
			}
			if ds != model.StateSucceeded {
				anyFailed = true
			}
		}
		if !allTerminal {
			continue
		}
		if anyFailed && !def.RunOnDependencyFailure {
			continue
		}
		ready = append(ready, def.ID)
	}
	return ready
}

// Skippable returns, in registration order, every probe that has not started
// and has at least one dependency in a failed, timed-out, or skipped state,
// unless the probe opted into running regardless. The reported dependency is
// the first offending one in declaration order.
func (r *Resolver) Skippable(states map[string]string) []Blocked {
	var blocked []Blocked
	for _, def := range r.defs {
		if !waiting(states[def.ID]) || def.RunOnDependencyFailure {
			continue
		}
		for _, dep := range def.Requires {
			ds := states[dep]
			if ds == model.StateFailed || ds == model.StateTimedOut || ds == model.StateSkipped {
				blocked = append(blocked, Blocked{
					ID:              def.ID,
					Dependency:      dep,
					DependencyState: ds,
				})
				break
			}
		}
	}
	return blocked
}

// waiting reports whether a probe in state s has not been admitted yet.
func waiting(s string) bool {
	return s == model.StatePending || s == model.StateReady
}

// Package registry holds declarative probe definitions. A registry is built
// up by the caller before a run, then frozen: freezing locks registration and
// validates that every dependency reference resolves and that the dependency
// graph is acyclic. The orchestrator refuses to run an unfrozen registry.
package registry

import (
	"context"
	"time"

	"github.com/probelab/capscan/internal/model"
)

// DefaultTimeout bounds a probe attempt when the definition does not set one.
const DefaultTimeout = 10 * time.Second

// Executor is the contract a probe satisfies: given the read-only run
// environment, it yields an Outcome or fails. The context carries the
// per-attempt deadline; executors that cannot be interrupted have their late
// results discarded.
type Executor interface {
	Check(ctx context.Context, env model.Environment) (model.Outcome, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, env model.Environment) (model.Outcome, error)

// Check implements Executor.
func (f ExecutorFunc) Check(ctx context.Context, env model.Environment) (model.Outcome, error) {
	return f(ctx, env)
}

// Definition describes one probe. Immutable once the registry is frozen.
type Definition struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Requires []string      `json:"requires,omitempty"`
	Timeout  time.Duration `json:"timeout"`

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`

	// ExponentialBackoff doubles the backoff after every failed attempt
	// instead of waiting a fixed interval.
	ExponentialBackoff bool `json:"exponential_backoff,omitempty"`

	// RunOnDependencyFailure opts this probe out of the default
	// skip-on-failure policy: it runs once its dependencies are terminal,
	// regardless of how they ended.
	RunOnDependencyFailure bool `json:"run_on_dependency_failure,omitempty"`

	Exec Executor `json:"-"`
}

// Registry is an ordered collection of probe definitions.
type Registry struct {
	defs   []Definition
	index  map[string]int
	frozen bool
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a definition. It validates the definition structurally and
// rejects duplicate ids. Dependency references are checked at Freeze, so
// probes may be registered in any order.
func (r *Registry) Register(def Definition) error {
	if r.frozen {
		return ErrFrozen
	}
	if err := validate(def); err != nil {
		return err
	}
	if _, ok := r.index[def.ID]; ok {
		return &DuplicateIDError{ID: def.ID}
	}
	if def.Timeout <= 0 {
		def.Timeout = DefaultTimeout
	}
	r.index[def.ID] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// Freeze locks further registration and validates the dependency graph:
// every declared dependency must reference a registered probe and the graph
// must be acyclic. Freeze is idempotent once it has succeeded.
func (r *Registry) Freeze() error {
	if r.frozen {
		return nil
	}
	for _, def := range r.defs {
		for _, dep := range def.Requires {
			if _, ok := r.index[dep]; !ok {
				return &UnknownDependencyError{ProbeID: def.ID, Dependency: dep}
			}
		}
	}
	if cycle := r.findCycle(); cycle != nil {
		return &CyclicDependencyError{Cycle: cycle}
	}
	r.frozen = true
	return nil
}

// Frozen reports whether the registry has been frozen.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Len returns the number of registered probes.
func (r *Registry) Len() int {
	return len(r.defs)
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, bool) {
	i, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// All returns the definitions in registration order. The returned slice is a
// copy; the registry's own ordering is the deterministic admission tie-break.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func validate(def Definition) error {
	switch {
	case def.ID == "":
		return &InvalidDefinitionError{ID: def.ID, Reason: "id is required"}
	case def.Exec == nil:
		return &InvalidDefinitionError{ID: def.ID, Reason: "executor is required"}
	case def.Category == "":
		return &InvalidDefinitionError{ID: def.ID, Reason: "category is required"}
	case def.MaxRetries < 0:
		return &InvalidDefinitionError{ID: def.ID, Reason: "max retries must not be negative"}
	case def.RetryBackoff < 0:
		return &InvalidDefinitionError{ID: def.ID, Reason: "retry backoff must not be negative"}
	}
	return nil
}

// findCycle runs a depth-first search over the dependency graph and returns
// the first cycle found as a path (first and last element equal), or nil.
func (r *Registry) findCycle() []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(r.defs))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = inStack
		stack = append(stack, id)
		def := r.defs[r.index[id]]
		for _, dep := range def.Requires {
			switch state[dep] {
			case inStack:
				// Cut the stack down to where the cycle starts.
				for i, s := range stack {
					if s == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, def := range r.defs {
		if state[def.ID] == unvisited {
			if cycle := visit(def.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

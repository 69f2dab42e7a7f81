package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFrozen is returned when registering on a frozen registry.
var ErrFrozen = errors.New("registry is frozen")

// ErrNotFrozen is returned when a run is started on an unfrozen registry.
var ErrNotFrozen = errors.New("registry is not frozen")

// InvalidDefinitionError reports a structurally invalid probe definition.
type InvalidDefinitionError struct {
	ID     string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid probe definition: %s", e.Reason)
	}
	return fmt.Sprintf("invalid probe definition %q: %s", e.ID, e.Reason)
}

// DuplicateIDError reports a probe id registered more than once.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("probe %q is already registered", e.ID)
}

// UnknownDependencyError reports a dependency on a probe that was never
// registered.
type UnknownDependencyError struct {
	ProbeID    string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("probe %q depends on unregistered probe %q", e.ProbeID, e.Dependency)
}

// CyclicDependencyError reports a dependency cycle. Cycle lists the offending
// path with the first probe repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

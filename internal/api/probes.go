package api

import (
	"net/http"
)

// probeResponse describes one registered probe for GET /v1/probes.
type probeResponse struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Category               string   `json:"category"`
	Requires               []string `json:"requires,omitempty"`
	TimeoutMS              int64    `json:"timeout_ms"`
	MaxRetries             int      `json:"max_retries"`
	RetryBackoffMS         int64    `json:"retry_backoff_ms,omitempty"`
	ExponentialBackoff     bool     `json:"exponential_backoff,omitempty"`
	RunOnDependencyFailure bool     `json:"run_on_dependency_failure,omitempty"`
}

// listProbesResponse wraps the probe list.
type listProbesResponse struct {
	Probes []probeResponse `json:"probes"`
	Total  int             `json:"total"`
}

func (s *Server) handleListProbes(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Definitions()

	probes := make([]probeResponse, len(defs))
	for i, def := range defs {
		probes[i] = probeResponse{
			ID:                     def.ID,
			Name:                   def.Name,
			Category:               def.Category,
			Requires:               def.Requires,
			TimeoutMS:              def.Timeout.Milliseconds(),
			MaxRetries:             def.MaxRetries,
			RetryBackoffMS:         def.RetryBackoff.Milliseconds(),
			ExponentialBackoff:     def.ExponentialBackoff,
			RunOnDependencyFailure: def.RunOnDependencyFailure,
		}
	}

	s.writeJSON(w, http.StatusOK, listProbesResponse{
		Probes: probes,
		Total:  len(probes),
	})
}

// Package service owns run lifecycles: it builds a frozen registry from the
// probe catalog, launches the orchestrator, bridges lifecycle events into
// persistence, logging, and metrics, and tracks active runs for cancellation
// and live event streaming.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/envinfo"
	"github.com/probelab/capscan/internal/events"
	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/probes"
	"github.com/probelab/capscan/internal/registry"
	"github.com/probelab/capscan/internal/scheduler"
	"github.com/probelab/capscan/internal/store"
)

// ErrNotActive is returned when cancelling a run that is not in flight.
var ErrNotActive = errors.New("run is not active")

// Service coordinates scan runs.
type Service struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	manifest config.Manifest
	active   map[string]*activeRun

	cron *cron.Cron
	wg   sync.WaitGroup
}

type activeRun struct {
	cancel context.CancelFunc
	bus    *events.Bus
}

// New creates a service using the given store and manifest.
func New(s store.Store, m config.Manifest, logger *slog.Logger) *Service {
	return &Service{
		store:    s,
		logger:   logger,
		manifest: m,
		active:   make(map[string]*activeRun),
	}
}

// Reload swaps the manifest used by subsequent runs. Runs already in flight
// keep their frozen registry; the cron schedule is fixed at startup.
func (s *Service) Reload(m config.Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest = m
}

// Manifest returns the manifest that the next run will use.
func (s *Service) Manifest() config.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

// Definitions returns the probe definitions the next run would execute.
func (s *Service) Definitions() []registry.Definition {
	return probes.Catalog(s.Manifest())
}

// StartRun builds a frozen registry from the catalog, records a pending run,
// and launches asynchronous execution. The run record is stored before
// returning.
func (s *Service) StartRun(ctx context.Context, trigger string) (*model.Run, error) {
	m := s.Manifest()

	reg := registry.New()
	for _, def := range probes.Catalog(m) {
		if err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("register probe: %w", err)
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, fmt.Errorf("freeze registry: %w", err)
	}

	env := envinfo.Snapshot()
	run := &model.Run{
		ID:        model.NewID(),
		Status:    model.RunPending,
		Trigger:   trigger,
		Hostname:  env.Hostname,
		Total:     reg.Len(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	bus := events.NewBus()
	bus.Subscribe(s.persister(run.ID))
	bus.Subscribe(observeProbeEvents)

	s.mu.Lock()
	s.active[run.ID] = &activeRun{cancel: cancel, bus: bus}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(runCtx, run.ID, reg, env, bus, m)

	return run, nil
}

// Cancel stops admission for an in-flight run. In-flight probes run to their
// own timeout; the run then finishes with status "cancelled".
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	ar, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotActive
	}
	ar.cancel()
	return nil
}

// Events returns a live event stream for an in-flight run. The third return
// value is false when the run is not active (finished or unknown).
func (s *Service) Events(id string) (<-chan model.Event, func(), bool) {
	s.mu.Lock()
	ar, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	ch, unsub := ar.bus.Stream()
	return ch, unsub, true
}

// StartSchedule begins periodic scans if the manifest carries a cron spec.
// It reports whether a schedule was started.
func (s *Service) StartSchedule() (bool, error) {
	spec := s.Manifest().Schedule
	if spec == "" {
		return false, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.StartRun(context.Background(), "schedule"); err != nil {
			s.logger.Error("scheduled run failed to start", "error", err)
		}
	}); err != nil {
		return false, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return true, nil
}

// StopSchedule halts the cron schedule, if one was started.
func (s *Service) StopSchedule() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Wait blocks until all in-flight runs complete.
func (s *Service) Wait() {
	s.wg.Wait()
}

// execute drives one run to completion and finalizes its stored record.
func (s *Service) execute(ctx context.Context, runID string, reg *registry.Registry, env model.Environment, bus *events.Bus, m config.Manifest) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, runID)
		s.mu.Unlock()
		bus.Close()
	}()

	if err := s.store.UpdateRunStatus(context.Background(), runID, model.RunRunning); err != nil {
		s.logger.Error("failed to transition run to running", "run_id", runID, "error", err)
	}

	_, summary, err := scheduler.Run(ctx, reg, env, bus, scheduler.Options{
		Concurrency:   m.Concurrency,
		GlobalTimeout: m.GlobalTimeout(),
	})
	if err != nil {
		// Only an unfrozen registry reaches here, and StartRun froze it.
		s.logger.Error("run failed to execute", "run_id", runID, "error", err)
		return
	}

	status := model.RunCompleted
	if summary.Aborted {
		status = model.RunAborted
		if summary.AbortReason == scheduler.ReasonCancelled {
			status = model.RunCancelled
		}
	}

	score := summary.OverallScore
	duration := summary.DurationMS
	now := time.Now().UTC()
	final := &model.Run{
		ID:           runID,
		Status:       status,
		Total:        summary.Total,
		Supported:    summary.Supported,
		Partial:      summary.Partial,
		Unsupported:  summary.Unsupported,
		Errors:       summary.Errors,
		OverallScore: &score,
		AbortReason:  summary.AbortReason,
		DurationMS:   &duration,
		FinishedAt:   &now,
	}
	if err := s.store.FinishRun(context.Background(), final); err != nil {
		s.logger.Error("failed to finalize run", "run_id", runID, "error", err)
	}

	observeRun(status, score)
	s.logger.Info("run finished",
		"run_id", runID,
		"status", status,
		"overall_score", score,
		"duration_ms", duration,
	)
}

// persister stores each probe's terminal Result as it is emitted.
func (s *Service) persister(runID string) events.Handler {
	return func(e model.Event) {
		switch e.Type {
		case model.EventProbeSuccess, model.EventProbeError, model.EventProbeSkipped:
			if e.Result == nil {
				return
			}
			if err := s.store.InsertResult(context.Background(), runID, *e.Result); err != nil {
				s.logger.Error("failed to persist result",
					"run_id", runID,
					"probe_id", e.Result.ProbeID,
					"error", err,
				)
			}
		}
	}
}

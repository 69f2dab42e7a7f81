// Package scheduler drives a run: it admits ready probes up to a concurrency
// cap, wraps every attempt in timeout and retry logic, converts outcomes into
// canonical results, and emits lifecycle events until every registered probe
// reaches a terminal state.
//
// All run bookkeeping (state transitions, event emission, result storage) is
// owned by the single goroutine executing Run. Worker goroutines only ever
// communicate with it over channels, so no locking is needed around run state.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/probelab/capscan/internal/events"
	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/registry"
	"github.com/probelab/capscan/internal/report"
)

// DefaultConcurrency caps simultaneously outstanding probes when the caller
// does not choose one.
const DefaultConcurrency = 4

// Abort reasons reported in run summaries and forced results.
const (
	ReasonCancelled     = "run cancelled"
	ReasonGlobalTimeout = "run aborted: global timeout exceeded"
)

// Options tunes a single run.
type Options struct {
	// Concurrency is the maximum number of probes outstanding at once.
	Concurrency int

	// GlobalTimeout, when positive, is an overall deadline for the run. On
	// expiry all non-terminal probes are forced to a terminal state and the
	// run resolves immediately.
	GlobalTimeout time.Duration
}

// probeRun tracks one probe's runtime state. Records become inert once the
// state is terminal.
type probeRun struct {
	state      string
	attempts   int
	startedAt  time.Time
	finishedAt time.Time
}

// attemptOutcome is what a worker goroutine reports back for one attempt.
type attemptOutcome struct {
	id       string
	attempt  int
	outcome  model.Outcome
	err      error
	timedOut bool
	started  time.Time
	finished time.Time
}

type orchestrator struct {
	defs     []registry.Definition
	byID     map[string]registry.Definition
	resolver *Resolver
	env      model.Environment
	bus      *events.Bus
	opts     Options

	runs    map[string]*probeRun
	results map[string]model.Result
	running int
	done    int

	attempts chan attemptOutcome
	retries  chan string

	// finished is closed when Run returns so that late workers and pending
	// retry timers never block on a send nobody will receive.
	finished chan struct{}
}

// Run executes every probe in the frozen registry and returns one Result per
// registered probe, in registration order, plus the run summary. Cancelling
// ctx stops admission: in-flight probes run to their own timeout and all
// not-yet-started probes are skipped. Run only fails outright on an unfrozen
// registry; individual probe failures are isolated into error Results.
func Run(ctx context.Context, reg *registry.Registry, env model.Environment, bus *events.Bus, opts Options) ([]model.Result, model.RunSummary, error) {
	if !reg.Frozen() {
		return nil, model.RunSummary{}, registry.ErrNotFrozen
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if bus == nil {
		bus = events.NewBus()
	}

	defs := reg.All()
	o := &orchestrator{
		defs:     defs,
		byID:     make(map[string]registry.Definition, len(defs)),
		resolver: NewResolver(defs),
		env:      env,
		bus:      bus,
		opts:     opts,
		runs:     make(map[string]*probeRun, len(defs)),
		results:  make(map[string]model.Result, len(defs)),
		attempts: make(chan attemptOutcome),
		retries:  make(chan string),
		finished: make(chan struct{}),
	}
	defer close(o.finished)

	for _, def := range defs {
		o.byID[def.ID] = def
		o.runs[def.ID] = &probeRun{state: model.StatePending}
	}

	start := time.Now()

	var globalTimer <-chan time.Time
	if opts.GlobalTimeout > 0 {
		t := time.NewTimer(opts.GlobalTimeout)
		defer t.Stop()
		globalTimer = t.C
	}
	cancelCh := ctx.Done()

	cancelled := false
	aborted := false

	for {
		if !cancelled && !aborted {
			o.propagateSkips()
			o.admitReady()
		}
		if o.done == len(o.defs) {
			break
		}

		select {
		case out := <-o.attempts:
			o.handleAttempt(out)
		case id := <-o.retries:
			o.restart(id)
		case <-globalTimer:
			globalTimer = nil
			aborted = true
			o.forceTerminal()
		case <-cancelCh:
			cancelCh = nil
			cancelled = true
			o.skipWaiting(ReasonCancelled)
		}
	}

	results := make([]model.Result, 0, len(o.defs))
	for _, def := range o.defs {
		results = append(results, o.results[def.ID])
	}

	summary := report.Summarize(results)
	summary.DurationMS = time.Since(start).Milliseconds()
	switch {
	case aborted:
		summary.Aborted = true
		summary.AbortReason = ReasonGlobalTimeout
	case cancelled:
		summary.Aborted = true
		summary.AbortReason = ReasonCancelled
	}

	o.bus.Publish(model.Event{
		Type:      model.EventRunComplete,
		Completed: o.done,
		Total:     len(o.defs),
		Summary:   &summary,
	})

	return results, summary, nil
}

// stateView builds the resolver's view of current probe states.
func (o *orchestrator) stateView() map[string]string {
	states := make(map[string]string, len(o.runs))
	for id, r := range o.runs {
		states[id] = r.state
	}
	return states
}

// propagateSkips repeatedly applies the dependency-failure policy until no
// further probe becomes skippable; skipping one probe can cascade to its
// dependents.
func (o *orchestrator) propagateSkips() {
	for {
		blocked := o.resolver.Skippable(o.stateView())
		if len(blocked) == 0 {
			return
		}
		for _, b := range blocked {
			o.skip(b.ID, fmt.Sprintf("skipped: dependency %q ended %s", b.Dependency, b.DependencyState))
		}
	}
}

// admitReady moves ready probes to running, in registration order, while
// slots are free. Ready probes beyond the cap wait in the ready state.
func (o *orchestrator) admitReady() {
	for _, id := range o.resolver.Ready(o.stateView()) {
		if o.running >= o.opts.Concurrency {
			o.runs[id].state = model.StateReady
			continue
		}
		o.admit(id)
	}
}

func (o *orchestrator) admit(id string) {
	r := o.runs[id]
	r.state = model.StateRunning
	r.startedAt = time.Now()
	r.attempts = 1
	o.running++
	o.bus.Publish(model.Event{Type: model.EventProbeStart, ProbeID: id, Attempt: 1})
	go o.attempt(o.byID[id], 1)
}

// attempt executes a single bounded attempt on a worker goroutine. The
// executor runs on a further inner goroutine so an uninterruptible probe can
// be abandoned at the deadline; its eventual late result is discarded.
func (o *orchestrator) attempt(def registry.Definition, attempt int) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), def.Timeout)
	defer cancel()

	type execResult struct {
		outcome model.Outcome
		err     error
	}
	ch := make(chan execResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- execResult{err: fmt.Errorf("probe panicked: %v", p)}
			}
		}()
		outcome, err := def.Exec.Check(ctx, o.env)
		ch <- execResult{outcome: outcome, err: err}
	}()

	out := attemptOutcome{id: def.ID, attempt: attempt, started: started}
	select {
	case res := <-ch:
		out.outcome, out.err = res.outcome, res.err
		if res.err != nil && ctx.Err() == context.DeadlineExceeded {
			out.timedOut = true
		}
	case <-ctx.Done():
		out.timedOut = true
	}
	out.finished = time.Now()

	select {
	case o.attempts <- out:
	case <-o.finished:
	}
}

// handleAttempt applies one attempt outcome: a deliberate outcome is terminal
// immediately; an unexpected failure or timeout either schedules a retry or
// exhausts the probe into an error Result.
func (o *orchestrator) handleAttempt(out attemptOutcome) {
	r, ok := o.runs[out.id]
	if !ok || model.TerminalState(r.state) {
		return // late result from an abandoned or force-terminated probe
	}
	def := o.byID[out.id]

	if !out.timedOut && out.err == nil {
		res, wellFormed := report.Normalize(def, out.outcome, r.startedAt, out.finished, out.attempt)
		r.finishedAt = out.finished
		if wellFormed {
			r.state = model.StateSucceeded
			o.running--
			o.finish(out.id, res, model.EventProbeSuccess)
		} else {
			r.state = model.StateFailed
			o.running--
			o.finish(out.id, res, model.EventProbeError)
		}
		return
	}

	if out.timedOut {
		o.bus.Publish(model.Event{Type: model.EventProbeTimeout, ProbeID: out.id, Attempt: out.attempt})
	}

	if out.attempt <= def.MaxRetries {
		r.state = model.StateRetrying
		o.bus.Publish(model.Event{Type: model.EventProbeRetry, ProbeID: out.id, Attempt: out.attempt + 1})
		o.scheduleRetry(def, out.attempt)
		return
	}

	r.finishedAt = out.finished
	o.running--
	if out.timedOut {
		r.state = model.StateTimedOut
		o.finish(out.id, report.Timeout(def, r.startedAt, out.finished, out.attempt), model.EventProbeError)
	} else {
		r.state = model.StateFailed
		o.finish(out.id, report.Failure(def, out.err, r.startedAt, out.finished, out.attempt), model.EventProbeError)
	}
}

// scheduleRetry waits out the backoff off the orchestrator goroutine, then
// hands the probe back for re-admission. The probe keeps its concurrency slot
// during the backoff so the cap bounds outstanding work.
func (o *orchestrator) scheduleRetry(def registry.Definition, failedAttempt int) {
	backoff := def.RetryBackoff
	if def.ExponentialBackoff && backoff > 0 {
		backoff <<= failedAttempt - 1
	}
	id := def.ID
	time.AfterFunc(backoff, func() {
		select {
		case o.retries <- id:
		case <-o.finished:
		}
	})
}

// restart begins the next attempt of a retrying probe.
func (o *orchestrator) restart(id string) {
	r, ok := o.runs[id]
	if !ok || r.state != model.StateRetrying {
		return // force-terminated while waiting out the backoff
	}
	r.state = model.StateRunning
	r.attempts++
	go o.attempt(o.byID[id], r.attempts)
}

// skip marks a never-admitted probe terminal without invoking its executor.
func (o *orchestrator) skip(id, reason string) {
	r := o.runs[id]
	now := time.Now()
	r.state = model.StateSkipped
	r.startedAt = now
	r.finishedAt = now
	o.finish(id, report.Skipped(o.byID[id], reason, now), model.EventProbeSkipped)
}

// skipWaiting skips every probe that has not been admitted. In-flight and
// retrying probes are left to run to their own timeout.
func (o *orchestrator) skipWaiting(reason string) {
	for _, def := range o.defs {
		if waiting(o.runs[def.ID].state) {
			o.skip(def.ID, reason)
		}
	}
}

// forceTerminal resolves the run immediately on global timeout: in-flight
// probes become timedout with a run-aborted indication, waiting probes are
// skipped. Late worker results are discarded by handleAttempt.
func (o *orchestrator) forceTerminal() {
	now := time.Now()
	for _, def := range o.defs {
		r := o.runs[def.ID]
		switch {
		case model.TerminalState(r.state):
		case r.state == model.StateRunning || r.state == model.StateRetrying:
			r.state = model.StateTimedOut
			r.finishedAt = now
			o.running--
			o.bus.Publish(model.Event{Type: model.EventProbeTimeout, ProbeID: def.ID, Attempt: r.attempts})
			o.finish(def.ID, report.Aborted(def, ReasonGlobalTimeout, r.startedAt, now, r.attempts), model.EventProbeError)
		default:
			o.skip(def.ID, ReasonGlobalTimeout)
		}
	}
}

// finish records a terminal Result and emits the probe's terminal event plus
// a run-progress event.
func (o *orchestrator) finish(id string, res model.Result, eventType string) {
	o.results[id] = res
	o.done++
	o.bus.Publish(model.Event{Type: eventType, ProbeID: id, Attempt: res.Attempts, Result: &res})
	o.bus.Publish(model.Event{Type: model.EventRunProgress, Completed: o.done, Total: len(o.defs)})
}

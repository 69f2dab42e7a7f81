package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/probelab/capscan/internal/config"
	"github.com/probelab/capscan/internal/model"
	"github.com/probelab/capscan/internal/probes"
	"github.com/probelab/capscan/internal/store"
)

// quickManifest enables only the in-process system probe.
func quickManifest() config.Manifest {
	m := config.DefaultManifest()
	off := false
	m.Probes = map[string]config.ProbeSettings{
		probes.IDDiskSpace:    {Enabled: &off},
		probes.IDScratchWrite: {Enabled: &off},
		probes.IDDNS:          {Enabled: &off},
		probes.IDTCP:          {Enabled: &off},
		probes.IDTLS:          {Enabled: &off},
	}
	return m
}

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(db, quickManifest(), logger)
	t.Cleanup(svc.Wait)
	return svc, db
}

func TestStartRunPersistsEverything(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	run, err := svc.StartRun(ctx, "manual")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.Status != model.RunPending {
		t.Errorf("Status = %q, want %q", run.Status, model.RunPending)
	}
	if run.Total != 1 {
		t.Errorf("Total = %d, want 1", run.Total)
	}

	svc.Wait()

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.RunCompleted {
		t.Errorf("final Status = %q, want %q", got.Status, model.RunCompleted)
	}
	if got.Supported != 1 {
		t.Errorf("Supported = %d, want 1", got.Supported)
	}
	if got.OverallScore == nil || *got.OverallScore != 100 {
		t.Errorf("OverallScore = %v, want 100", got.OverallScore)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil")
	}

	results, err := db.GetResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 1 || results[0].ProbeID != probes.IDSysInfo {
		t.Errorf("results = %v, want one sys.info result", results)
	}
}

func TestEventsStreamDeliversLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	run, err := svc.StartRun(context.Background(), "manual")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	ch, unsub, active := svc.Events(run.ID)
	if !active {
		// The run may already have finished; that is a pass for streaming
		// semantics but gives us nothing to assert on.
		t.Skip("run finished before the stream attached")
	}
	defer unsub()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return // bus closed after run-complete
			}
			if e.Type == model.EventRunComplete {
				if e.Summary == nil || e.Summary.Total != 1 {
					t.Errorf("run-complete summary = %+v, want total 1", e.Summary)
				}
				return
			}
		case <-deadline:
			t.Fatal("no run-complete event within deadline")
		}
	}
}

func TestCancelUnknownRun(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Cancel("nonexistent"); !errors.Is(err, ErrNotActive) {
		t.Errorf("Cancel = %v, want ErrNotActive", err)
	}
}

func TestCancelFinishedRun(t *testing.T) {
	svc, _ := newTestService(t)

	run, err := svc.StartRun(context.Background(), "manual")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	svc.Wait()

	if err := svc.Cancel(run.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("Cancel finished run = %v, want ErrNotActive", err)
	}
}

func TestReloadChangesNextRun(t *testing.T) {
	svc, _ := newTestService(t)

	if got := len(svc.Definitions()); got != 1 {
		t.Fatalf("Definitions = %d, want 1 with the quick manifest", got)
	}

	svc.Reload(config.DefaultManifest())

	defs := svc.Definitions()
	if len(defs) <= 1 {
		t.Errorf("Definitions after Reload = %d, want the full default catalog", len(defs))
	}
}

func TestStartScheduleWithoutSpec(t *testing.T) {
	svc, _ := newTestService(t)

	started, err := svc.StartSchedule()
	if err != nil {
		t.Fatalf("StartSchedule: %v", err)
	}
	if started {
		t.Error("StartSchedule started without a cron spec")
	}
}

func TestStartScheduleInvalidSpec(t *testing.T) {
	svc, _ := newTestService(t)

	m := quickManifest()
	m.Schedule = "not a cron spec"
	svc.Reload(m)

	if _, err := svc.StartSchedule(); err == nil {
		t.Error("StartSchedule accepted an invalid cron spec")
	}
}

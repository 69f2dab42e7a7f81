package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/probelab/capscan/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRun() *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		Status:    model.RunPending,
		Trigger:   "manual",
		Hostname:  "test-host",
		Total:     7,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func makeTestResult(probeID string) model.Result {
	score := 80
	now := time.Now().UTC().Truncate(time.Second)
	return model.Result{
		ProbeID:    probeID,
		Name:       "Test probe",
		Category:   "test",
		Status:     model.StatusSupported,
		Details:    "all good",
		Score:      &score,
		DurationMS: 42,
		Attempts:   1,
		Payload:    map[string]any{"key": "value"},
		StartedAt:  now,
		FinishedAt: now,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.ID != r.ID {
		t.Errorf("ID = %q, want %q", got.ID, r.ID)
	}
	if got.Status != r.Status {
		t.Errorf("Status = %q, want %q", got.Status, r.Status)
	}
	if got.Trigger != r.Trigger {
		t.Errorf("Trigger = %q, want %q", got.Trigger, r.Trigger)
	}
	if got.Hostname != r.Hostname {
		t.Errorf("Hostname = %q, want %q", got.Hostname, r.Hostname)
	}
	if got.Total != r.Total {
		t.Errorf("Total = %d, want %d", got.Total, r.Total)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
}

func TestListRunsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r := makeTestRun()
		r.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Second)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
	}

	runs, total, err := s.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(runs))
	}

	runs2, total2, err := s.ListRuns(ctx, 2, 4)
	if err != nil {
		t.Fatalf("ListRuns page 3: %v", err)
	}
	if total2 != 5 {
		t.Errorf("total page 3 = %d, want 5", total2)
	}
	if len(runs2) != 1 {
		t.Errorf("len(runs) page 3 = %d, want 1", len(runs2))
	}
}

func TestListRunsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := makeTestRun()
		r.CreatedAt = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun[%d]: %v", i, err)
		}
	}

	runs, _, err := s.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}

	// Should be ordered DESC, newest first.
	for i := 1; i < len(runs); i++ {
		if runs[i].CreatedAt.After(runs[i-1].CreatedAt) {
			t.Errorf("runs not in DESC order: [%d].CreatedAt=%v > [%d].CreatedAt=%v",
				i, runs[i].CreatedAt, i-1, runs[i-1].CreatedAt)
		}
	}
}

func TestUpdateRunStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.UpdateRunStatus(ctx, r.ID, model.RunRunning); err != nil {
		t.Fatalf("pending→running: %v", err)
	}
	got, _ := s.GetRun(ctx, r.ID)
	if got.Status != model.RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, model.RunRunning)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt is nil, expected it to be set for running status")
	}

	if err := s.UpdateRunStatus(ctx, r.ID, model.RunCompleted); err != nil {
		t.Fatalf("running→completed: %v", err)
	}
	got, _ = s.GetRun(ctx, r.ID)
	if got.Status != model.RunCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.RunCompleted)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil, expected it to be set for completed status")
	}
}

func TestUpdateRunStatusInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// pending → completed is invalid.
	err := s.UpdateRunStatus(ctx, r.ID, model.RunCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got error %v, want ErrInvalidTransition", err)
	}

	// Terminal states accept no further transitions.
	if err := s.UpdateRunStatus(ctx, r.ID, model.RunCancelled); err != nil {
		t.Fatalf("pending→cancelled: %v", err)
	}
	err = s.UpdateRunStatus(ctx, r.ID, model.RunRunning)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancelled→running: got error %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateRunStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateRunStatus(context.Background(), "nonexistent", model.RunRunning)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRunStatus error = %v, want ErrNotFound", err)
	}
}

func TestFinishRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()

	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, r.ID, model.RunRunning); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	score := 71
	duration := int64(230)
	finished := time.Now().UTC().Truncate(time.Second)
	final := &model.Run{
		ID:           r.ID,
		Status:       model.RunCompleted,
		Total:        7,
		Supported:    4,
		Partial:      2,
		Unsupported:  1,
		Errors:       0,
		OverallScore: &score,
		DurationMS:   &duration,
		FinishedAt:   &finished,
	}
	if err := s.FinishRun(ctx, final); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.RunCompleted {
		t.Errorf("Status = %q, want %q", got.Status, model.RunCompleted)
	}
	if got.Supported != 4 || got.Partial != 2 || got.Unsupported != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/2/1", got.Supported, got.Partial, got.Unsupported)
	}
	if got.OverallScore == nil || *got.OverallScore != 71 {
		t.Errorf("OverallScore = %v, want 71", got.OverallScore)
	}
	if got.DurationMS == nil || *got.DurationMS != 230 {
		t.Errorf("DurationMS = %v, want 230", got.DurationMS)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt is nil")
	}
}

func TestFinishRunNotFound(t *testing.T) {
	s := newTestStore(t)

	r := makeTestRun()
	r.ID = "nonexistent"
	err := s.FinishRun(context.Background(), r)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestInsertAndGetResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	for _, id := range []string{"sys.info", "storage.disk-space", "net.dns"} {
		if err := s.InsertResult(ctx, r.ID, makeTestResult(id)); err != nil {
			t.Fatalf("InsertResult(%s): %v", id, err)
		}
	}

	results, err := s.GetResults(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	// Insertion order is preserved.
	want := []string{"sys.info", "storage.disk-space", "net.dns"}
	for i, res := range results {
		if res.ProbeID != want[i] {
			t.Errorf("results[%d].ProbeID = %q, want %q", i, res.ProbeID, want[i])
		}
	}

	got := results[0]
	if got.Status != model.StatusSupported {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusSupported)
	}
	if got.Score == nil || *got.Score != 80 {
		t.Errorf("Score = %v, want 80", got.Score)
	}
	if got.DurationMS != 42 {
		t.Errorf("DurationMS = %d, want 42", got.DurationMS)
	}
	if got.Payload["key"] != "value" {
		t.Errorf("Payload = %v, want the round-tripped map", got.Payload)
	}
}

func TestGetResultsIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := makeTestRun()
	r2 := makeTestRun()
	if err := s.CreateRun(ctx, r1); err != nil {
		t.Fatalf("CreateRun r1: %v", err)
	}
	if err := s.CreateRun(ctx, r2); err != nil {
		t.Fatalf("CreateRun r2: %v", err)
	}

	if err := s.InsertResult(ctx, r1.ID, makeTestResult("sys.info")); err != nil {
		t.Fatalf("InsertResult r1: %v", err)
	}
	if err := s.InsertResult(ctx, r2.ID, makeTestResult("net.dns")); err != nil {
		t.Fatalf("InsertResult r2: %v", err)
	}

	results1, err := s.GetResults(ctx, r1.ID)
	if err != nil {
		t.Fatalf("GetResults r1: %v", err)
	}
	if len(results1) != 1 || results1[0].ProbeID != "sys.info" {
		t.Errorf("r1 results = %v, want only sys.info", results1)
	}

	results2, err := s.GetResults(ctx, r2.ID)
	if err != nil {
		t.Fatalf("GetResults r2: %v", err)
	}
	if len(results2) != 1 || results2[0].ProbeID != "net.dns" {
		t.Errorf("r2 results = %v, want only net.dns", results2)
	}
}

func TestInsertResultNilPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := makeTestRun()
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	res := makeTestResult("sys.info")
	res.Payload = nil
	if err := s.InsertResult(ctx, r.ID, res); err != nil {
		t.Fatalf("InsertResult: %v", err)
	}

	results, err := s.GetResults(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if results[0].Payload != nil {
		t.Errorf("Payload = %v, want nil", results[0].Payload)
	}
}

func TestGetRunStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two completed runs with scores, one still pending.
	for i := 0; i < 2; i++ {
		r := makeTestRun()
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if err := s.UpdateRunStatus(ctx, r.ID, model.RunRunning); err != nil {
			t.Fatalf("UpdateRunStatus: %v", err)
		}
		score := 60 + i*20 // 60, 80
		duration := int64(100 + i*100)
		finished := time.Now().UTC()
		if err := s.FinishRun(ctx, &model.Run{
			ID: r.ID, Status: model.RunCompleted, Total: 7,
			OverallScore: &score, DurationMS: &duration, FinishedAt: &finished,
		}); err != nil {
			t.Fatalf("FinishRun: %v", err)
		}
	}
	if err := s.CreateRun(ctx, makeTestRun()); err != nil {
		t.Fatalf("CreateRun pending: %v", err)
	}

	stats, err := s.GetRunStats(ctx)
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.CountByStatus[model.RunCompleted] != 2 {
		t.Errorf("completed count = %d, want 2", stats.CountByStatus[model.RunCompleted])
	}
	if stats.CountByStatus[model.RunPending] != 1 {
		t.Errorf("pending count = %d, want 1", stats.CountByStatus[model.RunPending])
	}
	if stats.AvgScore != 70 {
		t.Errorf("AvgScore = %f, want 70", stats.AvgScore)
	}
	if stats.AvgDurationMS != 150 {
		t.Errorf("AvgDurationMS = %f, want 150", stats.AvgDurationMS)
	}
}

func TestGetRunStatsEmpty(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetRunStats(context.Background())
	if err != nil {
		t.Fatalf("GetRunStats: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
	if stats.AvgScore != 0 {
		t.Errorf("AvgScore = %f, want 0", stats.AvgScore)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	s := newTestStore(t)

	// CREATE TABLE IF NOT EXISTS must tolerate re-running on the same DB.
	for _, stmt := range []string{createRunsTable, createResultsTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("second migration: %v", err)
		}
	}
}

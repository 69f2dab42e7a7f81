package store

import (
	"context"
	"errors"

	"github.com/probelab/capscan/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate statistics over all recorded runs.
type RunStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgScore      float64        `json:"avg_score"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs and their results.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	FinishRun(ctx context.Context, r *model.Run) error
	InsertResult(ctx context.Context, runID string, res model.Result) error
	GetResults(ctx context.Context, runID string) ([]model.Result, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}

package store

import (
	"context"
	"time"

	"github.com/martinscooper/lighteval/internal/aggregate"
)

// Run is one persisted evaluation run.
type Run struct {
	ID        string
	Model     string
	Provider  string
	CreatedAt time.Time
	Partial   bool

	DataParallel     int
	TensorParallel   int
	PipelineParallel int
	WorldSize        int

	Tasks  []string
	Report *aggregate.Report
}

// Entry is one leaderboard row: the best recorded value of a metric for a
// (model, task) pair.
type Entry struct {
	Model    string  `json:"model"`
	TaskID   string  `json:"task_id"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	RunID    string  `json:"run_id"`
	Examples int     `json:"examples"`
}

// Store persists aggregated reports and serves run history.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	Leaderboard(ctx context.Context, metric string, limit int) ([]Entry, error)
	Close() error
}

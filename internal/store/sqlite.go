package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt    *sql.Stmt
	insertMetricStmt *sql.Stmt
	getRunStmt       *sql.Stmt
	listRunsStmt     *sql.Stmt
	leaderboardStmt  *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			partial INTEGER NOT NULL,
			data_parallel INTEGER NOT NULL,
			tensor_parallel INTEGER NOT NULL,
			pipeline_parallel INTEGER NOT NULL,
			world_size INTEGER NOT NULL,
			tasks TEXT NOT NULL,
			report_json BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_metrics (
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			examples INTEGER NOT NULL,
			model TEXT NOT NULL,
			PRIMARY KEY (run_id, task_id, metric),
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_task_metrics_metric ON task_metrics(metric, task_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst   **sql.Stmt
		query string
		name  string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, model, provider, created_at, partial,
					data_parallel, tensor_parallel, pipeline_parallel, world_size,
					tasks, report_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			name: "insert run",
		},
		{
			dst: &s.insertMetricStmt,
			query: `
				INSERT INTO task_metrics (run_id, task_id, metric, value, examples, model)
				VALUES (?, ?, ?, ?, ?, ?)
			`,
			name: "insert metric",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, model, provider, created_at, partial,
					data_parallel, tensor_parallel, pipeline_parallel, world_size,
					tasks, report_json
				FROM runs WHERE id = ?
			`,
			name: "get run",
		},
		{
			dst: &s.listRunsStmt,
			query: `
				SELECT id, model, provider, created_at, partial,
					data_parallel, tensor_parallel, pipeline_parallel, world_size,
					tasks, report_json
				FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
			`,
			name: "list runs",
		},
		{
			dst: &s.leaderboardStmt,
			query: `
				SELECT m.model, m.task_id, m.metric, MAX(m.value), m.run_id, m.examples
				FROM task_metrics m
				WHERE m.metric = ?
				GROUP BY m.model, m.task_id
				ORDER BY MAX(m.value) DESC, m.model ASC
				LIMIT ?
			`,
			name: "leaderboard",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf("store: prepare %s: %w", spec.name, err)
		}
		*spec.dst = stmt
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	for _, stmt := range []*sql.Stmt{
		s.insertRunStmt, s.insertMetricStmt, s.getRunStmt, s.listRunsStmt, s.leaderboardStmt,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

// SaveRun stores the run header, its report blob, and one metric row per
// (task, metric) so the leaderboard can query without unpacking JSON.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("store: empty run id")
	}
	if run.Report == nil {
		return errors.New("store: run has no report")
	}

	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("store: marshal report: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	partial := 0
	if run.Report.Partial {
		partial = 1
	}

	if _, err := tx.StmtContext(ctx, s.insertRunStmt).ExecContext(ctx,
		run.ID, run.Model, run.Provider, createdAt.Unix(), partial,
		run.DataParallel, run.TensorParallel, run.PipelineParallel, run.WorldSize,
		strings.Join(run.Tasks, ","), reportJSON,
	); err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	taskIDs := make([]string, 0, len(run.Report.Results))
	for id := range run.Report.Results {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)

	insertMetric := tx.StmtContext(ctx, s.insertMetricStmt)
	for _, taskID := range taskIDs {
		tr := run.Report.Results[taskID]
		metrics := make([]string, 0, len(tr.Metrics))
		for name := range tr.Metrics {
			metrics = append(metrics, name)
		}
		sort.Strings(metrics)
		for _, name := range metrics {
			if _, err := insertMetric.ExecContext(ctx,
				run.ID, taskID, name, tr.Metrics[name], tr.Examples, run.Model,
			); err != nil {
				return fmt.Errorf("store: insert metric %s/%s: %w", taskID, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	row := s.getRunStmt.QueryRowContext(ctx, strings.TrimSpace(id))
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %q not found", id)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.listRunsStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, metric string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	metric = strings.TrimSpace(metric)
	if metric == "" {
		metric = "acc"
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.leaderboardStmt.QueryContext(ctx, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Model, &e.TaskID, &e.Metric, &e.Value, &e.RunID, &e.Examples); err != nil {
			return nil, fmt.Errorf("store: scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	return out, nil
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var (
		run       Run
		createdAt int64
		partial   int
		tasks     string
		report    []byte
	)
	if err := scan(
		&run.ID, &run.Model, &run.Provider, &createdAt, &partial,
		&run.DataParallel, &run.TensorParallel, &run.PipelineParallel, &run.WorldSize,
		&tasks, &report,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan run: %w", err)
	}

	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.Partial = partial != 0
	if tasks != "" {
		run.Tasks = strings.Split(tasks, ",")
	}
	if err := json.Unmarshal(report, &run.Report); err != nil {
		return nil, fmt.Errorf("store: unmarshal report: %w", err)
	}
	return &run, nil
}

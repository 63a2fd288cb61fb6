package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/legendsaurav/scramer/server/core/ccc/db"
	"github.com/legendsaurav/scramer/server/core/segments"
)

// RunStatus summarizes how a merge ended
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// MergeRun is one recorded invocation of Merge
type MergeRun struct {
	ID         string            `json:"id"`
	Bucket     segments.Bucket   `json:"bucket"`
	Strategy   Strategy          `json:"strategy,omitempty"`
	Status     RunStatus         `json:"status"`
	Outputs    map[string]string `json:"outputs"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// HistoryRepository stores merge runs
type HistoryRepository interface {
	// Add records a finished merge run
	Add(ctx context.Context, run *MergeRun) error

	// ListByProject returns the most recent runs of project, newest first.
	// A limit <= 0 returns every run.
	ListByProject(ctx context.Context, project string, limit int) ([]*MergeRun, error)
}

// SQLiteHistoryRepository implements HistoryRepository using SQLite
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository creates a new SQLite-based HistoryRepository
func NewSQLiteHistoryRepository(db *sql.DB) (*SQLiteHistoryRepository, error) {
	repo := &SQLiteHistoryRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

// createTables ensures that the required tables exist
func (r *SQLiteHistoryRepository) createTables() error {
	createRunsTable := `
	CREATE TABLE IF NOT EXISTS merge_runs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		date TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		outputs TEXT NOT NULL,
		error TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_merge_runs_project ON merge_runs (project_id, started_at);`

	_, err := r.db.Exec(createRunsTable)
	return err
}

// Add records a finished merge run
func (r *SQLiteHistoryRepository) Add(ctx context.Context, run *MergeRun) error {
	query := `
	INSERT INTO merge_runs (id, project_id, tool, date, strategy, status, outputs, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	outputs := run.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("failed to encode outputs: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.Bucket.Project, run.Bucket.Tool, run.Bucket.Date, string(run.Strategy), string(run.Status),
		string(outputsJSON), run.Error, db.TimeToString(run.StartedAt), db.TimeToString(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add merge run: %w", err)
	}

	return nil
}

// ListByProject returns the most recent runs of project, newest first
func (r *SQLiteHistoryRepository) ListByProject(ctx context.Context, project string, limit int) ([]*MergeRun, error) {
	query := `
	SELECT id, project_id, tool, date, strategy, status, outputs, error, started_at, finished_at
	FROM merge_runs WHERE project_id = ?
	ORDER BY started_at DESC, id`
	args := []interface{}{project}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge runs: %w", err)
	}
	defer rows.Close()

	runs := []*MergeRun{}
	for rows.Next() {
		run := &MergeRun{}
		var strategy, status, outputsJSON, startedStr, finishedStr string
		err := rows.Scan(
			&run.ID, &run.Bucket.Project, &run.Bucket.Tool, &run.Bucket.Date, &strategy, &status,
			&outputsJSON, &run.Error, &startedStr, &finishedStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge run: %w", err)
		}

		run.Strategy = Strategy(strategy)
		run.Status = RunStatus(status)

		if err := json.Unmarshal([]byte(outputsJSON), &run.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode outputs: %w", err)
		}

		run.StartedAt, err = db.StringToTime(startedStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start time: %w", err)
		}
		run.FinishedAt, err = db.StringToTime(finishedStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finish time: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

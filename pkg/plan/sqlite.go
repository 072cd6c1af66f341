package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/telos-ai/telos/pkg/core"
	telerr "github.com/telos-ai/telos/pkg/errors"
)

// SQLiteStore persists plans and tasks in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed plan store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			mission_id TEXT PRIMARY KEY,
			id TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL,
			description TEXT NOT NULL,
			depends_on TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			escalation_tier INTEGER NOT NULL DEFAULT 0,
			tags TEXT NOT NULL,
			result TEXT,
			error TEXT,
			created_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			metadata TEXT NOT NULL,
			seq INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_mission ON tasks(mission_id);
	`)
	if err != nil {
		return nil, fmt.Errorf("plan schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SavePlan implements Store.
func (s *SQLiteStore) SavePlan(ctx context.Context, plan *Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (mission_id, id) VALUES (?, ?)
		ON CONFLICT(mission_id) DO UPDATE SET id = excluded.id
	`, plan.MissionID, plan.ID)
	if err != nil {
		return err
	}
	for _, task := range plan.Tasks {
		if err := s.SaveTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Plan implements Store.
func (s *SQLiteStore) Plan(ctx context.Context, missionID string) (*Plan, error) {
	var plan Plan
	err := s.db.QueryRowContext(ctx, `
		SELECT mission_id, id FROM plans WHERE mission_id = ?
	`, missionID).Scan(&plan.MissionID, &plan.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telerr.New(telerr.CodeNotFound, "plan not found", nil).
			WithAttribute("mission_id", missionID)
	}
	if err != nil {
		return nil, err
	}
	tasks, err := s.Tasks(ctx, missionID)
	if err != nil {
		return nil, err
	}
	plan.Tasks = tasks
	return &plan, nil
}

// SaveTask implements Store.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *core.Task) error {
	dependsOn, err := json.Marshal(task.DependsOn)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(task.Tags)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, mission_id, description, depends_on, status, retry_count,
			escalation_tier, tags, result, error, created_at, started_at,
			finished_at, metadata, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks))
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			depends_on = excluded.depends_on,
			status = excluded.status,
			retry_count = excluded.retry_count,
			escalation_tier = excluded.escalation_tier,
			tags = excluded.tags,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			metadata = excluded.metadata
	`,
		task.ID, task.MissionID, task.Description, string(dependsOn),
		string(task.Status), task.RetryCount, task.EscalationTier,
		string(tags), task.Result, task.Error, task.CreatedAt.UTC(),
		nullableTime(task.StartedAt), nullableTime(task.FinishedAt),
		string(metadata),
	)
	return err
}

// Task implements Store.
func (s *SQLiteStore) Task(ctx context.Context, taskID string) (*core.Task, error) {
	tasks, err := s.queryTasks(ctx, `WHERE id = ?`, taskID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, telerr.New(telerr.CodeNotFound, "task not found", nil).
			WithAttribute("task_id", taskID)
	}
	return tasks[0], nil
}

// Tasks implements Store.
func (s *SQLiteStore) Tasks(ctx context.Context, missionID string) ([]*core.Task, error) {
	return s.queryTasks(ctx, `WHERE mission_id = ?`, missionID)
}

func (s *SQLiteStore) queryTasks(ctx context.Context, where string, args ...any) ([]*core.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mission_id, description, depends_on, status, retry_count,
			escalation_tier, tags, result, error, created_at, started_at,
			finished_at, metadata
		FROM tasks `+where+` ORDER BY seq ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		var (
			task                     core.Task
			dependsOn, tags, meta    string
			status                   string
			result, errMsg           sql.NullString
			startedAt, finishedAt    sql.NullTime
		)
		if err := rows.Scan(
			&task.ID, &task.MissionID, &task.Description, &dependsOn,
			&status, &task.RetryCount, &task.EscalationTier, &tags,
			&result, &errMsg, &task.CreatedAt, &startedAt, &finishedAt, &meta,
		); err != nil {
			return nil, err
		}
		task.Status = core.TaskStatus(status)
		task.Result = result.String
		task.Error = errMsg.String
		if startedAt.Valid {
			task.StartedAt = startedAt.Time
		}
		if finishedAt.Valid {
			task.FinishedAt = finishedAt.Time
		}
		if err := json.Unmarshal([]byte(dependsOn), &task.DependsOn); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &task.Tags); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &task.Metadata); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

var _ Store = (*SQLiteStore)(nil)

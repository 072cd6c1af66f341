package memory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/telos-ai/telos/pkg/core"
)

// SQLiteStore persists reflexion records in SQLite. The table is insert-only;
// there is no UPDATE or DELETE path anywhere in this package.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed episodic store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureEpisodicSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, record core.ReflexionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reflexion_records (
			id, mission_id, task_id, tool, action, observation, score, category, reflection, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.MissionID,
		record.TaskID,
		record.Tool,
		record.Action,
		record.Observation,
		record.Score,
		string(record.Category),
		record.Reflection,
		record.Timestamp.UTC(),
	)
	return err
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, missionID string, limit int) ([]core.ReflexionRecord, error) {
	query := `
		SELECT id, mission_id, task_id, tool, action, observation, score, category, reflection, created_at
		FROM reflexion_records
	`
	var args []any
	if missionID != "" {
		query += " WHERE mission_id = ?"
		args = append(args, missionID)
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryRecords(ctx, query, args...)
}

// ByTask implements Store.
func (s *SQLiteStore) ByTask(ctx context.Context, taskID string) ([]core.ReflexionRecord, error) {
	return s.queryRecords(ctx, `
		SELECT id, mission_id, task_id, tool, action, observation, score, category, reflection, created_at
		FROM reflexion_records
		WHERE task_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, taskID)
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reflexion_records`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]core.ReflexionRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []core.ReflexionRecord
	for rows.Next() {
		var (
			record   core.ReflexionRecord
			category string
			created  time.Time
		)
		if err := rows.Scan(
			&record.ID,
			&record.MissionID,
			&record.TaskID,
			&record.Tool,
			&record.Action,
			&record.Observation,
			&record.Score,
			&category,
			&record.Reflection,
			&created,
		); err != nil {
			return nil, err
		}
		record.Category = core.RecordCategory(category)
		record.Timestamp = created
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func ensureEpisodicSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reflexion_records (
			id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			tool TEXT,
			action TEXT,
			observation TEXT,
			score REAL,
			category TEXT,
			reflection TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reflexion_mission ON reflexion_records(mission_id);
		CREATE INDEX IF NOT EXISTS idx_reflexion_task ON reflexion_records(task_id);
	`)
	return err
}

var _ Store = (*SQLiteStore)(nil)

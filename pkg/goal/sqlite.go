package goal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/telos-ai/telos/pkg/core"
	telerr "github.com/telos-ai/telos/pkg/errors"
)

// SQLiteStore persists goal states in SQLite so a restarted run resumes with
// its checklist intact.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed goal store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS goal_states (
			mission_id TEXT PRIMARY KEY,
			prime_directive TEXT NOT NULL,
			checklist TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("goal schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, state core.GoalState) error {
	checklist, err := json.Marshal(state.Checklist)
	if err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO goal_states (mission_id, prime_directive, checklist)
		VALUES (?, ?, ?)
		ON CONFLICT(mission_id) DO UPDATE SET
			prime_directive = excluded.prime_directive,
			checklist = excluded.checklist
	`, state.MissionID, state.PrimeDirective, string(checklist))
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, missionID string) (core.GoalState, error) {
	var (
		state     core.GoalState
		checklist string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT mission_id, prime_directive, checklist
		FROM goal_states WHERE mission_id = ?
	`, missionID).Scan(&state.MissionID, &state.PrimeDirective, &checklist)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GoalState{}, telerr.New(telerr.CodeNotFound, "goal state not found", nil).
			WithAttribute("mission_id", missionID)
	}
	if err != nil {
		return core.GoalState{}, err
	}
	if err := json.Unmarshal([]byte(checklist), &state.Checklist); err != nil {
		return core.GoalState{}, fmt.Errorf("decode checklist: %w", err)
	}
	return state, nil
}

var _ Store = (*SQLiteStore)(nil)

package core

import (
	"time"

	"github.com/google/uuid"
)

// RecordCategory labels a reflexion record with the outcome class the
// evaluator assigned. Tier-1 classification keys off these.
type RecordCategory string

const (
	CategorySuccess    RecordCategory = "success"
	CategoryTransient  RecordCategory = "transient"
	CategoryCorrective RecordCategory = "corrective"
	CategoryAmbiguous  RecordCategory = "ambiguous"
	CategoryGap        RecordCategory = "capability-gap"
)

// ReflexionRecord is one append-only entry in episodic memory: the verbal
// lesson drawn from a single action and its observation. Records are never
// edited or deleted after creation.
type ReflexionRecord struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	MissionID   string         `json:"mission_id"`
	Tool        string         `json:"tool,omitempty"`
	Action      string         `json:"action"`
	Observation string         `json:"observation"`
	Score       float64        `json:"evaluation_score"`
	Category    RecordCategory `json:"category"`
	Reflection  string         `json:"reflection_text"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewReflexionRecord creates a record stamped with the current UTC time.
func NewReflexionRecord(missionID, taskID string) ReflexionRecord {
	return ReflexionRecord{
		ID:        uuid.NewString(),
		MissionID: missionID,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
	}
}

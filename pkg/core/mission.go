package core

import (
	"time"

	"github.com/google/uuid"
)

// MissionStatus is the terminal status field of a mission. A mission is
// otherwise immutable once created.
type MissionStatus string

const (
	MissionStatusActive    MissionStatus = "active"
	MissionStatusSucceeded MissionStatus = "succeeded"
	MissionStatusFailed    MissionStatus = "failed"
	MissionStatusCancelled MissionStatus = "cancelled"
)

// Mission is a top-level objective. It owns exactly one plan.
type Mission struct {
	ID             string
	PrimeDirective string
	Status         MissionStatus
	CreatedAt      time.Time
}

// NewMission creates an active mission with a generated ID.
func NewMission(primeDirective string) *Mission {
	return &Mission{
		ID:             uuid.NewString(),
		PrimeDirective: primeDirective,
		Status:         MissionStatusActive,
		CreatedAt:      time.Now().UTC(),
	}
}

// ChecklistItem is a single entry in a mission's goal checklist.
type ChecklistItem struct {
	Item string `json:"item" yaml:"item"`
	Done bool   `json:"done" yaml:"done"`
}

// GoalState is the live goal record for an active mission. It is read at the
// start of every cognitive-loop iteration ("recitation") so the prime
// directive is present in every assembled context.
type GoalState struct {
	MissionID      string          `json:"mission_id" yaml:"mission_id"`
	PrimeDirective string          `json:"prime_directive" yaml:"prime_directive"`
	Checklist      []ChecklistItem `json:"checklist" yaml:"checklist"`
}

// Remaining returns the checklist items not yet done.
func (g GoalState) Remaining() []string {
	var items []string
	for _, entry := range g.Checklist {
		if !entry.Done {
			items = append(items, entry.Item)
		}
	}
	return items
}

// Complete reports whether every checklist item is done.
func (g GoalState) Complete() bool {
	for _, entry := range g.Checklist {
		if !entry.Done {
			return false
		}
	}
	return true
}

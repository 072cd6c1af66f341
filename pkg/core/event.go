package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the orchestrator.
type EventType string

const (
	EventMissionStarted   EventType = "mission.started"
	EventMissionCompleted EventType = "mission.completed"
	EventTaskStarted      EventType = "task.started"
	EventTaskSucceeded    EventType = "task.succeeded"
	EventTaskBlocked      EventType = "task.blocked"
	EventTierOneTriggered EventType = "protocol.tier1.triggered"
	EventTierTwoTriggered EventType = "protocol.tier2.triggered"
	EventToTStarted       EventType = "tot.started"
	EventHumanEscalation  EventType = "escalation.human"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	MissionID string
	TaskID    string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, missionID, taskID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		MissionID: missionID,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

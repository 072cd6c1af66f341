// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MissionMetrics tracks the orchestration counters operators watch: task
// outcomes, protocol activity, search volume and knowledge contention.
type MissionMetrics struct {
	taskCounter       metric.Int64Counter
	retryCounter      metric.Int64Counter
	researchCounter   metric.Int64Counter
	escalationCounter metric.Int64Counter
	totNodeCounter    metric.Int64Counter
	kbConflictCounter metric.Int64Counter
}

// NewMissionMetrics creates the mission metrics set on the global meter.
func NewMissionMetrics() (*MissionMetrics, error) {
	meter := otel.Meter("telos/orchestrator")

	taskCounter, err := meter.Int64Counter(
		"telos.tasks.total",
		metric.WithDescription("Task completions by terminal status"),
	)
	if err != nil {
		return nil, err
	}

	retryCounter, err := meter.Int64Counter(
		"telos.protocol.tier1.retries",
		metric.WithDescription("Tier-1 corrective injections"),
	)
	if err != nil {
		return nil, err
	}

	researchCounter, err := meter.Int64Counter(
		"telos.protocol.tier2.research",
		metric.WithDescription("Tier-2 research cycles by outcome"),
	)
	if err != nil {
		return nil, err
	}

	escalationCounter, err := meter.Int64Counter(
		"telos.escalations.total",
		metric.WithDescription("Human-boundary escalations by reason"),
	)
	if err != nil {
		return nil, err
	}

	totNodeCounter, err := meter.Int64Counter(
		"telos.tot.nodes",
		metric.WithDescription("Tree-of-Thoughts nodes explored"),
	)
	if err != nil {
		return nil, err
	}

	kbConflictCounter, err := meter.Int64Counter(
		"telos.knowledge.conflicts",
		metric.WithDescription("Knowledge-base optimistic write conflicts"),
	)
	if err != nil {
		return nil, err
	}

	return &MissionMetrics{
		taskCounter:       taskCounter,
		retryCounter:      retryCounter,
		researchCounter:   researchCounter,
		escalationCounter: escalationCounter,
		totNodeCounter:    totNodeCounter,
		kbConflictCounter: kbConflictCounter,
	}, nil
}

// RecordTask counts one task reaching a terminal status.
func (m *MissionMetrics) RecordTask(ctx context.Context, missionID, status string) {
	if m == nil {
		return
	}
	m.taskCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("task.status", status),
	))
}

// RecordTierOneRetry counts one corrective injection.
func (m *MissionMetrics) RecordTierOneRetry(ctx context.Context, missionID, class string) {
	if m == nil {
		return
	}
	m.retryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("failure.class", class),
	))
}

// RecordResearch counts one Tier-2 cycle.
func (m *MissionMetrics) RecordResearch(ctx context.Context, missionID, outcome string) {
	if m == nil {
		return
	}
	m.researchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("research.outcome", outcome),
	))
}

// RecordEscalation counts one human-boundary crossing.
func (m *MissionMetrics) RecordEscalation(ctx context.Context, missionID, reason string) {
	if m == nil {
		return
	}
	m.escalationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("escalation.reason", reason),
	))
}

// RecordToTNodes counts explored search nodes.
func (m *MissionMetrics) RecordToTNodes(ctx context.Context, missionID string, nodes int) {
	if m == nil || nodes <= 0 {
		return
	}
	m.totNodeCounter.Add(ctx, int64(nodes), metric.WithAttributes(
		attribute.String("mission.id", missionID),
	))
}

// RecordKnowledgeConflict counts one lost optimistic write.
func (m *MissionMetrics) RecordKnowledgeConflict(ctx context.Context, missionID string) {
	if m == nil {
		return
	}
	m.kbConflictCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mission.id", missionID),
	))
}

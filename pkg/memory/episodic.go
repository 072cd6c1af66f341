// Package memory implements episodic memory: the shared append-only log of
// reflexion records. Records are never edited or deleted; within one task
// appends are strictly chronological and visible to later reads once Append
// returns.
package memory

import (
	"context"
	"sync"

	"github.com/telos-ai/telos/pkg/core"
)

// Store is the episodic memory contract.
type Store interface {
	// Append adds one record. The record is immutable afterwards.
	Append(ctx context.Context, record core.ReflexionRecord) error
	// Recent returns the newest records for a mission, newest first.
	Recent(ctx context.Context, missionID string, limit int) ([]core.ReflexionRecord, error)
	// ByTask returns every record for a task in append order.
	ByTask(ctx context.Context, taskID string) ([]core.ReflexionRecord, error)
	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)
}

// Log is the in-memory Store. Appends take the lock; reads return copies so
// callers can never mutate history.
type Log struct {
	mu      sync.RWMutex
	records []core.ReflexionRecord
}

// NewLog creates an empty in-memory episodic log.
func NewLog() *Log {
	return &Log{}
}

// Append implements Store.
func (l *Log) Append(_ context.Context, record core.ReflexionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// Recent implements Store.
func (l *Log) Recent(_ context.Context, missionID string, limit int) ([]core.ReflexionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []core.ReflexionRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		if missionID != "" && l.records[i].MissionID != missionID {
			continue
		}
		out = append(out, l.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ByTask implements Store.
func (l *Log) ByTask(_ context.Context, taskID string) ([]core.ReflexionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []core.ReflexionRecord
	for _, record := range l.records {
		if record.TaskID == taskID {
			out = append(out, record)
		}
	}
	return out, nil
}

// Count implements Store.
func (l *Log) Count(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

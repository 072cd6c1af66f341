// Package knowledge implements the versioned knowledge base: durable
// documents (heuristics, tool notes, research synthesis) read during context
// assembly and written by Tier-2 research. Writes are optimistic: a writer
// states the version it read, and a mismatch is a conflict, never a silent
// overwrite.
package knowledge

import (
	"context"
	"time"

	"github.com/telos-ai/telos/pkg/errors"
)

// Document is one named, versioned knowledge entry. Version starts at 1 on
// first write and increments by exactly one per successful update.
type Document struct {
	Name      string    `json:"name" yaml:"name"`
	Version   int       `json:"version" yaml:"version"`
	Content   string    `json:"content" yaml:"content"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the knowledge base contract.
type Store interface {
	// Read returns the current revision of a named document.
	// A missing name returns CodeNotFound.
	Read(ctx context.Context, name string) (Document, error)
	// Write stores content if the document is still at expectedVersion.
	// For a new document expectedVersion is 0. A stale expectedVersion
	// returns CodeKnowledgeConflict and changes nothing.
	Write(ctx context.Context, name, content string, expectedVersion int) (Document, error)
	// Names lists every document name, sorted.
	Names(ctx context.Context) ([]string, error)
}

// conflict builds the typed error for a lost optimistic write.
func conflict(name string, expected, actual int) error {
	return errors.New(errors.CodeKnowledgeConflict, "knowledge base version conflict", nil).
		WithAttribute("document", name).
		WithContext("expected_version", expected).
		WithContext("actual_version", actual)
}

// notFound builds the typed error for a missing document.
func notFound(name string) error {
	return errors.New(errors.CodeNotFound, "knowledge document not found", nil).
		WithAttribute("document", name)
}

// maxUpdateRetries bounds how often UpdateWithRetry re-reads after a
// conflict before escalating.
const maxUpdateRetries = 3

// UpdateWithRetry performs a read-modify-write with bounded optimistic
// retry. The modify function receives the current content (empty for a new
// document) and returns the replacement. Persistent contention surfaces as
// CodeKnowledgeConflict.
func UpdateWithRetry(ctx context.Context, store Store, name string, modify func(current string) (string, error)) (Document, error) {
	var lastErr error
	for attempt := 0; attempt <= maxUpdateRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Document{}, err
		}

		current, err := store.Read(ctx, name)
		if err != nil && !errors.HasCode(err, errors.CodeNotFound) {
			return Document{}, err
		}

		next, err := modify(current.Content)
		if err != nil {
			return Document{}, err
		}

		doc, err := store.Write(ctx, name, next, current.Version)
		if err == nil {
			return doc, nil
		}
		if !errors.HasCode(err, errors.CodeKnowledgeConflict) {
			return Document{}, err
		}
		lastErr = err
	}
	return Document{}, errors.New(errors.CodeKnowledgeConflict, "knowledge base update exhausted retries", lastErr).
		WithAttribute("document", name).
		WithContext("attempts", maxUpdateRetries+1)
}

package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/telos-ai/telos/pkg/core"
)

// recallWindow bounds how much history a relevance query scans.
const recallWindow = 512

// Recaller ranks reflexion records by relevance to a query. With a vector
// store and embedder attached it does semantic recall; otherwise it falls
// back to keyword overlap over the recent window.
type Recaller struct {
	store      Store
	vectors    VectorStore
	embedder   Embedder
	collection string
}

// RecallerOption configures a Recaller.
type RecallerOption func(*Recaller)

// WithVectors attaches semantic recall.
func WithVectors(vectors VectorStore, embedder Embedder, collection string) RecallerOption {
	return func(r *Recaller) {
		r.vectors = vectors
		r.embedder = embedder
		r.collection = collection
	}
}

// NewRecaller creates a Recaller over an episodic store.
func NewRecaller(store Store, opts ...RecallerOption) *Recaller {
	r := &Recaller{store: store, collection: "reflexions"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index makes a record findable by semantic search. Without a vector store
// this is a no-op; the lexical fallback needs no index.
func (r *Recaller) Index(ctx context.Context, record core.ReflexionRecord) error {
	if r.vectors == nil || r.embedder == nil {
		return nil
	}
	vector, err := r.embedder.Embed(ctx, record.Reflection+"\n"+record.Observation)
	if err != nil {
		return err
	}
	return r.vectors.Upsert(ctx, r.collection, []Point{{
		ID:     record.ID,
		Vector: vector,
		Payload: map[string]interface{}{
			"task_id":    record.TaskID,
			"mission_id": record.MissionID,
			"category":   string(record.Category),
		},
	}})
}

// Relevant returns up to limit records for the mission ranked by relevance
// to the query, most relevant first.
func (r *Recaller) Relevant(ctx context.Context, missionID, query string, limit int) ([]core.ReflexionRecord, error) {
	if limit <= 0 {
		limit = 5
	}

	window, err := r.store.Recent(ctx, missionID, recallWindow)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		return nil, nil
	}

	if r.vectors != nil && r.embedder != nil {
		if hits, err := r.semanticRecall(ctx, window, query, limit); err == nil && len(hits) > 0 {
			return hits, nil
		}
		// semantic path degraded, fall through to lexical
	}

	return lexicalRecall(window, query, limit), nil
}

func (r *Recaller) semanticRecall(ctx context.Context, window []core.ReflexionRecord, query string, limit int) ([]core.ReflexionRecord, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := r.vectors.Search(ctx, r.collection, vector, limit, 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]core.ReflexionRecord, len(window))
	for _, record := range window {
		byID[record.ID] = record
	}

	var hits []core.ReflexionRecord
	for _, result := range results {
		if record, ok := byID[result.ID]; ok {
			hits = append(hits, record)
		}
	}
	return hits, nil
}

// lexicalRecall scores the window by keyword overlap, breaking ties by
// recency (the window arrives newest first).
func lexicalRecall(window []core.ReflexionRecord, query string, limit int) []core.ReflexionRecord {
	keywords := extractKeywords(query, 6)
	if len(keywords) == 0 {
		if len(window) > limit {
			window = window[:limit]
		}
		return window
	}

	type scored struct {
		record core.ReflexionRecord
		score  int
		order  int
	}
	var candidates []scored
	for i, record := range window {
		text := strings.ToLower(record.Reflection + " " + record.Observation + " " + record.Action)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{record: record, score: score, order: i})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	var out []core.ReflexionRecord
	for _, c := range candidates {
		out = append(out, c.record)
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 && len(window) > 0 {
		// nothing matched; recency is better than nothing
		if len(window) > limit {
			window = window[:limit]
		}
		return window
	}
	return out
}

func extractKeywords(query string, max int) []string {
	var keywords []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		trimmed := strings.Trim(field, ".,:;!?\"'()")
		if len(trimmed) < 4 {
			continue
		}
		keywords = append(keywords, trimmed)
		if len(keywords) >= max {
			break
		}
	}
	return keywords
}

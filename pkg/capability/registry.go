// Package capability holds the agent's self-model of available tools.
// Registry lookup is a hard precondition for tool dispatch: the gateway
// refuses to invoke anything without a manifest entry, which is what turns a
// hallucinated tool name into a classifiable capability gap instead of an
// arbitrary failure.
package capability

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ManifestEntry describes one registered tool and how much the agent
// currently trusts it. Confidence decays on failed reflexions and grows on
// successful ones.
type ManifestEntry struct {
	ToolName         string         `json:"tool_name" yaml:"tool_name"`
	Description      string         `json:"description" yaml:"description"`
	InvocationSchema map[string]any `json:"invocation_schema,omitempty" yaml:"invocation_schema,omitempty"`
	Confidence       float64        `json:"confidence_score" yaml:"confidence_score"`
	VerifiedAt       time.Time      `json:"verified_at" yaml:"verified_at"`
}

// Prober performs a cheap read-only probe of a tool. The gateway supplies
// one; tests can stub it.
type Prober interface {
	Probe(ctx context.Context, toolName string) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, toolName string) error

func (f ProberFunc) Probe(ctx context.Context, toolName string) error { return f(ctx, toolName) }

// Registry is an in-memory capability manifest guarded by a mutex for
// confidence updates. Reads take the shared lock only.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*ManifestEntry
	prober  Prober
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*ManifestEntry)}
}

// SetProber installs the probe used by Verify.
func (r *Registry) SetProber(p Prober) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prober = p
}

// Register adds or replaces a manifest entry. Confidence is clamped to [0, 1].
func (r *Registry) Register(entry ManifestEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.Confidence = clamp(entry.Confidence)
	copied := entry
	r.entries[entry.ToolName] = &copied
}

// Get returns the entry for an exact tool name.
func (r *Registry) Get(toolName string) (ManifestEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[toolName]
	if !ok {
		return ManifestEntry{}, false
	}
	return *entry, true
}

// Lookup returns entries plausibly relevant to the hint: name or description
// substring match, ordered by confidence descending then name for
// determinism. An empty hint returns every entry.
func (r *Registry) Lookup(hint string) []ManifestEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(hint))
	var matches []ManifestEntry
	for _, entry := range r.entries {
		if needle == "" ||
			strings.Contains(strings.ToLower(entry.ToolName), needle) ||
			strings.Contains(strings.ToLower(entry.Description), needle) ||
			hintMentions(needle, entry.ToolName) {
			matches = append(matches, *entry)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].ToolName < matches[j].ToolName
	})
	return matches
}

// AdjustConfidence shifts a tool's confidence by delta, clamped to [0, 1].
// Unknown tools are ignored.
func (r *Registry) AdjustConfidence(toolName string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[toolName]
	if !ok {
		return
	}
	entry.Confidence = clamp(entry.Confidence + delta)
}

// Verify runs the cheap read-only probe for a tool and stamps VerifiedAt on
// success. Without a prober it reports whether the entry exists.
func (r *Registry) Verify(ctx context.Context, toolName string) bool {
	r.mu.RLock()
	_, known := r.entries[toolName]
	prober := r.prober
	r.mu.RUnlock()

	if !known {
		return false
	}
	if prober == nil {
		return true
	}
	if err := prober.Probe(ctx, toolName); err != nil {
		return false
	}

	r.mu.Lock()
	if entry, ok := r.entries[toolName]; ok {
		entry.VerifiedAt = time.Now().UTC()
	}
	r.mu.Unlock()
	return true
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hintMentions reports whether the hint text contains the tool name as a
// word, so "call the http_fetch endpoint" matches tool http_fetch.
func hintMentions(hint, toolName string) bool {
	return strings.Contains(hint, strings.ToLower(toolName))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

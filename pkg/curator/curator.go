// Package curator assembles the working context for one cognitive-loop
// iteration. The context always opens with the goal recitation, then fits
// relevant reflexion lessons, knowledge heuristics and capability manifests
// into a byte budget. When the budget is tight, verbose payloads degrade to
// references before anything is dropped outright.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/telos-ai/telos/pkg/capability"
	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/goal"
	"github.com/telos-ai/telos/pkg/knowledge"
	"github.com/telos-ai/telos/pkg/memory"
)

// DefaultBudget is the context byte budget when the config does not set one.
const DefaultBudget = 16 * 1024

// maxRecords caps how many reflexion lessons one context carries.
const maxRecords = 5

// maxCapabilities caps how many manifest entries one context carries.
const maxCapabilities = 8

// Curator builds task contexts from the goal state, episodic memory, the
// knowledge base and the capability registry.
type Curator struct {
	goals     *goal.Manager
	recaller  *memory.Recaller
	registry  *capability.Registry
	knowledge knowledge.Store
	budget    int
	logger    *slog.Logger
}

// Option configures a Curator.
type Option func(*Curator)

// WithBudget sets the context byte budget.
func WithBudget(budget int) Option {
	return func(c *Curator) {
		if budget > 0 {
			c.budget = budget
		}
	}
}

// WithKnowledge attaches a knowledge base for heuristic injection.
func WithKnowledge(store knowledge.Store) Option {
	return func(c *Curator) { c.knowledge = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Curator) { c.logger = logger }
}

// New creates a curator.
func New(goals *goal.Manager, recaller *memory.Recaller, registry *capability.Registry, opts ...Option) *Curator {
	c := &Curator{
		goals:    goals,
		recaller: recaller,
		registry: registry,
		budget:   DefaultBudget,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildContext assembles the context string for one iteration on a task.
// The goal recitation is never dropped; everything else yields to the budget.
func (c *Curator) BuildContext(ctx context.Context, task *core.Task) (string, error) {
	var b strings.Builder

	state, err := c.goals.Recite(ctx, task.MissionID)
	if err != nil {
		return "", errors.New(errors.CodeMemoryError, "goal recitation failed", err).
			WithAttribute("mission_id", task.MissionID)
	}
	writeRecitation(&b, state)

	fmt.Fprintf(&b, "## Current Task\n%s\n\n", task.Description)
	if task.RetryCount > 0 {
		fmt.Fprintf(&b, "This is retry %d for this task. Corrective work has run since the last attempt.\n\n", task.RetryCount)
	}

	remaining := c.budget - b.Len()
	remaining = c.writeLessons(ctx, &b, task, remaining)
	remaining = c.writeHeuristics(ctx, &b, task, remaining)
	c.writeCapabilities(&b, task, remaining)

	out := b.String()
	if len(out) > c.budget {
		out = out[:c.budget]
	}
	return out, nil
}

func writeRecitation(b *strings.Builder, state core.GoalState) {
	fmt.Fprintf(b, "## Prime Directive\n%s\n\n", state.PrimeDirective)
	if remaining := state.Remaining(); len(remaining) > 0 {
		b.WriteString("## Remaining Goals\n")
		for _, item := range remaining {
			fmt.Fprintf(b, "- %s\n", item)
		}
		b.WriteString("\n")
	}
}

func (c *Curator) writeLessons(ctx context.Context, b *strings.Builder, task *core.Task, budget int) int {
	if c.recaller == nil || budget <= 0 {
		return budget
	}
	records, err := c.recaller.Relevant(ctx, task.MissionID, task.Description, maxRecords)
	if err != nil {
		c.logger.Warn("curator.recall.failed", "task_id", task.ID, "error", err)
		return budget
	}
	if len(records) == 0 {
		return budget
	}

	var section strings.Builder
	section.WriteString("## Lessons From Memory\n")
	for _, record := range records {
		line := fmt.Sprintf("- [%s] %s\n", record.Category, record.Reflection)
		if section.Len()+len(line) > budget {
			break
		}
		section.WriteString(line)
	}
	section.WriteString("\n")
	if section.Len() <= budget {
		b.WriteString(section.String())
		return budget - section.Len()
	}
	return budget
}

func (c *Curator) writeHeuristics(ctx context.Context, b *strings.Builder, task *core.Task, budget int) int {
	if c.knowledge == nil || budget <= 0 {
		return budget
	}
	names, err := c.knowledge.Names(ctx)
	if err != nil || len(names) == 0 {
		return budget
	}

	var section strings.Builder
	section.WriteString("## Knowledge Base\n")
	for _, name := range names {
		doc, err := c.knowledge.Read(ctx, name)
		if err != nil {
			continue
		}
		entry := fmt.Sprintf("### %s (v%d)\n%s\n", doc.Name, doc.Version, doc.Content)
		if section.Len()+len(entry) > budget {
			// over budget: keep the reference, drop the content
			entry = fmt.Sprintf("### %s (v%d)\n[content elided, read document %q]\n", doc.Name, doc.Version, doc.Name)
			if section.Len()+len(entry) > budget {
				break
			}
		}
		section.WriteString(entry)
	}
	section.WriteString("\n")
	if section.Len() <= budget {
		b.WriteString(section.String())
		return budget - section.Len()
	}
	return budget
}

func (c *Curator) writeCapabilities(b *strings.Builder, task *core.Task, budget int) {
	if c.registry == nil || budget <= 0 {
		return
	}
	entries := c.registry.Lookup(task.Description)
	if len(entries) == 0 {
		entries = c.registry.Lookup("")
	}
	if len(entries) > maxCapabilities {
		entries = entries[:maxCapabilities]
	}

	var section strings.Builder
	section.WriteString("## Available Tools\n")
	for _, entry := range entries {
		line := fmt.Sprintf("- %s (confidence %.2f): %s\n", entry.ToolName, entry.Confidence, entry.Description)
		if section.Len()+len(line) > budget {
			break
		}
		section.WriteString(line)
	}
	if section.Len() <= budget {
		b.WriteString(section.String())
	}
}

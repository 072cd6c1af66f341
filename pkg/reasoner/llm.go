package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/telos-ai/telos/pkg/errors"
	"github.com/telos-ai/telos/pkg/llm"
)

// LLMCollaborator implements every reasoning contract on top of an llm.Provider.
// Each call is a single prompt/response exchange; responses are expected as
// JSON and never re-asked; a malformed reply surfaces as CodeLLMError.
type LLMCollaborator struct {
	provider    llm.Provider
	model       string
	temperature float64
}

// NewLLMCollaborator creates a collaborator backed by the given provider.
func NewLLMCollaborator(provider llm.Provider, model string) *LLMCollaborator {
	return &LLMCollaborator{
		provider:    provider,
		model:       model,
		temperature: 0.2,
	}
}

func (c *LLMCollaborator) chat(ctx context.Context, system, user string) (string, error) {
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", errors.New(errors.CodeLLMError, "collaborator call failed", err).WithRecoverable(true)
	}
	return resp.Content, nil
}

// decodeJSON extracts the first JSON value from a model reply. Models often
// wrap JSON in prose or code fences.
func decodeJSON(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[idx+3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		if end := strings.Index(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
	}
	start := strings.IndexAny(trimmed, "[{")
	if start < 0 {
		return fmt.Errorf("no JSON value in reply")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed[start:]))
	return dec.Decode(out)
}

// Decompose implements Planner.
func (c *LLMCollaborator) Decompose(ctx context.Context, primeDirective string) ([]TaskSpec, error) {
	content, err := c.chat(ctx, decomposeSystemPrompt, primeDirective)
	if err != nil {
		return nil, err
	}
	var specs []TaskSpec
	if err := decodeJSON(content, &specs); err != nil {
		return nil, errors.New(errors.CodeLLMError, "decomposition reply is not a task list", err)
	}
	return specs, nil
}

// Think implements Thinker.
func (c *LLMCollaborator) Think(ctx context.Context, req ThinkRequest) (Thought, error) {
	user := fmt.Sprintf("Task: %s\n\nContext:\n%s", req.TaskDescription, req.Context)
	content, err := c.chat(ctx, thinkSystemPrompt, user)
	if err != nil {
		return Thought{}, err
	}
	var thought Thought
	if err := decodeJSON(content, &thought); err != nil {
		return Thought{}, errors.New(errors.CodeLLMError, "thought reply is not valid JSON", err)
	}
	return thought, nil
}

// Brainstorm implements Brainstormer.
func (c *LLMCollaborator) Brainstorm(ctx context.Context, req ThinkRequest, width int) ([]Thought, error) {
	user := fmt.Sprintf("Task: %s\n\nContext:\n%s\n\nPropose up to %d distinct strategies.",
		req.TaskDescription, req.Context, width)
	content, err := c.chat(ctx, brainstormSystemPrompt, user)
	if err != nil {
		return nil, err
	}
	var thoughts []Thought
	if err := decodeJSON(content, &thoughts); err != nil {
		return nil, errors.New(errors.CodeLLMError, "brainstorm reply is not a thought list", err)
	}
	if len(thoughts) > width {
		thoughts = thoughts[:width]
	}
	return thoughts, nil
}

// Score implements Scorer. The reply is expected to be a bare number in
// [0, 10]; out-of-range values are clamped.
func (c *LLMCollaborator) Score(ctx context.Context, thought Thought, failureContext string) (float64, error) {
	user := fmt.Sprintf("Failure context:\n%s\n\nCandidate strategy:\n%s", failureContext, thought.Text)
	content, err := c.chat(ctx, scoreSystemPrompt, user)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(strings.TrimSpace(content))
	if len(fields) == 0 {
		return 0, errors.New(errors.CodeLLMError, "empty score reply", nil)
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil {
		return 0, errors.New(errors.CodeLLMError, "score reply is not numeric", err)
	}
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}

// Hypothesize implements Hypothesizer.
func (c *LLMCollaborator) Hypothesize(ctx context.Context, taskDescription, failureClass, observation string) (Hypothesis, error) {
	user := fmt.Sprintf("Task: %s\nFailure class: %s\nObservation:\n%s",
		taskDescription, failureClass, observation)
	content, err := c.chat(ctx, hypothesisSystemPrompt, user)
	if err != nil {
		return Hypothesis{}, err
	}
	var hyp Hypothesis
	if err := decodeJSON(content, &hyp); err != nil {
		return Hypothesis{}, errors.New(errors.CodeLLMError, "hypothesis reply is not valid JSON", err)
	}
	return hyp, nil
}

// Synthesize implements Synthesizer.
func (c *LLMCollaborator) Synthesize(ctx context.Context, gap string, findings []Finding) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capability gap: %s\n\nFindings:\n", gap)
	for i, finding := range findings {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, finding.Source, finding.Content)
	}
	content, err := c.chat(ctx, synthesizeSystemPrompt, sb.String())
	if err != nil {
		return "", err
	}
	heuristic := strings.TrimSpace(content)
	if heuristic == "" {
		return "", errors.New(errors.CodeLLMError, "empty heuristic reply", nil)
	}
	return heuristic, nil
}

// Research implements Researcher using the model's own knowledge. A
// deployment with a real search backend should supply its own Researcher;
// this one keeps Tier 2 functional without network access.
func (c *LLMCollaborator) Research(ctx context.Context, query string) ([]Finding, error) {
	content, err := c.chat(ctx, researchSystemPrompt, query)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	if err := decodeJSON(content, &findings); err != nil {
		return nil, errors.New(errors.CodeLLMError, "research reply is not valid JSON", err)
	}
	return findings, nil
}

var (
	_ Collaborator = (*LLMCollaborator)(nil)
	_ Researcher   = (*LLMCollaborator)(nil)
)

const decomposeSystemPrompt = `You decompose an objective into an ordered set of tasks.
Reply with a JSON array of objects: {"id", "description", "depends_on", "tags"}.
IDs must be short and unique; depends_on lists prerequisite IDs; the graph must be acyclic.
Tag tasks "architecture-selection", "technology-choice" or "large-refactor" only when they genuinely are.`

const thinkSystemPrompt = `You perform one reasoning step for the given task.
Reply with a single JSON object: {"text", "tool", "args", "conclude"}.
Set "conclude": true with no tool when the context shows the task is already complete.
Otherwise pick exactly one tool from the capability list in the context.`

const brainstormSystemPrompt = `You propose alternative strategies for a task that is stuck.
Reply with a JSON array of thought objects: {"text", "tool", "args"}.
Each strategy must be genuinely distinct, not a rewording.`

const scoreSystemPrompt = `You rate how promising a candidate strategy is for resolving the failure.
Reply with a single number between 0 and 10. No prose.`

const hypothesisSystemPrompt = `You explain a classified transient failure.
Reply with a JSON object: {"cause", "corrective_description", "tool", "args"}.
"cause" is a single sentence. The corrective action must be exactly one step.`

const synthesizeSystemPrompt = `You condense research findings into one durable heuristic.
Reply with a short imperative paragraph. It will be stored verbatim in a knowledge base.`

const researchSystemPrompt = `You research a missing capability from what you already know.
Reply with a JSON array of findings: {"source", "content"}.
Return an empty array if you know nothing useful. Never invent sources.`

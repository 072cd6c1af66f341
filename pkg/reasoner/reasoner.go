// Package reasoner defines the contracts Telos delegates natural-language
// reasoning to. The orchestration engine never generates or interprets free
// text itself: decomposition, thought generation, thought scoring, failure
// hypotheses and heuristic synthesis are all collaborator calls behind these
// interfaces. Implementations are side-effect free; only the tool gateway
// touches the outside world.
package reasoner

import "context"

// TaskSpec is a collaborator-proposed task: an id, a description and the ids
// of tasks it depends on. The plan package turns specs into tasks and
// enforces acyclicity.
type TaskSpec struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description" yaml:"description"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Thought is one proposed reasoning step: the rationale plus the action it
// selects. A concluding thought carries no action and signals the task is
// complete from the collaborator's point of view.
type Thought struct {
	Text     string         `json:"text"`
	Tool     string         `json:"tool,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Conclude bool           `json:"conclude,omitempty"`
}

// ThinkRequest carries the task and the curated context for one step.
type ThinkRequest struct {
	TaskID          string
	TaskDescription string
	Context         string
}

// Hypothesis is a single-sentence causal explanation of a classified failure
// together with exactly one corrective action.
type Hypothesis struct {
	Cause                 string         `json:"cause"`
	CorrectiveDescription string         `json:"corrective_description"`
	Tool                  string         `json:"tool,omitempty"`
	Args                  map[string]any `json:"args,omitempty"`
}

// Finding is one result from the external research collaborator.
type Finding struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Planner decomposes a mission's prime directive into task specs.
type Planner interface {
	Decompose(ctx context.Context, primeDirective string) ([]TaskSpec, error)
}

// Thinker produces the next single thought for a task given curated context.
type Thinker interface {
	Think(ctx context.Context, req ThinkRequest) (Thought, error)
}

// Brainstormer proposes up to width distinct candidate strategies for a task
// stuck at a failure or planning point. Used by the Tree-of-Thoughts engine.
type Brainstormer interface {
	Brainstorm(ctx context.Context, req ThinkRequest, width int) ([]Thought, error)
}

// Scorer self-evaluates a candidate thought in [0, 10].
type Scorer interface {
	Score(ctx context.Context, thought Thought, failureContext string) (float64, error)
}

// Hypothesizer forms a causal hypothesis and corrective action for a
// classified transient failure. Used by Tier 1.
type Hypothesizer interface {
	Hypothesize(ctx context.Context, taskDescription, failureClass, observation string) (Hypothesis, error)
}

// Synthesizer condenses research findings into a durable heuristic suitable
// for a knowledge-base document. Used by Tier 2.
type Synthesizer interface {
	Synthesize(ctx context.Context, gap string, findings []Finding) (string, error)
}

// Researcher is the external search capability. Used only by Tier 2.
type Researcher interface {
	Research(ctx context.Context, query string) ([]Finding, error)
}

// Collaborator bundles every reasoning contract the engine needs.
type Collaborator interface {
	Planner
	Thinker
	Brainstormer
	Scorer
	Hypothesizer
	Synthesizer
}

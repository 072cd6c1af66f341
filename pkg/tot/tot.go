// Package tot implements the Tree-of-Thoughts search used when the linear
// loop is insufficient: high-complexity planning points and ambiguous
// failures. Candidate thoughts are generated and scored without side
// effects; only the committed node at each level executes its action, and a
// failed execution backtracks to the next-best sibling instead of burning a
// retry.
package tot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/telos-ai/telos/pkg/core"
	"github.com/telos-ai/telos/pkg/gateway"
	"github.com/telos-ai/telos/pkg/reasoner"
)

// Config bounds the search.
type Config struct {
	// Width is the number of candidate thoughts generated per level.
	Width int
	// Depth is the maximum number of committed levels.
	Depth int
	// ScoreThreshold prunes candidates scoring below it, in [0, 10].
	ScoreThreshold float64
}

// DefaultConfig is the search shape used when the config file sets nothing.
func DefaultConfig() Config {
	return Config{Width: 3, Depth: 4, ScoreThreshold: 5}
}

// Node is one explored candidate.
type Node struct {
	Thought     reasoner.Thought
	Score       float64
	Observation string
	Executed    bool
	Err         error
}

// Result summarizes one search.
type Result struct {
	Succeeded bool
	// NodesExplored counts every generated-and-scored candidate. Never
	// exceeds Width×Depth.
	NodesExplored int
	DepthReached  int
	Conclusion    string
	// Path holds the committed node per level, in order.
	Path []Node
}

// Engine runs the search.
type Engine struct {
	brainstormer reasoner.Brainstormer
	scorer       reasoner.Scorer
	gateway      *gateway.Gateway
	cfg          Config
	timeout      time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithActionTimeout sets the per-action gateway timeout.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a Tree-of-Thoughts engine.
func NewEngine(brainstormer reasoner.Brainstormer, scorer reasoner.Scorer, gw *gateway.Gateway, cfg Config, opts ...Option) *Engine {
	if cfg.Width <= 0 {
		cfg.Width = DefaultConfig().Width
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultConfig().Depth
	}
	e := &Engine{
		brainstormer: brainstormer,
		scorer:       scorer,
		gateway:      gw,
		cfg:          cfg,
		timeout:      30 * time.Second,
		logger:       slog.Default(),
		tracer:       otel.Tracer("telos/tot"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explore searches for a viable path out of the given failure context. The
// search is exhausted, not failed, when the Width×Depth budget runs out; the
// caller decides whether exhaustion escalates.
func (e *Engine) Explore(ctx context.Context, task *core.Task, failureContext string) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "ToT.Explore",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.Int("tot.width", e.cfg.Width),
			attribute.Int("tot.depth", e.cfg.Depth),
		),
	)
	defer span.End()

	budget := e.cfg.Width * e.cfg.Depth
	var result Result
	working := failureContext

	e.logger.Info("tot.started",
		"task_id", task.ID,
		"width", e.cfg.Width,
		"depth", e.cfg.Depth,
		"budget", budget)

	for depth := 1; depth <= e.cfg.Depth; depth++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		remaining := budget - result.NodesExplored
		if remaining <= 0 {
			break
		}
		width := e.cfg.Width
		if width > remaining {
			width = remaining
		}

		candidates, err := e.expand(ctx, task, working, width)
		if err != nil {
			return result, err
		}
		result.NodesExplored += len(candidates)
		result.DepthReached = depth

		survivors := e.prune(candidates)
		if len(survivors) == 0 {
			e.logger.Info("tot.level.dead_end", "task_id", task.ID, "depth", depth)
			break
		}

		committed, ok := e.commit(ctx, task, survivors, &result)
		if !ok {
			// every sibling at this level failed its action
			break
		}
		if committed.Thought.Conclude {
			result.Succeeded = true
			result.Conclusion = committed.Thought.Text
			e.logger.Info("tot.succeeded",
				"task_id", task.ID,
				"depth", depth,
				"nodes", result.NodesExplored)
			return result, nil
		}
		working = extend(working, committed)
	}

	e.logger.Info("tot.exhausted",
		"task_id", task.ID,
		"nodes", result.NodesExplored,
		"depth", result.DepthReached)
	return result, nil
}

// expand brainstorms width candidates and scores them concurrently. Scoring
// has no side effects, so candidates evaluate in parallel.
func (e *Engine) expand(ctx context.Context, task *core.Task, working string, width int) ([]Node, error) {
	thoughts, err := e.brainstormer.Brainstorm(ctx, reasoner.ThinkRequest{
		TaskID:          task.ID,
		TaskDescription: task.Description,
		Context:         working,
	}, width)
	if err != nil {
		return nil, err
	}
	if len(thoughts) > width {
		thoughts = thoughts[:width]
	}

	nodes := make([]Node, len(thoughts))
	g, gctx := errgroup.WithContext(ctx)
	for i, thought := range thoughts {
		i, thought := i, thought
		g.Go(func() error {
			score, err := e.scorer.Score(gctx, thought, working)
			if err != nil {
				return err
			}
			nodes[i] = Node{Thought: thought, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// prune drops candidates under the threshold and orders the rest by score
// descending. The sort is stable so equal scores keep generation order.
func (e *Engine) prune(candidates []Node) []Node {
	var survivors []Node
	for _, node := range candidates {
		if node.Score >= e.cfg.ScoreThreshold {
			survivors = append(survivors, node)
		}
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})
	return survivors
}

// commit executes the best survivor's action. On failure it backtracks to
// the next-best sibling. Each node executes at most one action, and only
// when committed.
func (e *Engine) commit(ctx context.Context, task *core.Task, survivors []Node, result *Result) (Node, bool) {
	for _, node := range survivors {
		if node.Thought.Conclude || node.Thought.Tool == "" {
			result.Path = append(result.Path, node)
			return node, true
		}

		obs, err := e.gateway.Invoke(ctx, node.Thought.Tool, node.Thought.Args, e.timeout)
		node.Executed = true
		if err != nil {
			node.Err = err
			result.Path = append(result.Path, node)
			e.logger.Debug("tot.node.backtrack",
				"task_id", task.ID,
				"tool", node.Thought.Tool,
				"error", err)
			continue
		}
		node.Observation = obs.Output
		result.Path = append(result.Path, node)
		return node, true
	}
	return Node{}, false
}

// extend folds a committed node into the working context for the next level.
func extend(working string, node Node) string {
	if node.Observation != "" {
		return fmt.Sprintf("%s\n\nStep taken: %s\nObservation: %s", working, node.Thought.Text, node.Observation)
	}
	return fmt.Sprintf("%s\n\nReasoning: %s", working, node.Thought.Text)
}

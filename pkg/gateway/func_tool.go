package gateway

import "context"

// FuncTool adapts a plain function into a core.Tool. Most built-in
// capabilities and all test tools are FuncTools.
type FuncTool struct {
	name  string
	fn    func(ctx context.Context, args map[string]any) (string, error)
	probe func(ctx context.Context) error
}

// NewFuncTool creates a tool from a function.
func NewFuncTool(name string, fn func(ctx context.Context, args map[string]any) (string, error)) *FuncTool {
	return &FuncTool{name: name, fn: fn}
}

// WithProbe attaches a cheap read-only verification probe.
func (t *FuncTool) WithProbe(probe func(ctx context.Context) error) *FuncTool {
	t.probe = probe
	return t
}

// Name returns the tool name.
func (t *FuncTool) Name() string { return t.name }

// Call executes the wrapped function.
func (t *FuncTool) Call(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// Probe implements core.Prober when a probe was attached.
func (t *FuncTool) Probe(ctx context.Context) error {
	if t.probe == nil {
		return nil
	}
	return t.probe(ctx)
}

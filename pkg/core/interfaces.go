package core

import "context"

// Tool is a concrete effectful capability dispatched by the tool gateway.
type Tool interface {
	Name() string
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Prober is optionally implemented by tools that support a cheap read-only
// verification probe before a consequential action relies on them.
type Prober interface {
	Probe(ctx context.Context) error
}

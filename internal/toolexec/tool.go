// Package toolexec is the closed, statically registered set of
// capabilities an Iteration Executor may invoke, each one sandboxed to its
// record's worktree and subject to per-iteration read-before-edit
// tracking.
package toolexec

import "context"

// ParamSpec describes one parameter of a tool's input schema.
type ParamSpec struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// Spec is a tool's static description: name, human summary, and its
// input schema, used both for prompt assembly and for jsonschema
// pre-validation of a proposed call.
type Spec struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

// Result is what a tool invocation returns to the executor: its textual
// output for the agent, plus whether the call mutated the worktree (used
// to decide whether an auto-commit is warranted at iteration end).
type Result struct {
	Output   string
	Mutating bool
}

// Tool is one capability in the registry. Execute receives validated
// arguments already checked against Spec's schema.
type Tool interface {
	Spec() Spec
	Execute(ctx context.Context, tc *Context, args map[string]any) (Result, error)
}

package toolexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Call is one proposed tool invocation from the agent.
type Call struct {
	Name string
	Args map[string]any
}

// Executor validates and dispatches tool calls against a Registry within
// one iteration's Context.
type Executor struct {
	reg *Registry

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewExecutor compiles an input-schema validator for every tool in reg up
// front, so a malformed call is rejected before the tool itself runs.
func NewExecutor(reg *Registry) (*Executor, error) {
	e := &Executor{reg: reg, schemas: make(map[string]*jsonschema.Schema)}
	for _, spec := range reg.Specs() {
		schema, err := compileSchema(spec)
		if err != nil {
			return nil, fmt.Errorf("toolexec: compile schema for %s: %w", spec.Name, err)
		}
		e.schemas[spec.Name] = schema
	}
	return e, nil
}

// compileSchema builds a JSON Schema document from a tool Spec's
// parameter list and compiles it via santhosh-tekuri/jsonschema.
func compileSchema(spec Spec) (*jsonschema.Schema, error) {
	properties := make(map[string]any, len(spec.Params))
	var required []string
	for name, p := range spec.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	url := "loopr://tool/" + spec.Name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Execute validates call against its tool's schema, enforces the
// sandbox, and dispatches to the tool's Execute method.
func (e *Executor) Execute(ctx context.Context, tc *Context, call Call) (Result, error) {
	tool, ok := e.reg.Lookup(call.Name)
	if !ok {
		return Result{}, fmt.Errorf("toolexec: unknown tool %q", call.Name)
	}

	e.mu.Lock()
	schema := e.schemas[call.Name]
	e.mu.Unlock()

	if schema != nil {
		if err := schema.Validate(call.Args); err != nil {
			return Result{}, fmt.Errorf("toolexec: %s: invalid arguments: %w", call.Name, err)
		}
	}

	result, err := tool.Execute(ctx, tc, call.Args)
	if err != nil {
		return Result{}, err
	}
	if result.Mutating {
		tc.MarkMutated()
	}
	return result, nil
}

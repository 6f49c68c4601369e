package toolexec

import "fmt"

// Registry is the closed set of tools available to every executor. It is
// built once at startup from NewRegistry and never mutated afterward, so
// concurrent executors can share one Registry safely.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a Registry containing exactly the given tools,
// erroring on a duplicate name.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Spec().Name
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("toolexec: duplicate tool name %q", name)
		}
		r.tools[name] = t
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns every registered tool's Spec, in no particular order, for
// prompt assembly.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec())
	}
	return specs
}

// Default returns the registry of built-in tools every executor uses.
func Default() (*Registry, error) {
	return NewRegistry(
		&ReadFileTool{},
		&WriteFileTool{},
		&EditFileTool{},
		&ListDirTool{},
		&GlobTool{},
		&GrepTool{},
		&RunCommandTool{},
		&GitTool{},
		&CompleteTool{},
	)
}

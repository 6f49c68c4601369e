package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed builtin_kinds/*.yaml
var builtinKindsFS embed.FS

// LoadKinds builds the set of per-kind Definitions: built-in documents
// first, then every YAML document found under each of paths, later
// paths overriding earlier ones and user documents overriding built-ins
// by name. This generalizes load_loop_types/load_loop_types_from_dir in
// original_source/src/config/mod.rs, which walked the same precedence
// over a flat set of loop types; Loopr's kinds are the four levels of
// the unit tree (plan/spec/phase/code) rather than an open-ended type
// registry, but a user may still supply project- or user-level YAML
// overrides for any of them.
func LoadKinds(paths []string) (map[string]Definition, error) {
	kinds := make(map[string]Definition)

	entries, err := builtinKindsFS.ReadDir("builtin_kinds")
	if err != nil {
		return nil, fmt.Errorf("config: read builtin kinds: %w", err)
	}
	for _, e := range entries {
		data, err := builtinKindsFS.ReadFile(filepath.Join("builtin_kinds", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("config: read builtin kind %s: %w", e.Name(), err)
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("config: parse builtin kind %s: %w", e.Name(), err)
		}
		kinds[def.Name] = def
	}

	for _, p := range paths {
		if p == "builtin" {
			continue
		}
		loadKindsFromDir(p, kinds)
	}

	return kinds, nil
}

// loadKindsFromDir merges every *.yaml/*.yml file in dir into kinds,
// overriding by name. A missing or unreadable directory is silently
// skipped, matching the original's "if user_loops_dir.exists()" guard.
func loadKindsFromDir(dir string, kinds map[string]Definition) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			continue
		}
		if def.Name == "" {
			continue
		}
		kinds[def.Name] = def
	}
}

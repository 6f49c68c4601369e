package toolexec

import "testing"

func TestDefaultRegistryHasNoDuplicates(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	specs := reg.Specs()
	if len(specs) != 9 {
		t.Fatalf("expected 9 tools, got %d", len(specs))
	}
	for _, name := range []string{"read_file", "write_file", "edit_file", "list_dir", "glob", "grep", "run_command", "git", "complete"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("expected tool %q to be registered", name)
		}
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(&ReadFileTool{}, &ReadFileTool{})
	if err == nil {
		t.Fatal("expected duplicate tool name to error")
	}
}

func TestLookupUnknownTool(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if _, ok := reg.Lookup("nonexistent"); ok {
		t.Fatal("expected unknown tool lookup to fail")
	}
}

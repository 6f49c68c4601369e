package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
)

// CompleteTool is how an agent signals it considers its unit's work
// done and ready for validation, rather than the executor having to
// guess from silence or a turn budget alone. Its Output carries a
// structured payload the iteration driver decodes to select the
// artifact a child-spawn decision reads.
type CompleteTool struct{}

func (t *CompleteTool) Spec() Spec {
	return Spec{
		Name:        "complete",
		Description: "Signal that this iteration's work is finished and ready for validation.",
		Params: map[string]ParamSpec{
			"summary":  {Type: "string", Description: "Short summary of what was accomplished", Required: true},
			"artifact": {Type: "string", Description: "Path, relative to the worktree root, to the artifact validation and spawn decisions should read"},
		},
	}
}

// CompletionPayload is the decoded form of a complete tool call.
type CompletionPayload struct {
	Summary  string `json:"summary"`
	Artifact string `json:"artifact"`
}

func (t *CompleteTool) Execute(_ context.Context, _ *Context, args map[string]any) (Result, error) {
	summary, _ := args["summary"].(string)
	if summary == "" {
		return Result{}, fmt.Errorf("complete: summary is required")
	}
	artifact, _ := args["artifact"].(string)

	payload := CompletionPayload{Summary: summary, Artifact: artifact}
	out, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("complete: marshal: %w", err)
	}
	return Result{Output: string(out)}, nil
}

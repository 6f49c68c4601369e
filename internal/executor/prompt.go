package executor

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/toolexec"
	"github.com/loopr-dev/loopr/internal/validation"
)

// systemPromptFor returns the kind-specific instruction the agent sees as
// its system prompt for every iteration of a record's loop.
func systemPromptFor(kind store.Kind, tools []toolexec.Spec) string {
	var role string
	switch kind {
	case store.KindPlan:
		role = "You are writing a Plan: a top-level markdown document with Summary, Goals, Non-Goals, Proposed Solution, Specs, and Risks sections."
	case store.KindSpec:
		role = "You are writing a Spec: a markdown document with Overview, Requirements, Acceptance Criteria, and Phases sections, covering one slice of its parent Plan."
	case store.KindPhase:
		role = "You are writing a Phase: a markdown document with Goal, Tasks, and Acceptance Criteria sections, describing one concretely achievable unit of work."
	case store.KindCode:
		role = "You are writing and editing code in the working tree to satisfy the Phase that spawned this unit of work."
	}

	var sb strings.Builder
	sb.WriteString(role)
	sb.WriteString("\n\nYou act by emitting fenced ```tool_call blocks containing a JSON object ")
	sb.WriteString("{\"name\": \"<tool>\", \"args\": {...}} (or a JSON array of such objects). ")
	sb.WriteString("Call the complete tool when your work for this iteration is ready for validation. ")
	sb.WriteString("A turn with no tool_call block ends your turn without completing.\n\nAvailable tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
	}
	return sb.String()
}

// buildTaskPrompt renders the record's context and accumulated feedback
// history into the initial user-turn content for an iteration.
func buildTaskPrompt(rec *store.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Task\n\n")
	for _, k := range slices.Sorted(maps.Keys(rec.Context)) {
		fmt.Fprintf(&sb, "%s: %s\n", k, rec.Context[k])
	}
	fmt.Fprintf(&sb, "\nIteration: %d/%d\n", rec.Iteration, rec.MaxIterations)

	if history := validation.NewFormatter().FormatHistory(rec.FeedbackHistory); history != "" {
		sb.WriteString("\n")
		sb.WriteString(history)
	}

	return sb.String()
}

// transcript accumulates one iteration's agent/tool turns into a single
// growing string, since llm.Client's Complete takes a flat system/user
// prompt pair rather than a role-tagged message array.
type transcript struct {
	task string
	turns []string
}

func newTranscript(task string) *transcript {
	return &transcript{task: task}
}

func (t *transcript) appendAssistant(content string) {
	t.turns = append(t.turns, fmt.Sprintf("### Assistant\n%s\n", content))
}

func (t *transcript) appendToolResults(content string) {
	if content == "" {
		return
	}
	t.turns = append(t.turns, content)
}

// render builds the full user prompt to send for the next turn.
func (t *transcript) render() string {
	if len(t.turns) == 0 {
		return t.task
	}
	return t.task + "\n\n" + strings.Join(t.turns, "\n")
}

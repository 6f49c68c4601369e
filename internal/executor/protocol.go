package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/loopr-dev/loopr/internal/toolexec"
)

// toolCallFence matches a fenced ```tool_call block containing one JSON
// call object or an array of them. The narrow llm.Client contract (a single prompt/
// response string pair, no structured tool-calling wire format) means
// tool calls have to travel as text the agent is instructed to emit,
// rather than a provider's native function-calling schema.
var toolCallFence = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)```")

type rawCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// parseToolCalls extracts every tool_call block from an agent response,
// in order. ok is false when the response contains no well-formed block,
// which the iteration loop treats as the agent ending its turn.
func parseToolCalls(response string) (calls []toolexec.Call, ok bool) {
	matches := toolCallFence.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil, false
	}

	for _, m := range matches {
		body := strings.TrimSpace(m[1])
		if body == "" {
			continue
		}

		var single rawCall
		if err := json.Unmarshal([]byte(body), &single); err == nil && single.Name != "" {
			calls = append(calls, toolexec.Call{Name: single.Name, Args: single.Args})
			continue
		}

		var many []rawCall
		if err := json.Unmarshal([]byte(body), &many); err == nil {
			for _, c := range many {
				if c.Name != "" {
					calls = append(calls, toolexec.Call{Name: c.Name, Args: c.Args})
				}
			}
		}
	}

	return calls, len(calls) > 0
}

// formatToolResult renders one executed call's outcome for the next
// turn's transcript.
func formatToolResult(call toolexec.Call, result toolexec.Result, err error) string {
	if err != nil {
		return fmt.Sprintf("### Tool Result: %s (error)\n%s\n", call.Name, err.Error())
	}
	return fmt.Sprintf("### Tool Result: %s\n%s\n", call.Name, result.Output)
}

// Package validation implements the three-layer composite validation
// pipeline applied at the end of every iteration: structure checks, a test
// command, and an LLM judge call. See the doc comment on Pipeline.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loopr-dev/loopr/internal/store"
)

// Formatter renders a unit's feedback history into prompt text for the next
// iteration. Bounds are applied so a noisy tool doesn't blow the context
// budget on its own.
type Formatter struct {
	MaxFailuresPerCategory int
	MaxContextLines        int
}

// NewFormatter returns a Formatter with the teacher-sized defaults.
func NewFormatter() *Formatter {
	return &Formatter{MaxFailuresPerCategory: 10, MaxContextLines: 5}
}

// FormatEntry renders one feedback entry, grouped by failure category. It
// returns "" for a passing entry.
func (f *Formatter) FormatEntry(iteration int, e store.FeedbackEntry) string {
	if e.Pass {
		return ""
	}

	byCategory := make(map[store.FailureCategory][]store.FailureDetail)
	var order []store.FailureCategory
	for _, fd := range e.Failures {
		if _, ok := byCategory[fd.Category]; !ok {
			order = append(order, fd.Category)
		}
		byCategory[fd.Category] = append(byCategory[fd.Category], fd)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var sb strings.Builder
	fmt.Fprintf(&sb, "### Iteration %d Failures (%s)\n\n", iteration, e.Layer)

	for _, cat := range order {
		fds := byCategory[cat]
		fmt.Fprintf(&sb, "**%s**:\n", cat)

		shown := fds
		if len(shown) > f.MaxFailuresPerCategory {
			shown = shown[:f.MaxFailuresPerCategory]
		}
		for _, fd := range shown {
			if loc := locationString(fd); loc != "" {
				fmt.Fprintf(&sb, "- %s (%s)\n", fd.Message, loc)
			} else {
				fmt.Fprintf(&sb, "- %s\n", fd.Message)
			}
			if fd.Context != "" {
				sb.WriteString("  ```\n")
				sb.WriteString(indentText(truncateLines(fd.Context, f.MaxContextLines), "  "))
				sb.WriteString("\n  ```\n")
			}
		}
		if len(fds) > f.MaxFailuresPerCategory {
			fmt.Fprintf(&sb, "- ... and %d more %s failures\n", len(fds)-f.MaxFailuresPerCategory, cat)
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

// FormatHistory renders an entire feedback history: a one-line summary per
// failed iteration, followed by the full detail of the most recent failure.
// Passing entries are omitted. History index+1 is used as the iteration
// number, since store.Record.FeedbackHistory is append-only per attempt.
func (f *Formatter) FormatHistory(history []store.FeedbackEntry) string {
	type failed struct {
		iteration int
		entry     store.FeedbackEntry
	}
	var fails []failed
	for i, e := range history {
		if !e.Pass {
			fails = append(fails, failed{iteration: i + 1, entry: e})
		}
	}
	if len(fails) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Previous Iteration Results\n\n")

	if len(fails) > 1 {
		sb.WriteString("**Summary:**\n")
		for _, fl := range fails {
			cats := categorySet(fl.entry.Failures)
			fmt.Fprintf(&sb, "- Iteration %d: %d failure(s) in %s\n", fl.iteration, len(fl.entry.Failures), strings.Join(cats, ", "))
		}
		sb.WriteByte('\n')
	}

	latest := fails[len(fails)-1]
	sb.WriteString("**Most recent failure (focus on fixing this first):**\n\n")
	sb.WriteString(f.FormatEntry(latest.iteration, latest.entry))

	return sb.String()
}

func categorySet(fds []store.FailureDetail) []string {
	seen := make(map[store.FailureCategory]bool)
	var out []string
	for _, fd := range fds {
		if !seen[fd.Category] {
			seen[fd.Category] = true
			out = append(out, string(fd.Category))
		}
	}
	sort.Strings(out)
	return out
}

func locationString(fd store.FailureDetail) string {
	if fd.File == "" {
		return ""
	}
	loc := fd.File
	if fd.Line > 0 {
		loc += fmt.Sprintf(":%d", fd.Line)
		if fd.Col > 0 {
			loc += fmt.Sprintf(":%d", fd.Col)
		}
	}
	return loc
}

func truncateLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	return strings.Join(lines[:max], "\n") + "\n... (truncated)"
}

func indentText(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

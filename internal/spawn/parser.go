// Package spawn decides what child records a newly Complete Plan, Spec, or
// Phase record produces, by parsing its primary output artifact.
package spawn

import (
	"fmt"
	"regexp"
	"strings"
)

// minSteps is the minimum number of parsed steps for an artifact to be
// considered a recognizable plan, mirroring the teacher's minPlanSteps.
const minSteps = 1

// headerStepRe matches markdown headers like "### Step 1: Title",
// "## Spec 2: Title", or "#### Phase 3: Title" — any heading level,
// optional kind word, a number, then a title.
var headerStepRe = regexp.MustCompile(`(?m)^#{1,6}\s+(?:Step|Spec|Phase)?\s*(\d+)[.:]?\s*(.+)$`)

// numberedItemRe matches numbered list items like "1. Title" or "2) Title".
var numberedItemRe = regexp.MustCompile(`(?m)^(\d+)[.)]\s+(.+)`)

// Step is one parsed unit of work extracted from a parent's artifact.
type Step struct {
	Index       int
	Title       string
	Description string
}

// ParseArtifact extracts Steps from a markdown artifact, trying markdown
// headers first and falling back to numbered list items, exactly as the
// teacher's ParsePlanFromMarkdown does. Returns nil if fewer than
// minSteps steps are found — the parent's completion still stands; it
// simply produces no children.
func ParseArtifact(markdown string) []Step {
	if steps := parseHeaderSteps(markdown); steps != nil {
		return steps
	}
	return parseNumberedSteps(markdown)
}

func parseHeaderSteps(markdown string) []Step {
	matches := headerStepRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) < minSteps {
		return nil
	}
	return buildSteps(markdown, matches)
}

func parseNumberedSteps(markdown string) []Step {
	matches := numberedItemRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(matches) < minSteps {
		return nil
	}
	return buildSteps(markdown, matches)
}

// buildSteps turns regex submatch indices into Steps, with each step's
// description spanning from the end of its header/item to the start of
// the next one (or end of document).
func buildSteps(markdown string, matches [][]int) []Step {
	steps := make([]Step, 0, len(matches))
	for i, match := range matches {
		title := strings.TrimSpace(markdown[match[4]:match[5]])

		descStart := match[1]
		descEnd := len(markdown)
		if i+1 < len(matches) {
			descEnd = matches[i+1][0]
		}
		desc := strings.TrimSpace(markdown[descStart:descEnd])

		steps = append(steps, Step{
			Index:       i + 1,
			Title:       title,
			Description: desc,
		})
	}
	return steps
}

// StepTrigger is the conventional filename spawn children look for as
// their triggering artifact, given a step index.
func StepTrigger(prefix string, index int) string {
	return fmt.Sprintf("%s_%d.md", prefix, index)
}

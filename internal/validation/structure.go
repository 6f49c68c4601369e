package validation

import (
	"fmt"
	"strings"

	"github.com/loopr-dev/loopr/internal/store"
)

// ambiguousMarkers always fail structure validation, regardless of kind.
var ambiguousMarkers = []string{"TBD", "FIXME", "???"}

// StructureCheck is a single required-section substring check.
type StructureCheck struct {
	Name         string
	Pattern      string
	ErrorMessage string
}

// RequiredSection builds a check that fails when content doesn't contain
// marker (a markdown heading, by convention).
func RequiredSection(sectionName, marker string) StructureCheck {
	return StructureCheck{
		Name:         "section_" + strings.ToLower(strings.ReplaceAll(sectionName, " ", "_")),
		Pattern:      marker,
		ErrorMessage: fmt.Sprintf("Missing required section: %s", sectionName),
	}
}

func (c StructureCheck) check(content string) *store.FailureDetail {
	if strings.Contains(content, c.Pattern) {
		return nil
	}
	return &store.FailureDetail{Category: store.CategoryStructure, Message: c.ErrorMessage}
}

// CustomCheck inspects artifact content and returns a failure, or nil.
type CustomCheck func(content string) *store.FailureDetail

// StructureValidator is Layer 1 of the pipeline: synchronous, no external
// commands, cheap. Each store.Kind gets its own required-section list via
// ForKind.
type StructureValidator struct {
	checks       []StructureCheck
	customChecks []CustomCheck
}

// NewStructureValidator returns an empty validator with no checks.
func NewStructureValidator() *StructureValidator {
	return &StructureValidator{}
}

// AddCheck appends a required-section check.
func (v *StructureValidator) AddCheck(c StructureCheck) *StructureValidator {
	v.checks = append(v.checks, c)
	return v
}

// AddCustomCheck appends a predicate-style check.
func (v *StructureValidator) AddCustomCheck(c CustomCheck) *StructureValidator {
	v.customChecks = append(v.customChecks, c)
	return v
}

// ForKind returns the standard validator for a record kind. Code records
// produce code, not a structured markdown artifact, so they get an empty
// validator: Layer 1 is a no-op for them and the pipeline moves straight to
// Layer 2.
func ForKind(k store.Kind) *StructureValidator {
	switch k {
	case store.KindPlan:
		return ForPlan()
	case store.KindSpec:
		return ForSpec()
	case store.KindPhase:
		return ForPhase()
	default:
		return NewStructureValidator()
	}
}

// ForPlan validates a plan.md artifact: Summary, Goals, Non-Goals, Proposed
// Solution, Specs, Risks sections, plus at least one "### Spec N: <name>"
// entry.
func ForPlan() *StructureValidator {
	v := NewStructureValidator().
		AddCheck(RequiredSection("Summary", "## Summary")).
		AddCheck(RequiredSection("Goals", "## Goals")).
		AddCheck(RequiredSection("Non-Goals", "## Non-Goals")).
		AddCheck(RequiredSection("Proposed Solution", "## Proposed Solution")).
		AddCheck(RequiredSection("Specs", "## Specs")).
		AddCheck(RequiredSection("Risks", "## Risks"))
	v.AddCustomCheck(func(content string) *store.FailureDetail {
		if strings.Contains(content, "### Spec") {
			return nil
		}
		return &store.FailureDetail{
			Category: store.CategoryStructure,
			Message:  "No specs defined (expected ### Spec N: <name>)",
		}
	})
	return v
}

// ForSpec validates a spec.md artifact: Overview, Requirements, Acceptance
// Criteria, Phases sections, plus at least one "### Phase N: <name>" entry.
func ForSpec() *StructureValidator {
	v := NewStructureValidator().
		AddCheck(RequiredSection("Overview", "## Overview")).
		AddCheck(RequiredSection("Requirements", "## Requirements")).
		AddCheck(RequiredSection("Acceptance Criteria", "## Acceptance Criteria")).
		AddCheck(RequiredSection("Phases", "## Phases"))
	v.AddCustomCheck(func(content string) *store.FailureDetail {
		if strings.Contains(content, "### Phase") {
			return nil
		}
		return &store.FailureDetail{
			Category: store.CategoryStructure,
			Message:  "No phases defined (expected ### Phase N: <name>)",
		}
	})
	return v
}

// ForPhase validates a phase.md artifact: Goal, Tasks, Acceptance Criteria.
func ForPhase() *StructureValidator {
	return NewStructureValidator().
		AddCheck(RequiredSection("Goal", "## Goal")).
		AddCheck(RequiredSection("Tasks", "## Tasks")).
		AddCheck(RequiredSection("Acceptance Criteria", "## Acceptance Criteria"))
}

// Validate runs every check against content and returns the accumulated
// failures (nil means pass).
func (v *StructureValidator) Validate(content string) []store.FailureDetail {
	var failures []store.FailureDetail

	for _, c := range v.checks {
		if f := c.check(content); f != nil {
			failures = append(failures, *f)
		}
	}
	for _, c := range v.customChecks {
		if f := c(content); f != nil {
			failures = append(failures, *f)
		}
	}
	for _, marker := range ambiguousMarkers {
		if strings.Contains(content, marker) {
			failures = append(failures, store.FailureDetail{
				Category: store.CategoryStructure,
				Message:  fmt.Sprintf("Contains ambiguous marker that should be resolved: %s", marker),
			})
		}
	}

	return failures
}

// Package scheduler selects which runnable records to admit next, scoring
// every candidate by a pure priority function and gating admission on
// concurrency caps and the rate-limit coordinator's backoff state.
package scheduler

import (
	"github.com/loopr-dev/loopr/internal/store"
)

// Base priorities by record kind. Higher runs first.
const (
	PriorityCode  = 100
	PriorityPhase = 80
	PrioritySpec  = 60
	PriorityPlan  = 40
)

// AgeBoostPerMinute and AgeBoostMax bound how much longer a record has
// waited can raise its priority.
const (
	AgeBoostPerMinute = 1
	AgeBoostMax       = 50
)

// DepthBoostPerLevel rewards finishing a branch already in progress over
// starting a fresh one.
const DepthBoostPerLevel = 10

// RetryPenaltyPerIteration and RetryPenaltyMax deprioritize records that
// have already burned several iterations without completing.
const (
	RetryPenaltyPerIteration = 5
	RetryPenaltyMax          = 30
)

// Config allows the base weights to be tuned away from the defaults
// above without touching the scoring logic itself.
type Config struct {
	Plan, Spec, Phase, Code    int
	AgeBoostPerMinute          int
	AgeBoostMax                int
	DepthBoostPerLevel         int
	RetryPenaltyPerIteration   int
	RetryPenaltyMax            int
}

// DefaultConfig returns the weights matching the constants above.
func DefaultConfig() Config {
	return Config{
		Plan:                     PriorityPlan,
		Spec:                     PrioritySpec,
		Phase:                    PriorityPhase,
		Code:                     PriorityCode,
		AgeBoostPerMinute:        AgeBoostPerMinute,
		AgeBoostMax:              AgeBoostMax,
		DepthBoostPerLevel:       DepthBoostPerLevel,
		RetryPenaltyPerIteration: RetryPenaltyPerIteration,
		RetryPenaltyMax:          RetryPenaltyMax,
	}
}

// basePriority returns the configured base score for kind.
func (c Config) basePriority(kind store.Kind) int {
	switch kind {
	case store.KindCode:
		return c.Code
	case store.KindPhase:
		return c.Phase
	case store.KindSpec:
		return c.Spec
	default:
		return c.Plan
	}
}

// Priority scores rec for scheduling purposes. Higher runs first. depth is
// the number of ancestors rec has, as reported by store.Store.Depth.
func (c Config) Priority(rec *store.Record, depth int) int {
	priority := c.basePriority(rec.Kind)

	ageMinutes := int((store.NowMillis() - rec.CreatedAt) / 60_000)
	ageBoost := ageMinutes * c.AgeBoostPerMinute
	if ageBoost > c.AgeBoostMax {
		ageBoost = c.AgeBoostMax
	}
	if ageBoost < 0 {
		ageBoost = 0
	}
	priority += ageBoost

	priority += depth * c.DepthBoostPerLevel

	retries := rec.Iteration - 1
	if retries < 0 {
		retries = 0
	}
	retryPenalty := retries * c.RetryPenaltyPerIteration
	if retryPenalty > c.RetryPenaltyMax {
		retryPenalty = c.RetryPenaltyMax
	}
	priority -= retryPenalty

	return priority
}

// Priority scores rec using the default weights.
func Priority(rec *store.Record, depth int) int {
	return DefaultConfig().Priority(rec, depth)
}

// ArtifactExists is satisfied by callers (typically the worktree/store
// layer) that can check whether a record's triggering artifact is present
// on disk.
type ArtifactExists func(rec *store.Record) bool

// IsRunnable reports whether rec is eligible to be scheduled: it must be
// in a startable status, its parent (if any) must be Complete, and its
// triggering artifact (if any) must exist.
func IsRunnable(rec *store.Record, parent *store.Record, hasParent bool, artifactExists ArtifactExists) bool {
	if !rec.Status.CanStart() {
		return false
	}
	if hasParent {
		if parent == nil || parent.Status != store.StatusComplete {
			return false
		}
	}
	if rec.Trigger != "" && artifactExists != nil {
		if !artifactExists(rec) {
			return false
		}
	}
	return true
}

// Package errs is the shared error taxonomy every package in this repo
// returns and wraps errors against. Sentinels cover conditions a caller
// identifies with errors.Is; the two typed structs carry data a caller
// needs beyond a message, following the teacher's
// internal/models.ErrModelUnavailable struct-plus-Unwrap idiom.
package errs

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput      = errors.New("loopr: invalid input")
	ErrSandboxViolation  = errors.New("loopr: sandbox violation")
	ErrToolTimeout       = errors.New("loopr: tool timed out")
	ErrTestTimeout       = errors.New("loopr: test run timed out")
	ErrRateLimited       = errors.New("loopr: rate limited")
	ErrAgentError        = errors.New("loopr: agent error")
	ErrWorktreeMissing   = errors.New("loopr: worktree missing")
	ErrWorktreeCorrupted = errors.New("loopr: worktree corrupted")
	ErrStoreError        = errors.New("loopr: store error")
	ErrDiskQuotaExceeded = errors.New("loopr: disk quota exceeded")
)

// RateLimitError carries the provider and computed retry deadline behind
// ErrRateLimited, mirroring the teacher's ErrModelUnavailable shape: a
// typed struct for callers that need the attached data, Is-compatible
// with the plain sentinel for callers that only check the class.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Cause      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("loopr: %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// AgentError wraps an underlying agent-call failure (model unavailable,
// malformed response, exhausted retries) with the record it happened to.
type AgentError struct {
	RecordID string
	Cause    error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("loopr: agent error on %s: %v", e.RecordID, e.Cause)
}

func (e *AgentError) Unwrap() error { return e.Cause }

func (e *AgentError) Is(target error) bool { return target == ErrAgentError }

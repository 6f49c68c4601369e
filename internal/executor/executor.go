// Package executor drives a single loop record from Pending/Paused to a
// terminal status: the prompt -> agent -> tools -> validate cycle spec.md
// §4.6 describes, generalized from the teacher's TaskRunner.Run
// single-phase/coordinator/plan-steps branches into one uniform loop.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loopr-dev/loopr/internal/errs"
	"github.com/loopr-dev/loopr/internal/llm"
	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/toolexec"
	"github.com/loopr-dev/loopr/internal/validation"
	"github.com/loopr-dev/loopr/internal/worktree"
)

// defaultMaxToolCallsPerIteration bounds a single iteration's inner ReAct
// loop so a misbehaving model can't spin forever without ever emitting an
// EndTurn or calling complete.
const defaultMaxToolCallsPerIteration = 20

// Config holds everything an Executor needs to drive records. One Config
// (and the Store/Manager/Bus/Coordinator it references) is shared across
// every concurrently running Executor in the process.
type Config struct {
	Store       *store.Store
	Worktrees   *worktree.Manager
	Tools       *toolexec.Executor
	ToolSpecs   []toolexec.Spec
	Signals     *signalbus.Bus
	Coordinator *ratelimit.Coordinator
	Agent       llm.Client
	Judge       *validation.Judge
	TestConfig  validation.TestRunnerConfig

	MaxToolCallsPerIteration int
}

// Executor drives one record's iteration loop at a time; callers run one
// per concurrently executing record, all sharing the same Config.
type Executor struct {
	cfg Config
}

// New returns an Executor built from cfg, applying defaults for any
// unset tuning fields.
func New(cfg Config) *Executor {
	if cfg.MaxToolCallsPerIteration <= 0 {
		cfg.MaxToolCallsPerIteration = defaultMaxToolCallsPerIteration
	}
	return &Executor{cfg: cfg}
}

// Run drives recordID to a terminal status and records the outcome in the
// store. It also returns an error when the record can't be loaded or
// written, when the worktree, an agent call or validation fails (the
// record is then marked Failed), and when the iteration budget runs out.
func (e *Executor) Run(ctx context.Context, recordID string) error {
	rec, err := e.cfg.Store.Get(recordID)
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	signals, closeSignals := e.cfg.Signals.Register(recordID)
	defer closeSignals()

	wt, err := e.ensureWorktree(ctx, rec)
	if err != nil {
		return e.fail(recordID, err)
	}

	pipeline := validation.NewPipeline(validation.LoopTypeValidation(rec.Kind, e.cfg.Judge, e.cfg.TestConfig))

	for rec.Iteration < rec.MaxIterations && !rec.Status.Terminal() {
		if sig, ok := pollSignal(signals); ok {
			if done, terr := e.handleSignal(recordID, sig, signals); done {
				return terr
			}
		}

		rec, err = e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.Iteration++
			r.Status = store.StatusRunning
			return nil
		})
		if err != nil {
			return fmt.Errorf("executor: %w", err)
		}

		response, completion, err := e.runIterationTurns(ctx, rec, wt, signals)
		if err != nil {
			if errors.Is(err, errSignalTerminated) {
				return nil
			}
			return e.fail(recordID, err)
		}

		artifact := e.resolveArtifact(wt, rec.Kind, completion, response)

		outcome, err := pipeline.Validate(ctx, artifact, wt.Path)
		if err != nil {
			return e.fail(recordID, fmt.Errorf("executor: validate: %w", err))
		}

		rec, err = e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.FeedbackHistory = append(r.FeedbackHistory, outcome.Entry)
			if outcome.Pass {
				r.Status = store.StatusComplete
				if path := e.artifactPath(r.Kind, completion); path != "" {
					r.OutputArtifacts = append(r.OutputArtifacts, path)
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("executor: %w", err)
		}

		commitMsg := fmt.Sprintf("iteration %d", rec.Iteration)
		if err := e.cfg.Worktrees.AutoCommit(ctx, wt, commitMsg); err != nil {
			slog.Warn("executor: auto-commit failed", "record", recordID, "error", err)
		}

		if outcome.Pass {
			return nil
		}

		if sig, ok := pollSignal(signals); ok {
			if done, terr := e.handleSignal(recordID, sig, signals); done {
				return terr
			}
		}
	}

	if rec.Status != store.StatusComplete {
		if _, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.Status = store.StatusFailed
			return nil
		}); err != nil {
			slog.Error("executor: mark failed", "record", recordID, "error", err)
		}
		return fmt.Errorf("executor: %s exhausted %d iterations", recordID, rec.MaxIterations)
	}

	return nil
}

// errSignalTerminated is an internal sentinel used to unwind the
// inner-turn loop when a Stop/Invalidate signal lands mid-iteration; it
// never escapes Run.
var errSignalTerminated = errors.New("executor: terminated by signal")

// pollSignal performs a non-blocking check for a pending signal.
func pollSignal(ch <-chan signalbus.Signal) (signalbus.Signal, bool) {
	select {
	case sig, ok := <-ch:
		return sig, ok
	default:
		return signalbus.Signal{}, false
	}
}

// handleSignal applies a Stop/Invalidate/Pause signal, blocking on Pause
// until Resume (or a later Stop/Invalidate) arrives. done reports whether
// Run should return now; terr is the error Run should propagate (nil for
// a clean stop).
func (e *Executor) handleSignal(recordID string, sig signalbus.Signal, ch <-chan signalbus.Signal) (done bool, terr error) {
	switch sig.Verb {
	case signalbus.Stop:
		_, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.Status = store.StatusFailed
			return nil
		})
		return true, err
	case signalbus.Invalidate:
		_, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.Status = store.StatusInvalidated
			return nil
		})
		return true, err
	case signalbus.Pause:
		if _, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
			r.Status = store.StatusPaused
			return nil
		}); err != nil {
			return true, err
		}
		for next := range ch {
			switch next.Verb {
			case signalbus.Resume:
				_, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
					r.Status = store.StatusRunning
					return nil
				})
				return false, err
			case signalbus.Stop, signalbus.Invalidate:
				return e.handleSignal(recordID, next, ch)
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

// ensureWorktree opens a record's existing worktree, or creates one when
// this is its first iteration, per spec.md §4.6's pseudocode.
func (e *Executor) ensureWorktree(ctx context.Context, rec *store.Record) (*worktree.Worktree, error) {
	if rec.Iteration == 0 {
		return e.cfg.Worktrees.Create(ctx, rec.ID)
	}
	wt, err := e.cfg.Worktrees.Open(rec.ID)
	if errors.Is(err, worktree.ErrMissing) {
		return e.cfg.Worktrees.Create(ctx, rec.ID)
	}
	return wt, err
}

// runIterationTurns drives the inner agent/tools ReAct loop for one
// iteration until the agent ends its turn (no tool_call block) or calls
// complete, returning the final response text and, if called, the
// completion payload.
func (e *Executor) runIterationTurns(ctx context.Context, rec *store.Record, wt *worktree.Worktree, signals <-chan signalbus.Signal) (string, *toolexec.CompletionPayload, error) {
	tc := toolexec.NewContext(rec.ID, wt)
	tr := newTranscript(buildTaskPrompt(rec))
	system := systemPromptFor(rec.Kind, e.cfg.ToolSpecs)

	var lastResponse string
	var completion *toolexec.CompletionPayload

	for i := 0; i < e.cfg.MaxToolCallsPerIteration; i++ {
		if sig, ok := pollSignal(signals); ok {
			if done, _ := e.handleSignal(rec.ID, sig, signals); done {
				return lastResponse, nil, errSignalTerminated
			}
		}

		response, err := e.callAgent(ctx, rec.ID, system, tr.render())
		if err != nil {
			return "", nil, fmt.Errorf("executor: agent call: %w", err)
		}
		lastResponse = response
		tr.appendAssistant(response)

		calls, ok := parseToolCalls(response)
		if !ok {
			break
		}

		var results string
		for _, call := range calls {
			result, err := e.cfg.Tools.Execute(ctx, tc, call)
			results += formatToolResult(call, result, err)
			if err == nil && call.Name == "complete" {
				var payload toolexec.CompletionPayload
				if jerr := json.Unmarshal([]byte(result.Output), &payload); jerr == nil {
					completion = &payload
				}
			}
		}
		tr.appendToolResults(results)

		if completion != nil {
			break
		}
	}

	return lastResponse, completion, nil
}

// callAgent invokes the configured agent client, consulting and updating
// the Rate-Limit Coordinator around the call per spec.md §4.7.
func (e *Executor) callAgent(ctx context.Context, recordID, system, user string) (string, error) {
	if !e.cfg.Coordinator.Allow() {
		remaining, _ := e.cfg.Coordinator.RemainingBackoff()
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	response, err := e.cfg.Agent.Complete(ctx, system, user)
	if err != nil {
		var rle *llm.RateLimitError
		if errors.As(err, &rle) {
			e.cfg.Coordinator.RecordRateLimit(rle.RetryAfter)
			return "", &errs.RateLimitError{Provider: rle.Provider, RetryAfter: rle.RetryAfter, Cause: err}
		}
		e.cfg.Coordinator.RecordTransportFailure()
		return "", &errs.AgentError{RecordID: recordID, Cause: err}
	}

	e.cfg.Coordinator.RecordSuccess()
	e.cfg.Coordinator.RecordTransportSuccess()
	return response, nil
}

// defaultArtifactPath is the conventional artifact file for kinds that
// produce one structured markdown document. Code records have no default:
// a Code iteration with no explicit artifact argument on its complete
// tool call falls back to the completion summary, then to the last
// response text itself.
func defaultArtifactPath(kind store.Kind) string {
	switch kind {
	case store.KindPlan:
		return "PLAN.md"
	case store.KindSpec:
		return "SPEC.md"
	case store.KindPhase:
		return "PHASE.md"
	default:
		return ""
	}
}

// artifactPath resolves the path (relative to the worktree root) this
// iteration's artifact lives at.
func (e *Executor) artifactPath(kind store.Kind, completion *toolexec.CompletionPayload) string {
	if completion != nil && completion.Artifact != "" {
		return completion.Artifact
	}
	return defaultArtifactPath(kind)
}

// resolveArtifact reads the resolved artifact path from wt, falling back
// to the completion summary or the agent's last response text when no
// file exists at that path yet.
func (e *Executor) resolveArtifact(wt *worktree.Worktree, kind store.Kind, completion *toolexec.CompletionPayload, lastResponse string) string {
	path := e.artifactPath(kind, completion)
	if path != "" {
		if data, err := os.ReadFile(filepath.Join(wt.Path, path)); err == nil {
			return string(data)
		}
	}
	if completion != nil && completion.Summary != "" {
		return completion.Summary
	}
	return lastResponse
}

func (e *Executor) fail(recordID string, cause error) error {
	if _, err := e.cfg.Store.Mutate(recordID, func(r *store.Record) error {
		r.Status = store.StatusFailed
		return nil
	}); err != nil {
		slog.Error("executor: mark failed after error", "record", recordID, "cause", cause, "error", err)
	}
	return cause
}

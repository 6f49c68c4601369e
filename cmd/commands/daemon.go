package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/loopr-dev/loopr/internal/config"
	"github.com/loopr-dev/loopr/internal/daemon"
	"github.com/loopr-dev/loopr/internal/events"
	"github.com/loopr-dev/loopr/internal/executor"
	"github.com/loopr-dev/loopr/internal/heartbeat"
	"github.com/loopr-dev/loopr/internal/llm"
	"github.com/loopr-dev/loopr/internal/manager"
	"github.com/loopr-dev/loopr/internal/metrics"
	"github.com/loopr-dev/loopr/internal/ratelimit"
	"github.com/loopr-dev/loopr/internal/recovery"
	"github.com/loopr-dev/loopr/internal/scheduler"
	"github.com/loopr-dev/loopr/internal/signalbus"
	"github.com/loopr-dev/loopr/internal/store"
	"github.com/loopr-dev/loopr/internal/toolexec"
	"github.com/loopr-dev/loopr/internal/validation"
	"github.com/loopr-dev/loopr/internal/worktree"
)

// eventBusBufferSize is the Event Bus's per-subscriber channel capacity;
// the daemon itself only ever has one subscriber (the IPC broadcaster).
const eventBusBufferSize = 256

// NewDaemonCommand returns the subcommand that runs the orchestrator
// process: it owns the Store, Scheduler, Rate-Limit Coordinator, and Loop
// Manager, and serves spec.md §6's IPC surface until its context is
// cancelled.
func NewDaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the Loopr orchestrator daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "repo",
				Usage:    "Path to the base git repository Loopr orchestrates work against",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Unix socket path for the IPC surface",
				Value: filepath.Join(config.LooprPath(), "loopr.sock"),
			},
			&cli.StringFlag{
				Name:  "http",
				Usage: "Loopback address for /metrics and /healthz",
				Value: "127.0.0.1:9090",
			},
		},
		Action: runDaemon,
	}
}

func runDaemon(_ context.Context, cmd *cli.Command) error {
	logLevel := slog.LevelInfo
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}

	global, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	kinds, err := config.LoadKinds(global.Loops.Paths)
	if err != nil {
		return fmt.Errorf("load kind definitions: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := store.Open(global.Storage.StoreDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	wm := worktree.NewManager(cmd.String("repo"), global.Git.WorktreeDir, true)

	coordinator := ratelimit.New(ratelimit.DefaultConfig())

	sched := scheduler.New(st, coordinator, scheduler.DefaultConfig(), schedulerLimits(global))

	signals := signalbus.New()
	mtr := metrics.New()
	bus := events.NewBus(eventBusBufferSize)
	defer bus.Close()

	toolRegistry, err := toolexec.Default()
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	toolsExec, err := toolexec.NewExecutor(toolRegistry)
	if err != nil {
		return fmt.Errorf("build tool executor: %w", err)
	}

	provider, err := defaultProvider(*global)
	if err != nil {
		return fmt.Errorf("resolve llm provider: %w", err)
	}
	agent, err := llm.New(provider)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}
	judge := validation.NewJudge(agent)

	maxIterFor := func(kind store.Kind) int {
		return config.Resolve(*global, kinds, string(kind), config.Overrides{}).MaxIterations
	}

	executors, err := buildExecutors(executorDeps{
		store:       st,
		worktrees:   wm,
		tools:       toolsExec,
		toolSpecs:   toolRegistry.Specs(),
		signals:     signals,
		coordinator: coordinator,
		agent:       agent,
		judge:       judge,
	}, *global, kinds)
	if err != nil {
		return fmt.Errorf("build executors: %w", err)
	}
	router := newKindRouter(st, executors)

	// Recovery runs to completion before the tick loop starts, per
	// spec.md §4.10: a Running record from an unclean shutdown must be
	// reconciled and reset before the Manager could otherwise admit a
	// conflicting retry of the same record.
	report, err := recovery.Recover(ctx, st, wm)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	slog.Info("recovery complete",
		"recovered", report.Recovered, "missing", report.Missing,
		"corrupted", report.Corrupted, "auto_commits", report.AutoCommits,
		"store_errors", report.StoreErrors)
	orphans, err := recovery.SweepOrphans(ctx, st, wm)
	if err != nil {
		slog.Warn("sweep orphans", "error", err)
	} else if orphans > 0 {
		slog.Info("swept orphan worktrees", "count", orphans)
	}

	mgr := manager.New(manager.Config{
		Store:            st,
		Scheduler:        sched,
		Worktrees:        wm,
		Signals:          signals,
		Coordinator:      coordinator,
		Executor:         router,
		Metrics:          mtr,
		DiskQuotaBytes:   global.Git.DiskQuotaGB << 30,
		MaxIterationsFor: maxIterFor,
	})

	handler := &daemon.Handler{
		Store:             st,
		Manager:           mgr,
		Bus:               bus,
		PlanMaxIterations: func() int { return maxIterFor(store.KindPlan) },
	}
	srv := daemon.NewServer(handler, bus, mtr, cmd.String("socket"), cmd.String("http"))

	hbPath := filepath.Join(config.LooprPath(), "heartbeat.json")
	hbWriter := heartbeat.NewWriter(hbPath)
	hbWriter.Start()
	defer hbWriter.Stop()

	group := make(chan error, 2)
	go func() { group <- mgr.Run(ctx) }()
	go func() { group <- srv.Run(ctx) }()

	slog.Info("loopr daemon started", "socket", cmd.String("socket"), "http", cmd.String("http"))

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-group:
		if err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
	}
	return nil
}

// schedulerLimits translates Global.Concurrency into scheduler.Limits.
func schedulerLimits(global *config.Global) scheduler.Limits {
	limits := scheduler.Limits{MaxConcurrent: global.Concurrency.MaxRunning}
	if len(global.Concurrency.PerKindMaxCaps) == 0 {
		return limits
	}
	limits.MaxPerKind = make(map[store.Kind]int, len(global.Concurrency.PerKindMaxCaps))
	for k, v := range global.Concurrency.PerKindMaxCaps {
		limits.MaxPerKind[store.Kind(k)] = v
	}
	return limits
}

// defaultProvider picks global.LLM.Providers["anthropic"] if configured,
// otherwise any one configured provider (map iteration order), and
// returns an error if the document configured none at all.
func defaultProvider(global config.Global) (cfg config.ProviderConfig, err error) {
	if p, ok := global.LLM.Providers["anthropic"]; ok {
		return p, nil
	}
	for _, p := range global.LLM.Providers {
		return p, nil
	}
	return config.ProviderConfig{}, fmt.Errorf("no llm provider configured")
}

type executorDeps struct {
	store       *store.Store
	worktrees   *worktree.Manager
	tools       *toolexec.Executor
	toolSpecs   []toolexec.Spec
	signals     *signalbus.Bus
	coordinator *ratelimit.Coordinator
	agent       llm.Client
	judge       *validation.Judge
}

// buildExecutors constructs one Executor per unit kind, each with its own
// config.Resolve-derived validation command, iteration timeout, and
// tool-call-per-iteration budget, so a project's per-kind Definition
// overrides (e.g. a stricter "code" test command than "plan") actually
// take effect rather than sharing one process-wide Executor.Config.
func buildExecutors(deps executorDeps, global config.Global, kinds map[string]config.Definition) (map[store.Kind]*executor.Executor, error) {
	allKinds := []store.Kind{store.KindPlan, store.KindSpec, store.KindPhase, store.KindCode}
	out := make(map[store.Kind]*executor.Executor, len(allKinds))
	for _, kind := range allKinds {
		eff := config.Resolve(global, kinds, string(kind), config.Overrides{})
		out[kind] = executor.New(executor.Config{
			Store:       deps.store,
			Worktrees:   deps.worktrees,
			Tools:       deps.tools,
			ToolSpecs:   toolSpecsFor(deps.toolSpecs, eff.Tools),
			Signals:     deps.signals,
			Coordinator: deps.coordinator,
			Agent:       deps.agent,
			Judge:       deps.judge,
			TestConfig: validation.TestRunnerConfig{
				Command:         eff.ValidationCommand,
				SuccessExitCode: eff.SuccessExitCode,
				Timeout:         eff.IterationTimeout,
				ParseFailures:   true,
			},
			MaxToolCallsPerIteration: eff.MaxTurnsPerIter,
		})
	}
	return out, nil
}

// toolSpecsFor filters specs down to allow, preserving spec order, when
// allow is non-empty; an empty allow list means every registered tool is
// available, matching Effective.Tools's unset-means-all semantics.
func toolSpecsFor(specs []toolexec.Spec, allow []string) []toolexec.Spec {
	if len(allow) == 0 {
		return specs
	}
	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[strings.TrimSpace(name)] = true
	}
	filtered := make([]toolexec.Spec, 0, len(specs))
	for _, s := range specs {
		if allowed[s.Name] {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

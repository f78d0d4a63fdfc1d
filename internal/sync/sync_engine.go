package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/syftlink/internal/storage"
	"golang.org/x/sync/errgroup"
)

type RunState string

const (
	StateLoadLedger       RunState = "LoadLedger"
	StateSnapshotBoth     RunState = "SnapshotBoth"
	StateReconcile        RunState = "Reconcile"
	StateResolveConflicts RunState = "ResolveConflicts"
	StateExecute          RunState = "Execute"
	StateUpdateLedger     RunState = "UpdateLedger"
	StateDone             RunState = "Done"
	StateFailed           RunState = "Failed"
)

// Options configures an Engine. Zero values pick the defaults.
type Options struct {
	ThreadCount int
	BatchSize   int
	// DryRun stops after conflicts are resolved. Nothing is executed or saved.
	DryRun   bool
	Resolver ConflictResolver
	Progress ProgressSink
	Ignore   *IgnoreList
	Now      func() time.Time

	// BeforeExecute, if set, sees the resolved plan right before execution.
	BeforeExecute func(plan []Action)
}

// Result describes one run. ExecErr is the aggregated execution failure, if
// any, and is also returned by Run.
type Result struct {
	RunID   string
	Plan    []Action
	Counts  map[ActionKind]int
	ExecErr error
	Ledger  Ledger
}

// Engine runs one link: load ledger, snapshot both sides, reconcile, resolve
// conflicts, execute and persist the next ledger.
type Engine struct {
	provider   Provider
	ledgerPath string
	opts       Options
}

func NewEngine(provider Provider, ledgerPath string, opts Options) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrConfig)
	}
	if ledgerPath == "" {
		return nil, fmt.Errorf("%w: ledger path is required", ErrConfig)
	}
	if opts.ThreadCount == 0 {
		opts.ThreadCount = DefaultThreadCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	exec := ExecOptions{ThreadCount: opts.ThreadCount, BatchSize: opts.BatchSize}
	if err := exec.validate(); err != nil {
		return nil, err
	}

	return &Engine{provider: provider, ledgerPath: ledgerPath, opts: opts}, nil
}

// Run performs a single sync. Fatal errors abort before anything is persisted.
// A failed execution still updates the ledger for the units that succeeded and
// is returned together with the result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := slog.With("run", res.RunID)

	state := StateLoadLedger
	fail := func(err error) (*Result, error) {
		logger.Error("sync aborted", "state", state, "error", err)
		return res, err
	}
	enter := func(s RunState) {
		state = s
		logger.Debug("sync state", "state", s)
	}

	enter(StateLoadLedger)
	ledger, err := LoadLedger(e.ledgerPath)
	if err != nil {
		return fail(err)
	}
	res.Ledger = ledger

	enter(StateSnapshotBoth)
	local, remote, err := e.snapshotBoth(ctx)
	if err != nil {
		return fail(err)
	}

	enter(StateReconcile)
	ignore := e.opts.Ignore
	actions, err := Reconcile(local.Without(ignore), remote.Without(ignore), ledger.Without(ignore))
	if err != nil {
		return fail(err)
	}

	enter(StateResolveConflicts)
	plan, err := ResolveConflicts(ctx, actions, e.opts.Resolver)
	if err != nil {
		return fail(err)
	}
	res.Plan = plan
	res.Counts = CountByKind(plan)
	logger.Info("sync plan", planAttrs(res.Counts)...)

	if e.opts.DryRun {
		enter(StateDone)
		return res, nil
	}

	enter(StateExecute)
	if e.opts.BeforeExecute != nil {
		e.opts.BeforeExecute(plan)
	}
	execErr := Execute(ctx, e.provider, plan, ExecOptions{
		ThreadCount: e.opts.ThreadCount,
		BatchSize:   e.opts.BatchSize,
		Progress:    e.opts.Progress,
	})
	var aggregated *ExecutionError
	if execErr != nil && !errors.As(execErr, &aggregated) {
		return fail(execErr)
	}
	res.ExecErr = execErr

	enter(StateUpdateLedger)
	next, err := ledger.Next(succeeded(plan, aggregated), e.opts.Now())
	if err != nil {
		return fail(err)
	}
	if err := SaveLedger(e.ledgerPath, next); err != nil {
		return fail(err)
	}
	res.Ledger = next

	enter(StateDone)
	if execErr != nil {
		logger.Warn("sync finished with errors", "failedUnits", len(aggregated.Failures))
		return res, execErr
	}
	logger.Info("sync finished", "entries", len(next))
	return res, nil
}

func (e *Engine) snapshotBoth(ctx context.Context) (Snapshot, Snapshot, error) {
	var local, remote Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := e.provider.List(gctx, storage.SideLocal)
		if err != nil {
			return fmt.Errorf("%w: local: %w", ErrSnapshot, err)
		}
		local = NewSnapshot(entries)
		return nil
	})
	g.Go(func() error {
		entries, err := e.provider.List(gctx, storage.SideRemote)
		if err != nil {
			return fmt.Errorf("%w: remote: %w", ErrSnapshot, err)
		}
		remote = NewSnapshot(entries)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

// succeeded turns actions of failed units into Nothing so their baseline is
// kept and the next run retries them.
func succeeded(plan []Action, failed *ExecutionError) []Action {
	if failed == nil {
		return plan
	}
	failedPaths := failed.FailedPaths()

	out := make([]Action, len(plan))
	for i, a := range plan {
		if _, ok := failedPaths[a.Path]; ok {
			a = a.withKind(ActionNothing)
		}
		out[i] = a
	}
	return out
}

func planAttrs(counts map[ActionKind]int) []any {
	attrs := make([]any, 0, 12)
	for _, kind := range []ActionKind{
		ActionCopyLocalToRemote, ActionCopyRemoteToLocal, ActionDeleteLocal,
		ActionDeleteRemote, ActionNothing, ActionForget,
	} {
		if n := counts[kind]; n > 0 {
			attrs = append(attrs, string(kind), n)
		}
	}
	return attrs
}

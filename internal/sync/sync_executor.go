package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/openmined/syftlink/internal/storage"
	"github.com/sourcegraph/conc/pool"
)

const DefaultThreadCount = 4

// Provider is the storage backend of a link. Copy and Delete are all or nothing
// from the caller's point of view.
type Provider interface {
	List(ctx context.Context, side storage.Side) ([]storage.FileEntry, error)
	Copy(ctx context.Context, from, to storage.Side, paths []string) error
	Delete(ctx context.Context, side storage.Side, paths []string) error
}

// WorkUnit is a batch of same-kind paths dispatched in one provider call.
type WorkUnit struct {
	Kind  ActionKind
	Paths []string
}

// ExecOptions tunes Execute. ThreadCount must be at least 1, BatchSize 0 puts
// every path of a kind into one unit.
type ExecOptions struct {
	ThreadCount int
	BatchSize   int
	Progress    ProgressSink
}

func (o ExecOptions) validate() error {
	if o.ThreadCount < 1 {
		return fmt.Errorf("%w: thread count must be at least 1, got %d", ErrConfig, o.ThreadCount)
	}
	if o.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative, got %d", ErrConfig, o.BatchSize)
	}
	return nil
}

// BuildWorkUnits groups actions by kind and splits each group into chunks of
// at most batchSize paths. Nothing and Forget produce no units.
func BuildWorkUnits(actions []Action, batchSize int) []WorkUnit {
	byKind := make(map[ActionKind][]string)
	for _, a := range actions {
		if !a.Kind.dispatches() {
			continue
		}
		byKind[a.Kind] = append(byKind[a.Kind], a.Path)
	}

	var units []WorkUnit
	for _, kind := range dispatchOrder {
		paths := byKind[kind]
		if len(paths) == 0 {
			continue
		}
		if batchSize <= 0 {
			units = append(units, WorkUnit{Kind: kind, Paths: paths})
			continue
		}
		for start := 0; start < len(paths); start += batchSize {
			end := min(start+batchSize, len(paths))
			units = append(units, WorkUnit{Kind: kind, Paths: paths[start:end:end]})
		}
	}
	return units
}

// Execute runs every dispatching action through provider on a pool of
// ThreadCount workers. All units run to completion; failures are collected
// into an *ExecutionError.
func Execute(ctx context.Context, provider Provider, actions []Action, opts ExecOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	for _, a := range actions {
		if !a.Kind.IsConcrete() {
			return &InvariantViolation{Path: a.Path, Reason: fmt.Sprintf("executor received %s", a)}
		}
	}

	sink := opts.Progress
	if sink == nil {
		sink = nopSink{}
	}

	units := BuildWorkUnits(actions, opts.BatchSize)
	slog.Debug("execute", "units", len(units), "threads", opts.ThreadCount, "batchSize", opts.BatchSize)

	var (
		mu       gosync.Mutex
		failures []UnitFailure
	)

	p := pool.New().WithMaxGoroutines(opts.ThreadCount)
	for _, unit := range units {
		p.Go(func() {
			err := runUnit(ctx, provider, unit, sink)
			if err == nil {
				return
			}
			slog.Warn("work unit failed", "kind", unit.Kind, "paths", len(unit.Paths), "error", err)
			mu.Lock()
			failures = append(failures, UnitFailure{Kind: unit.Kind, Paths: unit.Paths, Err: err})
			mu.Unlock()
		})
	}
	p.Wait()

	if len(failures) > 0 {
		return &ExecutionError{Failures: failures}
	}
	return nil
}

func runUnit(ctx context.Context, provider Provider, unit WorkUnit, sink ProgressSink) error {
	for _, path := range unit.Paths {
		sink.Emit(ProgressEvent{Phase: PhaseStart, Path: path, Kind: unit.Kind})
	}

	err := dispatch(ctx, provider, unit)

	for _, path := range unit.Paths {
		sink.Emit(ProgressEvent{Phase: PhaseFinish, Path: path, Kind: unit.Kind, Err: err})
	}
	return err
}

func dispatch(ctx context.Context, provider Provider, unit WorkUnit) error {
	switch unit.Kind {
	case ActionCopyLocalToRemote:
		return provider.Copy(ctx, storage.SideLocal, storage.SideRemote, unit.Paths)
	case ActionCopyRemoteToLocal:
		return provider.Copy(ctx, storage.SideRemote, storage.SideLocal, unit.Paths)
	case ActionDeleteLocal:
		return provider.Delete(ctx, storage.SideLocal, unit.Paths)
	case ActionDeleteRemote:
		return provider.Delete(ctx, storage.SideRemote, unit.Paths)
	}
	return fmt.Errorf("no dispatch for %s", unit.Kind)
}

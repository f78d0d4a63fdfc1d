package sync

import (
	"context"
	"fmt"
	"log/slog"
)

// Disposition is the side whose version survives a conflict.
type Disposition string

const (
	KeepLocal  Disposition = "local"
	KeepRemote Disposition = "remote"
)

// ParseDisposition accepts "local" or "remote".
func ParseDisposition(s string) (Disposition, error) {
	switch Disposition(s) {
	case KeepLocal, KeepRemote:
		return Disposition(s), nil
	}
	return "", fmt.Errorf("%w: unknown disposition %q", ErrConfig, s)
}

// ConflictResolver decides conflicts. Resolve is called once per conflicting
// action, sequentially, so implementations may prompt a user.
type ConflictResolver interface {
	Resolve(ctx context.Context, action Action) (Disposition, error)
}

// ResolverFunc adapts a function to ConflictResolver.
type ResolverFunc func(ctx context.Context, action Action) (Disposition, error)

func (f ResolverFunc) Resolve(ctx context.Context, action Action) (Disposition, error) {
	return f(ctx, action)
}

// FixedResolver always answers with the same disposition.
type FixedResolver Disposition

func (r FixedResolver) Resolve(context.Context, Action) (Disposition, error) {
	return Disposition(r), nil
}

// NewerResolver keeps the side with the newer modification time. When one side
// deleted the file, the side that modified it wins. Ties keep local.
type NewerResolver struct{}

func (NewerResolver) Resolve(_ context.Context, a Action) (Disposition, error) {
	switch {
	case a.Local == nil:
		return KeepRemote, nil
	case a.Remote == nil:
		return KeepLocal, nil
	case a.Remote.After(*a.Local):
		return KeepRemote, nil
	}
	return KeepLocal, nil
}

// ConflictResolution maps a conflict and a disposition to the concrete action
// that makes both sides converge.
func ConflictResolution(kind ConflictKind, disposition Disposition) (ActionKind, error) {
	switch disposition {
	case KeepLocal:
		switch kind {
		case ConflictBothCreated, ConflictBothModified, ConflictLocalModifiedRemoteDeleted:
			return ActionCopyLocalToRemote, nil
		case ConflictLocalDeletedRemoteModified:
			return ActionDeleteRemote, nil
		}
	case KeepRemote:
		switch kind {
		case ConflictBothCreated, ConflictBothModified, ConflictLocalDeletedRemoteModified:
			return ActionCopyRemoteToLocal, nil
		case ConflictLocalModifiedRemoteDeleted:
			return ActionDeleteLocal, nil
		}
	default:
		return "", fmt.Errorf("unknown disposition %q", disposition)
	}
	return "", fmt.Errorf("unknown conflict kind %q", kind)
}

// ResolveConflicts rewrites every conflict in actions using resolver. The input
// is left untouched. A nil resolver with pending conflicts, or any resolver
// error, fails the whole call.
func ResolveConflicts(ctx context.Context, actions []Action, resolver ConflictResolver) ([]Action, error) {
	resolved := make([]Action, len(actions))
	copy(resolved, actions)

	for i, a := range resolved {
		if !a.IsConflict() {
			continue
		}
		if resolver == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedConflict, a)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		disposition, err := resolver.Resolve(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", a.Path, err)
		}

		kind, err := ConflictResolution(a.Conflict, disposition)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnresolvedConflict, a.Path, err)
		}

		slog.Info("conflict resolved", "path", a.Path, "conflict", a.Conflict, "keep", disposition, "kind", kind)
		resolved[i] = a.withKind(kind)
	}

	return resolved, nil
}

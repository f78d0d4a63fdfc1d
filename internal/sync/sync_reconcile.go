package sync

import (
	"log/slog"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syftlink/internal/storage"
)

// Snapshot maps the relative path of every regular file on one side to its
// modification time.
type Snapshot map[string]time.Time

// NewSnapshot builds a snapshot from a listing, dropping directories.
func NewSnapshot(entries []storage.FileEntry) Snapshot {
	snap := make(Snapshot, len(entries))
	for _, e := range entries {
		if e.IsDirectory {
			continue
		}
		snap[e.Path] = e.ModTime
	}
	return snap
}

// Without returns a copy of the snapshot minus ignored paths.
func (s Snapshot) Without(ignore *IgnoreList) Snapshot {
	out := make(Snapshot, len(s))
	for p, t := range s {
		if ignore.ShouldIgnore(p) {
			continue
		}
		out[p] = t
	}
	return out
}

// Reconcile classifies every path seen in either snapshot or the ledger. The
// result has exactly one action per path, sorted by path.
func Reconcile(local, remote Snapshot, ledger Ledger) ([]Action, error) {
	union := mapset.NewThreadUnsafeSetWithSize[string](len(local) + len(remote) + len(ledger))
	for p := range local {
		union.Add(p)
	}
	for p := range remote {
		union.Add(p)
	}
	for p := range ledger {
		union.Add(p)
	}

	paths := union.ToSlice()
	sort.Strings(paths)

	actions := make([]Action, 0, len(paths))
	for _, path := range paths {
		action := Action{
			Path:     path,
			Local:    lookup(local, path),
			Remote:   lookup(remote, path),
			Baseline: lookup(ledger, path),
		}

		kind, conflict, err := classify(path, action.Local, action.Remote, action.Baseline)
		if err != nil {
			return nil, err
		}
		action.Kind = kind
		action.Conflict = conflict

		slog.Debug("reconcile", "path", path, "kind", kind, "conflict", conflict)
		actions = append(actions, action)
	}

	return actions, nil
}

func lookup[M ~map[string]time.Time](m M, path string) *time.Time {
	t, ok := m[path]
	if !ok {
		return nil
	}
	return &t
}

// classify applies the decision table. A side is "changed" when its mtime is
// strictly after the baseline.
func classify(path string, l, r, b *time.Time) (ActionKind, ConflictKind, error) {
	if b == nil {
		switch {
		case l != nil && r != nil:
			return ActionConflict, ConflictBothCreated, nil
		case l != nil:
			return ActionCopyLocalToRemote, ConflictNone, nil
		case r != nil:
			return ActionCopyRemoteToLocal, ConflictNone, nil
		default:
			return "", ConflictNone, &InvariantViolation{Path: path, Reason: "path absent from both sides and the ledger"}
		}
	}

	switch {
	case l == nil && r == nil:
		return ActionForget, ConflictNone, nil
	case l == nil:
		if r.After(*b) {
			return ActionConflict, ConflictLocalDeletedRemoteModified, nil
		}
		return ActionDeleteRemote, ConflictNone, nil
	case r == nil:
		if l.After(*b) {
			return ActionConflict, ConflictLocalModifiedRemoteDeleted, nil
		}
		return ActionDeleteLocal, ConflictNone, nil
	}

	localChanged, remoteChanged := l.After(*b), r.After(*b)
	switch {
	case localChanged && remoteChanged:
		return ActionConflict, ConflictBothModified, nil
	case localChanged:
		return ActionCopyLocalToRemote, ConflictNone, nil
	case remoteChanged:
		return ActionCopyRemoteToLocal, ConflictNone, nil
	}
	return ActionNothing, ConflictNone, nil
}

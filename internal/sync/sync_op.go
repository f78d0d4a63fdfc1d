package sync

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionNothing           ActionKind = "Nothing"
	ActionCopyLocalToRemote ActionKind = "CopyLocalToRemote"
	ActionCopyRemoteToLocal ActionKind = "CopyRemoteToLocal"
	ActionDeleteLocal       ActionKind = "DeleteLocal"
	ActionDeleteRemote      ActionKind = "DeleteRemote"
	ActionConflict          ActionKind = "Conflict"
	// ActionForget drops a ledger entry whose file is gone from both sides.
	ActionForget ActionKind = "Forget"
)

// dispatchOrder is the order in which work units are built. It only affects
// how units are queued, never correctness.
var dispatchOrder = []ActionKind{
	ActionCopyLocalToRemote,
	ActionCopyRemoteToLocal,
	ActionDeleteLocal,
	ActionDeleteRemote,
}

// IsConcrete reports whether the kind can be handed to the executor.
func (k ActionKind) IsConcrete() bool {
	switch k {
	case ActionNothing, ActionForget, ActionCopyLocalToRemote, ActionCopyRemoteToLocal,
		ActionDeleteLocal, ActionDeleteRemote:
		return true
	}
	return false
}

// dispatches reports whether the kind results in a provider call.
func (k ActionKind) dispatches() bool {
	return k != ActionNothing && k != ActionForget && k.IsConcrete()
}

type ConflictKind string

const (
	ConflictNone                       ConflictKind = ""
	ConflictBothCreated                ConflictKind = "BothCreated"
	ConflictBothModified               ConflictKind = "BothModified"
	ConflictLocalDeletedRemoteModified ConflictKind = "LocalDeletedRemoteModified"
	ConflictLocalModifiedRemoteDeleted ConflictKind = "LocalModifiedRemoteDeleted"
)

// Action is the decision for one path. Local, Remote and Baseline are the
// timestamps the decision was made from, nil when absent.
type Action struct {
	Path     string       `yaml:"path"`
	Kind     ActionKind   `yaml:"kind"`
	Conflict ConflictKind `yaml:"conflict,omitempty"`
	Local    *time.Time   `yaml:"local,omitempty"`
	Remote   *time.Time   `yaml:"remote,omitempty"`
	Baseline *time.Time   `yaml:"baseline,omitempty"`
}

func (a Action) IsConflict() bool {
	return a.Kind == ActionConflict
}

func (a Action) String() string {
	if a.IsConflict() {
		return fmt.Sprintf("%s(%s) %s", a.Kind, a.Conflict, a.Path)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Path)
}

// withKind returns a copy of a rewritten to a concrete kind.
func (a Action) withKind(kind ActionKind) Action {
	a.Kind = kind
	a.Conflict = ConflictNone
	return a
}

// CountByKind tallies actions per kind.
func CountByKind(actions []Action) map[ActionKind]int {
	counts := make(map[ActionKind]int)
	for _, a := range actions {
		counts[a.Kind]++
	}
	return counts
}

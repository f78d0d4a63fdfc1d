package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/openmined/syftlink/internal/sync"
)

// promptResolver asks the user about each conflict.
func promptResolver() sync.ConflictResolver {
	return sync.ResolverFunc(func(ctx context.Context, a sync.Action) (sync.Disposition, error) {
		var choice sync.Disposition
		err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[sync.Disposition]().
				Title(fmt.Sprintf("Conflict: %s", a.Path)).
				Description(describeConflict(a)).
				Options(
					huh.NewOption("Keep local", sync.KeepLocal),
					huh.NewOption("Keep remote", sync.KeepRemote),
				).
				Value(&choice),
		)).RunWithContext(ctx)
		if err != nil {
			return "", err
		}
		return choice, nil
	})
}

func describeConflict(a sync.Action) string {
	switch a.Conflict {
	case sync.ConflictBothCreated:
		return fmt.Sprintf("created on both sides (local %s, remote %s)", stamp(a.Local), stamp(a.Remote))
	case sync.ConflictBothModified:
		return fmt.Sprintf("modified on both sides (local %s, remote %s)", stamp(a.Local), stamp(a.Remote))
	case sync.ConflictLocalDeletedRemoteModified:
		return fmt.Sprintf("deleted locally, modified remotely at %s", stamp(a.Remote))
	case sync.ConflictLocalModifiedRemoteDeleted:
		return fmt.Sprintf("modified locally at %s, deleted remotely", stamp(a.Local))
	}
	return string(a.Conflict)
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

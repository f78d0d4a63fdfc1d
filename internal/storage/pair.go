package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Pair is the storage provider of a link: listing, copying and deleting across
// its local and remote stores.
type Pair struct {
	Local  Store
	Remote Store
}

func NewPair(local, remote Store) *Pair {
	return &Pair{Local: local, Remote: remote}
}

func (p *Pair) store(side Side) (Store, error) {
	switch side {
	case SideLocal:
		return p.Local, nil
	case SideRemote:
		return p.Remote, nil
	}
	return nil, fmt.Errorf("unknown side %v", side)
}

func (p *Pair) List(ctx context.Context, side Side) ([]FileEntry, error) {
	store, err := p.store(side)
	if err != nil {
		return nil, err
	}
	return store.List(ctx)
}

// Copy transfers every path from one side to the other, keeping modification
// times. All paths are staged on the destination before any is published, so a
// failure while reading or writing leaves the destination untouched.
func (p *Pair) Copy(ctx context.Context, from, to Side, paths []string) error {
	if from == to {
		return fmt.Errorf("copy from %v to itself", from)
	}

	src, err := p.store(from)
	if err != nil {
		return err
	}
	dst, err := p.store(to)
	if err != nil {
		return err
	}

	staged := make([]Staged, 0, len(paths))
	for _, path := range paths {
		st, err := stageOne(ctx, src, dst, path)
		if err != nil {
			discardAll(ctx, staged)
			return err
		}
		staged = append(staged, st)
	}

	// commits are renames or server side copies
	for i, st := range staged {
		if err := st.Commit(ctx); err != nil {
			discardAll(ctx, staged[i+1:])
			return err
		}
		slog.Debug("storage copy", "from", from, "to", to, "path", paths[i])
	}
	return nil
}

func stageOne(ctx context.Context, src, dst Store, path string) (Staged, error) {
	body, entry, err := src.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return dst.Stage(ctx, path, body, entry.Size, entry.ModTime)
}

func discardAll(ctx context.Context, staged []Staged) {
	ctx = context.WithoutCancel(ctx)
	for _, st := range staged {
		if err := st.Discard(ctx); err != nil {
			slog.Warn("storage discard", "error", err)
		}
	}
}

func (p *Pair) Delete(ctx context.Context, side Side, paths []string) error {
	store, err := p.store(side)
	if err != nil {
		return err
	}

	if br, ok := store.(BatchRemover); ok {
		return br.RemoveAll(ctx, paths)
	}

	for _, path := range paths {
		if err := store.Remove(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

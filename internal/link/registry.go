package link

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/openmined/syftlink/internal/storage"
	"github.com/openmined/syftlink/internal/sync"
	"github.com/openmined/syftlink/internal/utils"
)

const linksDir = "links"

// Registry keeps one directory per link below <config-root>/links.
type Registry struct {
	root string
}

func NewRegistry(configRoot string) (*Registry, error) {
	root, err := utils.ResolvePath(configRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: config root: %w", sync.ErrConfig, err)
	}
	return &Registry{root: filepath.Join(root, linksDir)}, nil
}

func (r *Registry) Root() string {
	return r.root
}

func (r *Registry) dir(name string) string {
	return filepath.Join(r.root, name)
}

// Create registers a new link and writes its empty ledger. local must be an
// existing directory; a local remote directory is created when missing.
func (r *Registry) Create(name, local, remote string, now time.Time) (*Link, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w %q", ErrInvalidName, name)
	}

	dir := r.dir(name)
	if utils.FileExists(filepath.Join(dir, linkFile)) {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}

	localDir, err := utils.ResolveExistingDir(local)
	if err != nil {
		return nil, fmt.Errorf("%w: local directory: %w", sync.ErrConfig, err)
	}

	if !storage.IsS3Location(remote) {
		resolved, err := utils.ResolvePath(remote)
		if err != nil {
			return nil, fmt.Errorf("%w: remote directory: %w", sync.ErrConfig, err)
		}
		remote = resolved
	}

	l := &Link{Name: name, Local: localDir, Remote: remote, CreatedAt: now.UTC(), dir: dir}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	if !storage.IsS3Location(remote) {
		if err := utils.EnsureDir(remote); err != nil {
			return nil, fmt.Errorf("create remote directory: %w", err)
		}
	}

	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create link directory: %w", err)
	}
	if err := l.save(); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("write link: %w", err)
	}
	if err := sync.SaveLedger(l.LedgerPath(), sync.Ledger{}); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	slog.Info("link created", "name", name, "local", l.Local, "remote", l.Remote)
	return l, nil
}

func (r *Registry) Load(name string) (*Link, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	l, err := loadLink(r.dir(name))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return l, err
}

// List returns every readable link sorted by name. Broken entries are logged
// and skipped.
func (r *Registry) List() ([]*Link, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var links []*Link
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		l, err := loadLink(r.dir(entry.Name()))
		if err != nil {
			slog.Warn("skipping link", "dir", entry.Name(), "error", err)
			continue
		}
		links = append(links, l)
	}

	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	return links, nil
}

// Delete removes the link definition and ledger. With clean, the local
// directory tree goes too.
func (r *Registry) Delete(name string, clean bool) (*Link, error) {
	l, err := r.Load(name)
	if err != nil {
		return nil, err
	}

	// held until the directory is gone, a sync starting later fails to lock
	unlock, err := l.Lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := os.RemoveAll(l.dir); err != nil {
		return nil, fmt.Errorf("remove link directory: %w", err)
	}

	if clean {
		if err := os.RemoveAll(l.Local); err != nil {
			return l, fmt.Errorf("remove local directory: %w", err)
		}
		slog.Info("local directory removed", "path", l.Local)
	}

	slog.Info("link deleted", "name", name)
	return l, nil
}

// ResolveDir finds the single link whose local directory contains dir.
func (r *Registry) ResolveDir(dir string) (*Link, error) {
	resolved, err := utils.ResolveExistingDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sync.ErrConfig, err)
	}

	links, err := r.List()
	if err != nil {
		return nil, err
	}

	var matches []*Link
	for _, l := range links {
		if utils.IsSubpath(l.Local, resolved) {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no link contains %s", ErrNotFound, resolved)
	case 1:
		return matches[0], nil
	}

	names := make([]string, 0, len(matches))
	for _, l := range matches {
		names = append(names, l.Name)
	}
	return nil, fmt.Errorf("%w: %s is inside several links %v, name one explicitly", sync.ErrConfig, resolved, names)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// tmpPrefix marks partially written files. The default ignore rules hide them.
const tmpPrefix = ".syftlink.tmp."

// LocalStore keeps files in a directory of an afero filesystem.
type LocalStore struct {
	fs   afero.Fs
	root string
}

func NewLocalStore(fs afero.Fs, root string) *LocalStore {
	return &LocalStore{fs: fs, root: filepath.Clean(root)}
}

// NewOsStore is a LocalStore over the operating system filesystem.
func NewOsStore(root string) *LocalStore {
	return NewLocalStore(afero.NewOsFs(), root)
}

func (s *LocalStore) Location() string {
	return s.root
}

func (s *LocalStore) full(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("invalid path %q", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

func (s *LocalStore) List(ctx context.Context) ([]FileEntry, error) {
	var entries []FileEntry

	err := afero.Walk(s.fs, s.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		if !info.IsDir() && isTempName(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path:        filepath.ToSlash(rel),
			IsDirectory: info.IsDir(),
			ModTime:     info.ModTime(),
			Size:        info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, &ProviderError{Op: "list", Location: s.root, Err: err}
	}

	return entries, nil
}

func (s *LocalStore) Open(ctx context.Context, rel string) (io.ReadCloser, FileEntry, error) {
	full, err := s.full(rel)
	if err != nil {
		return nil, FileEntry{}, &ProviderError{Op: "open", Location: s.root, Path: rel, Err: err}
	}

	f, err := s.fs.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = ErrNotExist
		}
		return nil, FileEntry{}, &ProviderError{Op: "open", Location: s.root, Path: rel, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileEntry{}, &ProviderError{Op: "open", Location: s.root, Path: rel, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, FileEntry{}, &ProviderError{Op: "open", Location: s.root, Path: rel, Err: errors.New("is a directory")}
	}

	return f, FileEntry{Path: rel, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// Put writes into a temporary sibling and renames it over the target, so a
// failed write never leaves a truncated file behind.
func (s *LocalStore) Put(ctx context.Context, rel string, r io.Reader, size int64, modTime time.Time) error {
	staged, err := s.Stage(ctx, rel, r, size, modTime)
	if err != nil {
		return err
	}
	return staged.Commit(ctx)
}

// Stage writes the content and modification time into a temporary sibling of
// the target. Commit renames it into place.
func (s *LocalStore) Stage(ctx context.Context, rel string, r io.Reader, size int64, modTime time.Time) (Staged, error) {
	full, err := s.full(rel)
	if err != nil {
		return nil, &ProviderError{Op: "put", Location: s.root, Path: rel, Err: err}
	}

	if err := s.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, &ProviderError{Op: "put", Location: s.root, Path: rel, Err: err}
	}

	tmp := filepath.Join(filepath.Dir(full), tmpPrefix+filepath.Base(full)+"."+uuid.NewString()[:8])
	if err := s.writeFile(ctx, tmp, r, size); err != nil {
		_ = s.fs.Remove(tmp)
		return nil, &ProviderError{Op: "put", Location: s.root, Path: rel, Err: err}
	}

	if !modTime.IsZero() {
		if err := s.fs.Chtimes(tmp, modTime, modTime); err != nil {
			_ = s.fs.Remove(tmp)
			return nil, &ProviderError{Op: "put", Location: s.root, Path: rel, Err: err}
		}
	}

	return &localStaged{store: s, rel: rel, tmp: tmp, target: full}, nil
}

type localStaged struct {
	store  *LocalStore
	rel    string
	tmp    string
	target string
}

func (st *localStaged) Commit(ctx context.Context) error {
	if err := st.store.fs.Rename(st.tmp, st.target); err != nil {
		_ = st.store.fs.Remove(st.tmp)
		return &ProviderError{Op: "put", Location: st.store.root, Path: st.rel, Err: err}
	}
	return nil
}

func (st *localStaged) Discard(ctx context.Context) error {
	if err := st.store.fs.Remove(st.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &ProviderError{Op: "discard", Location: st.store.root, Path: st.rel, Err: err}
	}
	return nil
}

func (s *LocalStore) writeFile(ctx context.Context, name string, r io.Reader, size int64) error {
	f, err := s.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		return err
	}
	if size >= 0 && n != size {
		f.Close()
		return fmt.Errorf("short write: %d of %d bytes", n, size)
	}
	return f.Close()
}

func (s *LocalStore) Remove(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := s.full(rel)
	if err != nil {
		return &ProviderError{Op: "remove", Location: s.root, Path: rel, Err: err}
	}

	if err := s.fs.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &ProviderError{Op: "remove", Location: s.root, Path: rel, Err: err}
	}
	return nil
}

// ctxReader stops long copies once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// isTempName reports whether a base name belongs to an unfinished or staged write.
func isTempName(name string) bool {
	return strings.HasPrefix(name, tmpPrefix)
}

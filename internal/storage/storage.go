// Package storage implements the two sides of a link. A Store is one tree of
// files addressed by slash separated relative paths, a Pair joins the local and
// remote stores and moves files between them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrNotExist = errors.New("file does not exist")

// Side names one end of a link.
type Side uint8

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	switch s {
	case SideLocal:
		return "local"
	case SideRemote:
		return "remote"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// FileEntry is one listed item. Path is relative to the store root and always
// uses forward slashes.
type FileEntry struct {
	Path        string
	IsDirectory bool
	ModTime     time.Time
	Size        int64
}

type Store interface {
	// Location is the user facing address of the store root.
	Location() string
	// List walks the whole tree.
	List(ctx context.Context) ([]FileEntry, error)
	// Open returns the content of a file together with its listing entry.
	Open(ctx context.Context, path string) (io.ReadCloser, FileEntry, error)
	// Put creates or replaces a file. Stores that can, record modTime as the
	// file's modification time.
	Put(ctx context.Context, path string, r io.Reader, size int64, modTime time.Time) error
	// Stage writes a file aside. It becomes visible under path only once the
	// returned Staged is committed.
	Stage(ctx context.Context, path string, r io.Reader, size int64, modTime time.Time) (Staged, error)
	// Remove deletes a file. A missing file is not an error.
	Remove(ctx context.Context, path string) error
}

// Staged is a fully written file waiting to be published.
type Staged interface {
	Commit(ctx context.Context) error
	// Discard drops the staged content. The published file, if any, is left as is.
	Discard(ctx context.Context) error
}

// BatchRemover is implemented by stores that delete many files in one request.
type BatchRemover interface {
	RemoveAll(ctx context.Context, paths []string) error
}

// ProviderError reports a failed backend operation.
type ProviderError struct {
	Op       string
	Location string
	Path     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Location, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Location, e.Path, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Package link stores named link definitions. A link pairs a local directory
// with a remote location and owns the ledger of that pair.
package link

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/syftlink/internal/storage"
	"github.com/openmined/syftlink/internal/sync"
	"github.com/openmined/syftlink/internal/utils"
)

const (
	linkFile   = "link.json"
	ledgerFile = "ledger.db"
	lockFile   = "link.lock"
)

var (
	ErrNotFound    = fmt.Errorf("%w: link not found", sync.ErrConfig)
	ErrExists      = fmt.Errorf("%w: link already exists", sync.ErrConfig)
	ErrInvalidName = fmt.Errorf("%w: invalid link name", sync.ErrConfig)

	validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
)

type Link struct {
	Name      string    `json:"name"`
	Local     string    `json:"local"`
	Remote    string    `json:"remote"`
	CreatedAt time.Time `json:"created_at"`

	dir string
}

// Dir is the directory holding the link's definition, ledger and lock.
func (l *Link) Dir() string {
	return l.dir
}

func (l *Link) LedgerPath() string {
	return filepath.Join(l.dir, ledgerFile)
}

func (l *Link) Validate() error {
	if !validName.MatchString(l.Name) {
		return fmt.Errorf("%w %q", ErrInvalidName, l.Name)
	}
	if l.Local == "" {
		return fmt.Errorf("%w: link %q has no local directory", sync.ErrConfig, l.Name)
	}
	if l.Remote == "" {
		return fmt.Errorf("%w: link %q has no remote", sync.ErrConfig, l.Name)
	}
	if !filepath.IsAbs(l.Local) {
		return fmt.Errorf("%w: local directory %q is not absolute", sync.ErrConfig, l.Local)
	}
	if storage.IsS3Location(l.Remote) {
		if _, _, err := storage.ParseS3Location(l.Remote); err != nil {
			return fmt.Errorf("%w: %w", sync.ErrConfig, err)
		}
		return nil
	}
	if !filepath.IsAbs(l.Remote) {
		return fmt.Errorf("%w: remote directory %q is not absolute", sync.ErrConfig, l.Remote)
	}
	if utils.IsSubpath(l.Local, l.Remote) || utils.IsSubpath(l.Remote, l.Local) {
		return fmt.Errorf("%w: local %q and remote %q overlap", sync.ErrConfig, l.Local, l.Remote)
	}
	return nil
}

func (l *Link) save() error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(l.dir, linkFile), data, 0o644)
}

func loadLink(dir string) (*Link, error) {
	data, err := os.ReadFile(filepath.Join(dir, linkFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var l Link
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", sync.ErrConfig, filepath.Join(dir, linkFile), err)
	}
	l.dir = dir

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

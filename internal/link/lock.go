package link

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrLinkBusy = errors.New("link is being synced by another process")

// Lock takes the link's run lock without waiting. The returned func releases it.
func (l *Link) Lock() (func(), error) {
	fl := flock.New(filepath.Join(l.dir, lockFile))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock link %s: %w", l.Name, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLinkBusy, l.Name)
	}

	return func() {
		_ = fl.Unlock()
	}, nil
}

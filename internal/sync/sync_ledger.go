package sync

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftlink/internal/db"
	"github.com/openmined/syftlink/internal/utils"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger (
    path TEXT PRIMARY KEY,
    synced_at TEXT NOT NULL -- RFC3339Nano, UTC
);
`

type dbLedgerEntry struct {
	Path     string `db:"path"`
	SyncedAt string `db:"synced_at"`
}

// Ledger maps a path to the time it was last known identical on both sides.
type Ledger map[string]time.Time

func (l Ledger) Baseline(path string) (time.Time, bool) {
	t, ok := l[path]
	return t, ok
}

// Latest returns the newest baseline, zero for an empty ledger.
func (l Ledger) Latest() time.Time {
	var latest time.Time
	for _, t := range l {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

// Without returns a copy of the ledger minus ignored paths.
func (l Ledger) Without(ignore *IgnoreList) Ledger {
	out := make(Ledger, len(l))
	for p, t := range l {
		if ignore.ShouldIgnore(p) {
			continue
		}
		out[p] = t
	}
	return out
}

// Next derives the ledger that follows a run of actions. Copied paths are
// recorded at now, deleted and forgotten paths are dropped, everything else
// keeps its baseline. Actions must not contain conflicts.
func (l Ledger) Next(actions []Action, now time.Time) (Ledger, error) {
	now = now.UTC()
	next := make(Ledger, len(l))
	for p, t := range l {
		next[p] = t
	}

	for _, a := range actions {
		switch a.Kind {
		case ActionCopyLocalToRemote, ActionCopyRemoteToLocal:
			next[a.Path] = now
		case ActionDeleteLocal, ActionDeleteRemote, ActionForget:
			delete(next, a.Path)
		case ActionNothing:
			// carried forward
		case ActionConflict:
			return nil, &InvariantViolation{Path: a.Path, Reason: fmt.Sprintf("unresolved %s conflict reached the ledger", a.Conflict)}
		default:
			return nil, &InvariantViolation{Path: a.Path, Reason: fmt.Sprintf("unknown action kind %q", a.Kind)}
		}
	}

	return next, nil
}

func openLedgerDB(path string) (*sqlx.DB, error) {
	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ledgerSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return conn, nil
}

// LoadLedger reads the ledger stored at path. The file must exist.
func LoadLedger(path string) (Ledger, error) {
	if !utils.FileExists(path) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrLedger, path)
	}

	conn, err := openLedgerDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLedger, path, err)
	}
	defer conn.Close()

	var rows []dbLedgerEntry
	if err := conn.Select(&rows, "SELECT path, synced_at FROM ledger"); err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", ErrLedger, path, err)
	}

	ledger := make(Ledger, len(rows))
	for _, row := range rows {
		t, err := time.Parse(time.RFC3339Nano, row.SyncedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed timestamp for %q: %w", ErrLedger, row.Path, err)
		}
		ledger[row.Path] = t
	}

	slog.Debug("ledger loaded", "path", path, "entries", len(ledger))
	return ledger, nil
}

// SaveLedger replaces the stored ledger in a single transaction, creating the
// file and its parent directories when needed.
func SaveLedger(path string, ledger Ledger) error {
	conn, err := openLedgerDB(path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrLedger, path, err)
	}
	defer conn.Close()

	if err := replaceLedger(conn, ledger); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrLedger, path, err)
	}

	slog.Debug("ledger saved", "path", path, "entries", len(ledger))
	return nil
}

func replaceLedger(conn *sqlx.DB, ledger Ledger) error {
	tx, err := conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec("DELETE FROM ledger"); err != nil {
		return err
	}

	stmt, err := tx.Preparex("INSERT INTO ledger (path, synced_at) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	paths := make([]string, 0, len(ledger))
	for p := range ledger {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if _, err := stmt.Exec(p, ledger[p].UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert %q: %w", p, err)
		}
	}

	return tx.Commit()
}

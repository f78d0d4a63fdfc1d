package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/syftlink/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_Next(t *testing.T) {
	ledger := Ledger{
		"copied-up.txt":   t0,
		"copied-down.txt": t0,
		"deleted-l.txt":   t0,
		"deleted-r.txt":   t0,
		"same.txt":        t1,
		"forgotten.txt":   t0,
		"ignored.log":     t0,
	}
	actions := []Action{
		{Path: "copied-up.txt", Kind: ActionCopyLocalToRemote},
		{Path: "copied-down.txt", Kind: ActionCopyRemoteToLocal},
		{Path: "new.txt", Kind: ActionCopyLocalToRemote},
		{Path: "deleted-l.txt", Kind: ActionDeleteLocal},
		{Path: "deleted-r.txt", Kind: ActionDeleteRemote},
		{Path: "same.txt", Kind: ActionNothing},
		{Path: "forgotten.txt", Kind: ActionForget},
	}

	next, err := ledger.Next(actions, t2)
	require.NoError(t, err)

	assert.Equal(t, Ledger{
		"copied-up.txt":   t2,
		"copied-down.txt": t2,
		"new.txt":         t2,
		"same.txt":        t1,
		"ignored.log":     t0,
	}, next)

	// input untouched
	assert.Len(t, ledger, 7)
	assert.Equal(t, t0, ledger["copied-up.txt"])
}

func TestLedger_NextRejectsConflicts(t *testing.T) {
	_, err := Ledger{}.Next([]Action{{Path: "x", Kind: ActionConflict, Conflict: ConflictBothCreated}}, t1)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestLedger_Convergence(t *testing.T) {
	// a.txt created locally at T1, copied at T2
	actions, err := Reconcile(Snapshot{"a.txt": t1}, Snapshot{}, Ledger{})
	require.NoError(t, err)
	require.Equal(t, ActionCopyLocalToRemote, actions[0].Kind)

	next, err := Ledger{}.Next(actions, t2)
	require.NoError(t, err)
	assert.Equal(t, Ledger{"a.txt": t2}, next)

	again, err := Reconcile(Snapshot{"a.txt": t1}, Snapshot{"a.txt": t1}, next)
	require.NoError(t, err)
	assert.Equal(t, ActionNothing, again[0].Kind)
}

func TestLedger_ConvergenceAfterEveryConcreteAction(t *testing.T) {
	cases := []struct {
		name          string
		local, remote Snapshot
		ledger        Ledger
		after         func(local, remote Snapshot)
	}{
		{
			name:   "copy up",
			local:  Snapshot{"p": t1},
			remote: Snapshot{"p": t0},
			ledger: Ledger{"p": t0},
			after:  func(local, remote Snapshot) { remote["p"] = local["p"] },
		},
		{
			name:   "copy down",
			local:  Snapshot{"p": t0},
			remote: Snapshot{"p": t1},
			ledger: Ledger{"p": t0},
			after:  func(local, remote Snapshot) { local["p"] = remote["p"] },
		},
		{
			name:   "delete remote",
			local:  Snapshot{},
			remote: Snapshot{"p": t0},
			ledger: Ledger{"p": t0},
			after:  func(local, remote Snapshot) { delete(remote, "p") },
		},
		{
			name:   "delete local",
			local:  Snapshot{"p": t0},
			remote: Snapshot{},
			ledger: Ledger{"p": t0},
			after:  func(local, remote Snapshot) { delete(local, "p") },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			actions, err := Reconcile(tc.local, tc.remote, tc.ledger)
			require.NoError(t, err)

			next, err := tc.ledger.Next(actions, t2)
			require.NoError(t, err)
			tc.after(tc.local, tc.remote)

			again, err := Reconcile(tc.local, tc.remote, next)
			require.NoError(t, err)
			for _, a := range again {
				assert.Equal(t, ActionNothing, a.Kind, a.String())
			}
		})
	}
}

func TestLedger_Latest(t *testing.T) {
	assert.True(t, Ledger{}.Latest().IsZero())
	assert.Equal(t, t2, Ledger{"a": t0, "b": t2, "c": t1}.Latest())
}

func TestLedger_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "link", "ledger.db")
	want := Ledger{
		"a.txt":          time.Date(2024, 2, 3, 4, 5, 6, 789123456, time.UTC),
		"dir/b with.txt": t1,
		"ünïcode.md":     t2,
	}

	require.NoError(t, SaveLedger(path, want))
	got, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// replaced wholesale
	require.NoError(t, SaveLedger(path, Ledger{"only.txt": t0}))
	got, err = LoadLedger(path)
	require.NoError(t, err)
	assert.Equal(t, Ledger{"only.txt": t0}, got)
}

func TestLedger_SaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, SaveLedger(path, Ledger{}))

	got, err := LoadLedger(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLedger_LoadMissing(t *testing.T) {
	_, err := LoadLedger(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, ErrLedger)
}

func TestLedger_LoadMalformedTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, SaveLedger(path, Ledger{}))

	conn, err := db.NewSqliteDB(db.WithPath(path))
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO ledger (path, synced_at) VALUES (?, ?)", "bad.txt", "yesterday")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	_, err = LoadLedger(path)
	assert.ErrorIs(t, err, ErrLedger)
	assert.Contains(t, err.Error(), "bad.txt")
}

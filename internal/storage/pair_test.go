package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemPair(t *testing.T) (*Pair, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/local", 0o755))
	require.NoError(t, fs.MkdirAll("/remote", 0o755))
	return NewPair(NewLocalStore(fs, "/local"), NewLocalStore(fs, "/remote")), fs
}

func readMem(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

func TestPair_CopyKeepsModTime(t *testing.T) {
	ctx := context.Background()
	pair, fs := newMemPair(t)
	mtime := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	writeMem(t, fs, "/local/a.txt", "alpha", mtime)
	writeMem(t, fs, "/local/sub/b.txt", "beta", mtime)

	require.NoError(t, pair.Copy(ctx, SideLocal, SideRemote, []string{"a.txt", "sub/b.txt"}))

	assert.Equal(t, "alpha", readMem(t, fs, "/remote/a.txt"))
	assert.Equal(t, "beta", readMem(t, fs, "/remote/sub/b.txt"))

	info, err := fs.Stat("/remote/sub/b.txt")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestPair_CopyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	pair, fs := newMemPair(t)
	writeMem(t, fs, "/remote/a.txt", "new a", time.Now())
	writeMem(t, fs, "/remote/c.txt", "c", time.Now())
	writeMem(t, fs, "/local/a.txt", "old a", time.Now())

	err := pair.Copy(ctx, SideRemote, SideLocal, []string{"a.txt", "missing.txt", "c.txt"})
	require.ErrorIs(t, err, ErrNotExist)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "missing.txt", perr.Path)

	assert.Equal(t, "old a", readMem(t, fs, "/local/a.txt"))
	exists, _ := afero.Exists(fs, "/local/c.txt")
	assert.False(t, exists)

	// no staged leftovers
	names, err := afero.ReadDir(fs, "/local")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "a.txt", names[0].Name())
}

func TestPair_CopyToS3IsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeMem(t, fs, "/local/a.txt", "a", time.Now())
	writeMem(t, fs, "/local/b.txt", "b", time.Now())
	fake := newFakeS3()
	fake.failPutSuffix = "b.txt"

	pair := NewPair(NewLocalStore(fs, "/local"), NewS3Store(fake, "bucket", "docs"))
	err := pair.Copy(ctx, SideLocal, SideRemote, []string{"a.txt", "b.txt"})
	require.Error(t, err)

	assert.Empty(t, fake.keys(), "neither the object nor its staging key survives")
}

func TestPair_CopySameSide(t *testing.T) {
	pair, _ := newMemPair(t)
	err := pair.Copy(context.Background(), SideLocal, SideLocal, []string{"a.txt"})
	assert.Error(t, err)
}

func TestPair_Delete(t *testing.T) {
	ctx := context.Background()
	pair, fs := newMemPair(t)
	writeMem(t, fs, "/local/a.txt", "a", time.Now())
	writeMem(t, fs, "/local/b.txt", "b", time.Now())

	require.NoError(t, pair.Delete(ctx, SideLocal, []string{"a.txt", "gone.txt"}))

	entries, err := pair.List(ctx, SideLocal)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, paths(entries))
}

func TestPair_DeleteUsesBatchRemover(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.objects["a.txt"] = fakeObject{}
	fake.objects["b.txt"] = fakeObject{}

	pair := NewPair(NewLocalStore(afero.NewMemMapFs(), "/local"), NewS3Store(fake, "bucket", ""))
	require.NoError(t, pair.Delete(ctx, SideRemote, []string{"a.txt", "b.txt"}))

	assert.Equal(t, 1, fake.deleteCalls)
	assert.Empty(t, fake.objects)
}

func TestPair_CopyToS3(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeMem(t, fs, "/local/doc.md", "# title", time.Now())
	fake := newFakeS3()

	pair := NewPair(NewLocalStore(fs, "/local"), NewS3Store(fake, "bucket", "docs"))
	require.NoError(t, pair.Copy(ctx, SideLocal, SideRemote, []string{"doc.md"}))

	rc, _, err := pair.Remote.Open(ctx, "doc.md")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# title"))
}

package bijoufs

import (
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestFs(t *testing.T) *BijouFs {
	t.Helper()
	dir := t.TempDir()
	hier, err := keys.Create(dir, "passphrase", types.CipherAES256GCM, 64, false)
	require.NoError(t, err)

	meta, err := metastore.OpenBolt(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	raw, err := rawstore.NewLocalDir(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	engine := fsengine.New(dir, hier, meta, raw)
	require.NoError(t, engine.EnsureRoot())
	return New(engine)
}

func TestWriteReadFile(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, fs.WriteFile("/a.txt", []byte("hello world"), 0o644))

	got, err := fs.ReadFile("/a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestCreateDirAllAndWalk(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, fs.CreateDirAll("/a/b/c"))
	require.NoError(t, fs.WriteFile("/a/b/c/f.txt", []byte("x"), 0o644))

	var visited []string
	require.NoError(t, fs.Walk("/", func(p string, inode *types.Inode) error {
		visited = append(visited, p)
		return nil
	}))
	require.Contains(t, visited, "/a/b/c/f.txt")
}

func TestRemoveDirAll(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, fs.CreateDirAll("/x/y"))
	require.NoError(t, fs.WriteFile("/x/y/z.txt", []byte("z"), 0o644))

	require.NoError(t, fs.RemoveDirAll("/x"))

	_, err := fs.engine.Lookup("/x")
	require.Error(t, err)
}

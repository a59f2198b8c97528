package mountadapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *fsengine.Bijou {
	t.Helper()
	dir := t.TempDir()

	hier, err := keys.Create(dir, "correct horse battery staple", types.CipherAES256GCM, 64, false)
	require.NoError(t, err)

	meta, err := metastore.OpenBolt(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	raw, err := rawstore.NewLocalDir(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	eng := fsengine.New(dir, hier, meta, raw)
	require.NoError(t, eng.EnsureRoot())
	return eng
}

// mountForTest mounts eng at a fresh temp mountpoint and returns a
// cleanup func. It skips the test when FUSE isn't usable in the
// current sandbox (no /dev/fuse, no permission), since that's an
// environment limitation rather than a defect in the adapter.
func mountForTest(t *testing.T, eng *fsengine.Bijou) string {
	t.Helper()
	mountpoint := t.TempDir()

	server, err := Mount(mountpoint, eng, MountOptions{})
	if err != nil {
		t.Skipf("FUSE mount unavailable in this environment: %v", err)
	}
	t.Cleanup(func() {
		server.Unmount()
		server.Wait()
	})
	return mountpoint
}

func TestMountRoundTripFile(t *testing.T) {
	eng := newTestEngine(t)
	mountpoint := mountForTest(t, eng)

	path := filepath.Join(mountpoint, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi there"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hi there", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, len("hi there"), info.Size())
}

func TestMountMkdirAndReaddir(t *testing.T) {
	eng := newTestEngine(t)
	mountpoint := mountForTest(t, eng)

	require.NoError(t, os.Mkdir(filepath.Join(mountpoint, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mountpoint, "sub", "a"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(mountpoint, "sub", "b"), []byte("y"), 0o644))

	entries, err := os.ReadDir(filepath.Join(mountpoint, "sub"))
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestMountSymlinkAndRename(t *testing.T) {
	eng := newTestEngine(t)
	mountpoint := mountForTest(t, eng)

	target := filepath.Join(mountpoint, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("payload"), 0o644))

	link := filepath.Join(mountpoint, "link.txt")
	require.NoError(t, os.Symlink("target.txt", link))

	resolved, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, "target.txt", resolved)

	renamed := filepath.Join(mountpoint, "renamed.txt")
	require.NoError(t, os.Rename(target, renamed))
	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(renamed)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestMountUnlinkAndRmdir(t *testing.T) {
	eng := newTestEngine(t)
	mountpoint := mountForTest(t, eng)

	file := filepath.Join(mountpoint, "doomed.txt")
	require.NoError(t, os.WriteFile(file, []byte("bye"), 0o644))
	require.NoError(t, os.Remove(file))
	_, err := os.Stat(file)
	require.True(t, os.IsNotExist(err))

	dir := filepath.Join(mountpoint, "emptydir")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Remove(dir))
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestMountXattr(t *testing.T) {
	eng := newTestEngine(t)
	mountpoint := mountForTest(t, eng)

	file := filepath.Join(mountpoint, "attred.txt")
	require.NoError(t, os.WriteFile(file, []byte("z"), 0o644))

	ctx := context.Background()
	node := &bijouNode{engine: eng, path: "/attred.txt"}
	errno := node.Setxattr(ctx, "user.note", []byte("hello"), 0)
	require.Equal(t, 0, int(errno))

	dest := make([]byte, 32)
	n, errno := node.Getxattr(ctx, "user.note", dest)
	require.Equal(t, 0, int(errno))
	require.Equal(t, "hello", string(dest[:n]))
}

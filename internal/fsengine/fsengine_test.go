package fsengine

import (
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, nameEncryption bool) *Bijou {
	t.Helper()
	dir := t.TempDir()

	hier, err := keys.Create(dir, "correct horse battery staple", types.CipherAES256GCM, 64, nameEncryption)
	require.NoError(t, err)

	meta, err := metastore.OpenBolt(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	raw, err := rawstore.NewLocalDir(filepath.Join(dir, "blobs"))
	require.NoError(t, err)

	eng := New(dir, hier, meta, raw)
	require.NoError(t, eng.EnsureRoot())
	return eng
}

func writeWholeFile(t *testing.T, eng *Bijou, path string, data []byte) {
	t.Helper()
	_, err := eng.Create(path, 0o644, 0, 0)
	require.NoError(t, err)
	h, _, err := eng.Open(path, OFlagRead|OFlagWrite)
	require.NoError(t, err)
	_, err = eng.Write(h, data, 0)
	require.NoError(t, err)
	require.NoError(t, eng.Release(h))
}

func readWholeFile(t *testing.T, eng *Bijou, path string) []byte {
	t.Helper()
	inode, err := eng.Lookup(path)
	require.NoError(t, err)
	h, _, err := eng.Open(path, OFlagRead)
	require.NoError(t, err)
	buf := make([]byte, inode.Size)
	n, err := eng.Read(h, buf, 0)
	require.NoError(t, err)
	require.NoError(t, eng.Release(h))
	return buf[:n]
}

func TestRoundTripSmallFile(t *testing.T) {
	eng := newTestEngine(t, false)
	writeWholeFile(t, eng, "/hello.txt", []byte("Hi"))

	got := readWholeFile(t, eng, "/hello.txt")
	require.Equal(t, "Hi", string(got))

	inode, err := eng.GetAttr("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(2), inode.Size)
}

func TestHardLinkNlink(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Create("/a", 0o644, 0, 0)
	require.NoError(t, err)

	_, err = eng.Link("/a", "/b")
	require.NoError(t, err)

	a, err := eng.GetAttr("/a")
	require.NoError(t, err)
	require.Equal(t, uint32(2), a.Nlink)

	bAttr, err := eng.GetAttr("/b")
	require.NoError(t, err)
	require.Equal(t, uint32(2), bAttr.Nlink)

	require.NoError(t, eng.Unlink("/a"))
	bAttr, err = eng.GetAttr("/b")
	require.NoError(t, err)
	require.Equal(t, uint32(1), bAttr.Nlink)

	_, err = eng.Lookup("/a")
	require.Error(t, err)
}

func TestRenameIntoExistingFile(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Mkdir("/d", 0o755, 0, 0)
	require.NoError(t, err)
	writeWholeFile(t, eng, "/d/x", []byte("1"))
	writeWholeFile(t, eng, "/y", []byte("2"))

	require.NoError(t, eng.Rename("/y", "/d/x"))

	require.Equal(t, "2", string(readWholeFile(t, eng, "/d/x")))
	_, err = eng.Lookup("/y")
	require.Error(t, err)
}

func TestSparseWriteHoles(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Create("/s", 0o644, 0, 0)
	require.NoError(t, err)

	h, _, err := eng.Open("/s", OFlagRead|OFlagWrite)
	require.NoError(t, err)
	_, err = eng.Write(h, []byte("Z"), 8192)
	require.NoError(t, err)
	require.NoError(t, eng.Release(h))

	attr, err := eng.GetAttr("/s")
	require.NoError(t, err)
	require.Equal(t, uint64(8193), attr.Size)

	h, _, err = eng.Open("/s", OFlagRead)
	require.NoError(t, err)
	buf := make([]byte, 8192)
	n, err := eng.Read(h, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 8192, n)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
	require.NoError(t, eng.Release(h))
}

func TestRenameDirectoryIntoOwnDescendantFails(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Mkdir("/a", 0o755, 0, 0)
	require.NoError(t, err)
	_, err = eng.Mkdir("/a/b", 0o755, 0, 0)
	require.NoError(t, err)

	err = eng.Rename("/a", "/a/b/a")
	require.Error(t, err)
}

func TestOrphanDeletionDeferredUntilHandleClose(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Create("/orphan", 0o644, 0, 0)
	require.NoError(t, err)

	h, _, err := eng.Open("/orphan", OFlagRead|OFlagWrite)
	require.NoError(t, err)

	require.NoError(t, eng.Unlink("/orphan"))

	_, err = eng.Lookup("/orphan")
	require.Error(t, err)

	_, err = eng.Write(h, []byte("still alive"), 0)
	require.NoError(t, err)

	require.NoError(t, eng.Release(h))
}

func TestFilenameEncryptionRoundTrip(t *testing.T) {
	eng := newTestEngine(t, true)
	writeWholeFile(t, eng, "/secret.txt", []byte("shh"))

	got := readWholeFile(t, eng, "/secret.txt")
	require.Equal(t, "shh", string(got))

	entries, err := eng.Readdir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "secret.txt", entries[0].Name)
}

func TestXattrCreateReplaceRemove(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Create("/f", 0o644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, eng.Setxattr("/f", []byte("user.tag"), []byte("v1"), types.SetxattrCreate))
	err = eng.Setxattr("/f", []byte("user.tag"), []byte("v2"), types.SetxattrCreate)
	require.Error(t, err)

	require.NoError(t, eng.Setxattr("/f", []byte("user.tag"), []byte("v2"), types.SetxattrReplace))
	v, err := eng.Getxattr("/f", []byte("user.tag"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))

	require.NoError(t, eng.Removexattr("/f", []byte("user.tag")))
	_, err = eng.Getxattr("/f", []byte("user.tag"))
	require.Error(t, err)
}

func TestCollectOrphansAtMount(t *testing.T) {
	eng := newTestEngine(t, false)
	_, err := eng.Create("/gone", 0o644, 0, 0)
	require.NoError(t, err)
	h, _, err := eng.Open("/gone", OFlagRead|OFlagWrite)
	require.NoError(t, err)
	require.NoError(t, eng.Unlink("/gone"))
	require.NoError(t, eng.Release(h))

	n, err := eng.CollectOrphans()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

package metastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenBolt(filepath.Join(dir, "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInodeRoundTrip(t *testing.T) {
	store := openTestStore(t)

	in := &types.Inode{
		FileID:      42,
		Kind:        types.KindRegular,
		Permissions: 0o644,
		Nlink:       1,
		Size:        1234,
		Atime:       time.Now().UTC(),
		Mtime:       time.Now().UTC(),
		Ctime:       time.Now().UTC(),
		CipherID:    types.CipherAES256GCM,
		BlockSize:   4096,
	}
	require.NoError(t, store.PutInode(in))

	got, err := store.GetInode(42)
	require.NoError(t, err)
	require.Equal(t, in.FileID, got.FileID)
	require.Equal(t, in.Size, got.Size)
	require.Equal(t, in.Nlink, got.Nlink)

	require.NoError(t, store.DeleteInode(42))
	_, err = store.GetInode(42)
	require.True(t, bjerrors.Is(err, bjerrors.NotFound))
}

func TestDirEntryInsertIsUniquePerName(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.InsertDirEntry(1, []byte("a"), 2))
	err := store.InsertDirEntry(1, []byte("a"), 3)
	require.True(t, bjerrors.Is(err, bjerrors.AlreadyExists))

	child, err := store.LookupDirEntry(1, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, types.FileId(2), child)
}

func TestIterDirEntriesIsPrefixScoped(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.InsertDirEntry(1, []byte("a"), 10))
	require.NoError(t, store.InsertDirEntry(1, []byte("b"), 11))
	require.NoError(t, store.InsertDirEntry(2, []byte("a"), 12))

	var names []string
	err := store.IterDirEntries(1, func(e types.DirEntry) bool {
		names = append(names, string(e.EncName))
		return true
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestBatchIsAtomic(t *testing.T) {
	store := openTestStore(t)

	in := &types.Inode{FileID: 5, Kind: types.KindRegular, Nlink: 1}
	ops := []Op{
		{Kind: OpPutInode, Inode: in},
		{Kind: OpInsertDirEntry, ParentID: 1, EncName: []byte("f"), ChildID: 5},
	}
	require.NoError(t, store.Batch(ops))

	_, err := store.GetInode(5)
	require.NoError(t, err)
	child, err := store.LookupDirEntry(1, []byte("f"))
	require.NoError(t, err)
	require.Equal(t, types.FileId(5), child)

	// A batch that fails partway (duplicate insert) must not apply any
	// of its other operations either.
	in2 := &types.Inode{FileID: 6, Kind: types.KindRegular, Nlink: 1}
	failing := []Op{
		{Kind: OpPutInode, Inode: in2},
		{Kind: OpInsertDirEntry, ParentID: 1, EncName: []byte("f"), ChildID: 6},
	}
	err = store.Batch(failing)
	require.Error(t, err)
	_, err = store.GetInode(6)
	require.True(t, bjerrors.Is(err, bjerrors.NotFound))
}

func TestAllocateIDIsMonotonic(t *testing.T) {
	store := openTestStore(t)

	first, err := store.AllocateID()
	require.NoError(t, err)
	second, err := store.AllocateID()
	require.NoError(t, err)
	require.Less(t, uint64(first), uint64(second))
}

func TestRaiseCounterNeverLowers(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.RaiseCounter(100))
	next, err := store.PeekNextID()
	require.NoError(t, err)
	require.Equal(t, types.FileId(100), next)

	require.NoError(t, store.RaiseCounter(50))
	next, err = store.PeekNextID()
	require.NoError(t, err)
	require.Equal(t, types.FileId(100), next)
}

func TestRawMetaRoundTrip(t *testing.T) {
	store := openTestStore(t)

	m := RawMeta{Size: 99, Mtime: time.Now().UTC(), Atime: time.Now().UTC()}
	require.NoError(t, store.SetRawMeta(7, m))

	got, err := store.GetRawMeta(7)
	require.NoError(t, err)
	require.Equal(t, m.Size, got.Size)

	require.NoError(t, store.DeleteRawMeta(7))
	_, err = store.GetRawMeta(7)
	require.True(t, bjerrors.Is(err, bjerrors.NotFound))
}

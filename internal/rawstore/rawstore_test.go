package rawstore

import (
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func TestLocalDirCreateReadWrite(t *testing.T) {
	dir, err := NewLocalDir(t.TempDir())
	require.NoError(t, err)

	id := types.FileId(7)
	require.NoError(t, dir.Create(id))

	h, err := dir.Open(id)
	require.NoError(t, err)
	defer h.Close()

	n, err := h.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = h.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	meta, err := dir.GetMeta(id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), meta.Size)
}

func TestLocalDirUnlinkIsIdempotent(t *testing.T) {
	dir, err := NewLocalDir(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, dir.Unlink(types.FileId(99)))
}

func TestComposeRejectsUnsupportedMeta(t *testing.T) {
	clustered := &Clustered{}
	_, err := Compose(clustered)
	require.ErrorIs(t, err, ErrMetaRequiresTracking)
}

type fakeMetaPersister struct {
	meta map[types.FileId]types.RawMeta
}

func newFakeMetaPersister() *fakeMetaPersister {
	return &fakeMetaPersister{meta: map[types.FileId]types.RawMeta{}}
}

func (f *fakeMetaPersister) GetRawMeta(id types.FileId) (types.RawMeta, error) {
	m, ok := f.meta[id]
	if !ok {
		return types.RawMeta{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeMetaPersister) SetRawMeta(id types.FileId, m types.RawMeta) error {
	f.meta[id] = m
	return nil
}

func (f *fakeMetaPersister) DeleteRawMeta(id types.FileId) error {
	delete(f.meta, id)
	return nil
}

func TestTrackingSynthesizesMetaForKVBlob(t *testing.T) {
	kv, err := NewKVBlob(filepath.Join(t.TempDir(), "blob.db"))
	require.NoError(t, err)
	defer kv.Close()

	persister := newFakeMetaPersister()
	tracked := NewTracking(kv, persister)
	_, err = Compose(tracked)
	require.NoError(t, err)

	id := types.FileId(3)
	require.NoError(t, tracked.Create(id))

	h, err := tracked.Open(id)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)

	meta, err := tracked.GetMeta(id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), meta.Size)
}

func TestKVBlobReadWriteGrow(t *testing.T) {
	kv, err := NewKVBlob(filepath.Join(t.TempDir(), "blob.db"))
	require.NoError(t, err)
	defer kv.Close()

	id := types.FileId(1)
	require.NoError(t, kv.Create(id))
	h, err := kv.Open(id)
	require.NoError(t, err)

	_, err = h.WriteAt([]byte("abc"), 10)
	require.NoError(t, err)

	buf := make([]byte, 13)
	n, err := h.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf[10:n]))
}

func TestClusteredSpreadsAcrossClusters(t *testing.T) {
	kv, err := NewKVBlob(filepath.Join(t.TempDir(), "blob.db"))
	require.NoError(t, err)
	defer kv.Close()

	persister := newFakeMetaPersister()
	tracked := NewTracking(kv, persister)

	clustered, err := NewClustered(tracked, 4, 1)
	require.NoError(t, err)
	require.False(t, clustered.MetaSupported())

	id := types.FileId(5)
	require.NoError(t, clustered.Create(id))
	h, err := clustered.Open(id)
	require.NoError(t, err)
	defer h.Close()

	for i := int64(0); i < 20; i++ {
		_, err := h.WriteAt([]byte{byte(i)}, i)
		require.NoError(t, err)
	}
	for i := int64(0); i < 20; i++ {
		buf := make([]byte, 1)
		_, err := h.ReadAt(buf, i)
		require.NoError(t, err)
		require.Equal(t, byte(i), buf[0])
	}
}

// TestClusteredGroupsMultiByteRecords guards against clusterFor
// treating a record-index-sized offset as if it were already a
// cluster index: with recordSize > 1, several records must share one
// inner cluster blob instead of each getting its own.
func TestClusteredGroupsMultiByteRecords(t *testing.T) {
	kv, err := NewKVBlob(filepath.Join(t.TempDir(), "blob.db"))
	require.NoError(t, err)
	defer kv.Close()

	persister := newFakeMetaPersister()
	tracked := NewTracking(kv, persister)

	const recordSize = 8
	const clusterSize = 4 // records per cluster -> 32 bytes per cluster
	clustered, err := NewClustered(tracked, clusterSize, recordSize)
	require.NoError(t, err)

	id := types.FileId(9)
	require.NoError(t, clustered.Create(id))
	h, err := clustered.Open(id)
	require.NoError(t, err)
	defer h.Close()

	ch := h.(*clusteredHandle)

	// Records 0..3 land in cluster 0; record 4 starts cluster 1.
	for record := int64(0); record < 5; record++ {
		cluster, within := ch.clusterFor(record * recordSize)
		if record < 4 {
			require.EqualValuesf(t, 0, cluster, "record %d", record)
			require.Equal(t, record*recordSize, within)
		} else {
			require.EqualValuesf(t, 1, cluster, "record %d", record)
			require.Equal(t, int64(0), within)
		}
	}

	for record := int64(0); record < 5; record++ {
		data := make([]byte, recordSize)
		for i := range data {
			data[i] = byte(record)
		}
		_, err := h.WriteAt(data, record*recordSize)
		require.NoError(t, err)
	}
	for record := int64(0); record < 5; record++ {
		buf := make([]byte, recordSize)
		_, err := h.ReadAt(buf, record*recordSize)
		require.NoError(t, err)
		for _, b := range buf {
			require.Equal(t, byte(record), b)
		}
	}
}

func TestMemObjectStorePutGet(t *testing.T) {
	store := NewMemObjectStore()
	id := types.FileId(42)
	require.NoError(t, store.Create(id))
	require.NoError(t, store.PutObject(id, []byte("payload")))

	got, err := store.GetObject(id)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	meta, err := store.GetMeta(id)
	require.NoError(t, err)
	require.Equal(t, uint64(7), meta.Size)
}

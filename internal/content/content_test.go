package content

import (
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T, id types.FileId) rawstore.Handle {
	t.Helper()
	store, err := rawstore.NewLocalDir(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	require.NoError(t, store.Create(id))
	h, err := store.Open(id)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestWriteReadRoundTripWithinOneBlock(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	eng, err := NewEngine(types.CipherAES256GCM, key, 64)
	require.NoError(t, err)

	id := types.FileId(1)
	h := newTestHandle(t, id)

	data := []byte("hello, bijou")
	n, size, err := eng.WriteAt(h, id, 0, data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, uint64(len(data)), size)

	buf := make([]byte, len(data))
	n, err = eng.ReadAt(h, id, size, buf, 0)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])
}

func TestWriteSpansMultipleBlocks(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	eng, err := NewEngine(types.CipherXChaCha20Poly1305, key, 16)
	require.NoError(t, err)

	id := types.FileId(2)
	h := newTestHandle(t, id)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	n, size, err := eng.WriteAt(h, id, 0, data, 5)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, uint64(105), size)

	buf := make([]byte, len(data))
	n, err = eng.ReadAt(h, id, size, buf, 5)
	require.NoError(t, err)
	require.Equal(t, data, buf[:n])

	hole := make([]byte, 5)
	n, err = eng.ReadAt(h, id, size, hole, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 0}, hole[:n])
}

func TestTruncateShrinkTrimsTail(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	eng, err := NewEngine(types.CipherAES256GCM, key, 8)
	require.NoError(t, err)

	id := types.FileId(3)
	h := newTestHandle(t, id)

	data := []byte("0123456789abcdef")
	_, size, err := eng.WriteAt(h, id, 0, data, 0)
	require.NoError(t, err)

	require.NoError(t, eng.Truncate(h, id, size, 5))

	buf := make([]byte, 5)
	n, err := eng.ReadAt(h, id, 5, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "01234", string(buf[:n]))
}

// TestCorruptedBlockIsIsolated covers the spec's named corruption
// scenario: flipping one tag byte in block 0's record surfaces
// DataCorruption for that block only, while block 1 stays readable.
func TestCorruptedBlockIsIsolated(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	eng, err := NewEngine(types.CipherAES256GCM, key, 8)
	require.NoError(t, err)

	id := types.FileId(6)
	h := newTestHandle(t, id)

	data := []byte("0123456789abcdef") // block 0: "01234567", block 1: "89abcdef"
	_, size, err := eng.WriteAt(h, id, 0, data, 0)
	require.NoError(t, err)

	recordSize := eng.RecordSize()
	record := make([]byte, recordSize)
	n, err := h.ReadAt(record, 0)
	require.NoError(t, err)
	require.EqualValues(t, recordSize, n)

	record[len(record)-1] ^= 0xFF // flip a tag byte of block 0's record
	_, err = h.WriteAt(record, 0)
	require.NoError(t, err)

	buf := make([]byte, 8)
	_, err = eng.ReadAt(h, id, size, buf, 0)
	require.Error(t, err)
	require.True(t, bjerrors.Is(err, bjerrors.DataCorruption))

	_, err = eng.ReadAt(h, id, size, buf, 8)
	require.NoError(t, err)
	require.Equal(t, "89abcdef", string(buf))
}

func TestPartialOverwritePreservesRestOfBlock(t *testing.T) {
	key, err := crypto.RandomKey()
	require.NoError(t, err)
	eng, err := NewEngine(types.CipherAES256GCM, key, 16)
	require.NoError(t, err)

	id := types.FileId(4)
	h := newTestHandle(t, id)

	_, size, err := eng.WriteAt(h, id, 0, []byte("0123456789abcdef"), 0)
	require.NoError(t, err)

	_, size, err = eng.WriteAt(h, id, size, []byte("XY"), 4)
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := eng.ReadAt(h, id, size, buf, 0)
	require.NoError(t, err)
	require.Equal(t, "0123XY6789abcdef", string(buf[:n]))
}

package rawstore

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bijoufs/bijou/internal/types"
	bolt "go.etcd.io/bbolt"
)

func timeFromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

var kvBucket = []byte("B")

// KVBlob stores each whole blob as a single bbolt value, intended for
// use behind Clustered with a small cluster size so that individual
// records stay cheap to rewrite in place (§4.4 "KVBlob"). It reports
// metadata natively, so it never needs Tracking: GetMeta's Size is the
// stored blob's current length, and its Mtime/Atime come from a
// companion bucket of encoded RawMeta records written by Create and
// SetMeta (handle writes do not update them).
type KVBlob struct {
	db *bolt.DB
}

// NewKVBlob opens (creating if necessary) a dedicated bbolt database
// at path for blob storage.
func NewKVBlob(path string) (*KVBlob, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("rawstore: KVBlob: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(kvBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(kvMetaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("rawstore: KVBlob: %w", err)
	}
	return &KVBlob{db: db}, nil
}

var kvMetaBucket = []byte("BM")

func kvKey(id types.FileId) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func (k *KVBlob) Create(id types.FileId) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		key := kvKey(id)
		if b.Get(key) != nil {
			return nil
		}
		if err := b.Put(key, nil); err != nil {
			return err
		}
		return tx.Bucket(kvMetaBucket).Put(key, encodeRawMeta(types.RawMeta{}))
	})
}

func (k *KVBlob) Open(id types.FileId) (Handle, error) {
	key := kvKey(id)
	err := k.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(kvBucket).Get(key) == nil {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &kvHandle{db: k.db, key: key}, nil
}

func (k *KVBlob) Unlink(id types.FileId) error {
	key := kvKey(id)
	return k.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(kvBucket).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(kvMetaBucket).Delete(key)
	})
}

func (k *KVBlob) MetaSupported() bool { return true }

func (k *KVBlob) GetMeta(id types.FileId) (types.RawMeta, error) {
	var m types.RawMeta
	err := k.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvMetaBucket).Get(kvKey(id))
		if v == nil {
			return ErrNotFound
		}
		decoded, err := decodeRawMeta(v)
		if err != nil {
			return err
		}
		m = decoded
		m.Size = uint64(len(tx.Bucket(kvBucket).Get(kvKey(id))))
		return nil
	})
	return m, err
}

func (k *KVBlob) SetMeta(id types.FileId, m types.RawMeta) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kvMetaBucket).Put(kvKey(id), encodeRawMeta(m))
	})
}

func (k *KVBlob) Close() error {
	return k.db.Close()
}

type kvHandle struct {
	db  *bolt.DB
	key []byte
}

func (h *kvHandle) ReadAt(buf []byte, offset int64) (int, error) {
	var n int
	err := h.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get(h.key)
		if offset >= int64(len(v)) {
			n = 0
			return nil
		}
		n = copy(buf, v[offset:])
		return nil
	})
	return n, err
}

func (h *kvHandle) WriteAt(buf []byte, offset int64) (int, error) {
	err := h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		v := append([]byte(nil), b.Get(h.key)...)
		need := offset + int64(len(buf))
		if int64(len(v)) < need {
			grown := make([]byte, need)
			copy(grown, v)
			v = grown
		}
		copy(v[offset:], buf)
		return b.Put(h.key, v)
	})
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *kvHandle) SetLen(size int64) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		v := b.Get(h.key)
		if int64(len(v)) == size {
			return nil
		}
		grown := make([]byte, size)
		copy(grown, v)
		return b.Put(h.key, grown)
	})
}

func (h *kvHandle) Sync() error { return nil }

func (h *kvHandle) Close() error { return nil }

func encodeRawMeta(m types.RawMeta) []byte {
	buf := make([]byte, 8+8+8)
	binary.BigEndian.PutUint64(buf[0:8], m.Size)
	binary.BigEndian.PutUint64(buf[8:16], uint64(m.Mtime.UnixNano()))
	binary.BigEndian.PutUint64(buf[16:24], uint64(m.Atime.UnixNano()))
	return buf
}

func decodeRawMeta(buf []byte) (types.RawMeta, error) {
	if len(buf) < 24 {
		return types.RawMeta{}, fmt.Errorf("rawstore: KVBlob: truncated meta record")
	}
	return types.RawMeta{
		Size:  binary.BigEndian.Uint64(buf[0:8]),
		Mtime: timeFromUnixNano(int64(binary.BigEndian.Uint64(buf[8:16]))),
		Atime: timeFromUnixNano(int64(binary.BigEndian.Uint64(buf[16:24]))),
	}, nil
}

package metastore

import (
	"encoding/binary"
	"fmt"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/types"
	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store over a go.etcd.io/bbolt database, using
// one bucket per logical table (§4.2). The at-rest page encryption
// applied to the bbolt data file itself is out of scope (spec.md §1);
// OpenBolt opens the bbolt file at the path it is given, unencrypted.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database at path and
// ensures all logical-table buckets exist.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "metastore.OpenBolt", 0, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, bjerrors.Newf(bjerrors.IoError, "metastore.OpenBolt", 0, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return bjerrors.Newf(bjerrors.IoError, "metastore.Close", 0, err)
	}
	return nil
}

func (s *BoltStore) GetInode(id types.FileId) (*types.Inode, error) {
	var in *types.Inode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketInodes))
		v := b.Get(fileIDKey(id))
		if v == nil {
			return notFound("GetInode", id)
		}
		decoded, err := decodeInode(v)
		if err != nil {
			return bjerrors.Newf(bjerrors.DataCorruption, "GetInode", uint64(id), err)
		}
		in = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (s *BoltStore) PutInode(inode *types.Inode) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putInodeTx(tx, inode)
	})
}

func putInodeTx(tx *bolt.Tx, inode *types.Inode) error {
	b := tx.Bucket([]byte(bucketInodes))
	return b.Put(fileIDKey(inode.FileID), encodeInode(inode))
}

func (s *BoltStore) DeleteInode(id types.FileId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteInodeTx(tx, id)
	})
}

func deleteInodeTx(tx *bolt.Tx, id types.FileId) error {
	b := tx.Bucket([]byte(bucketInodes))
	return b.Delete(fileIDKey(id))
}

func (s *BoltStore) InsertDirEntry(parent types.FileId, encName []byte, child types.FileId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return insertDirEntryTx(tx, parent, encName, child)
	})
}

func insertDirEntryTx(tx *bolt.Tx, parent types.FileId, encName []byte, child types.FileId) error {
	b := tx.Bucket([]byte(bucketDirEnt))
	key := dirEntryKey(parent, encName)
	if b.Get(key) != nil {
		return bjerrors.New(bjerrors.AlreadyExists, "InsertDirEntry")
	}
	if err := b.Put(key, fileIDKey(child)); err != nil {
		return err
	}
	rb := tx.Bucket([]byte(bucketDirByChild))
	return rb.Put(dirByChildKey(parent, child), encName)
}

func (s *BoltStore) RemoveDirEntry(parent types.FileId, encName []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return removeDirEntryTx(tx, parent, encName)
	})
}

func removeDirEntryTx(tx *bolt.Tx, parent types.FileId, encName []byte) error {
	b := tx.Bucket([]byte(bucketDirEnt))
	key := dirEntryKey(parent, encName)
	v := b.Get(key)
	if v == nil {
		return notFound("RemoveDirEntry", parent)
	}
	child := types.FileId(binary.BigEndian.Uint64(v))
	if err := b.Delete(key); err != nil {
		return err
	}
	rb := tx.Bucket([]byte(bucketDirByChild))
	return rb.Delete(dirByChildKey(parent, child))
}

func (s *BoltStore) LookupDirEntry(parent types.FileId, encName []byte) (types.FileId, error) {
	var child types.FileId
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDirEnt))
		v := b.Get(dirEntryKey(parent, encName))
		if v == nil {
			return notFound("LookupDirEntry", parent)
		}
		child = types.FileId(binary.BigEndian.Uint64(v))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return child, nil
}

func (s *BoltStore) IterDirEntries(parent types.FileId, visit DirEntryVisitor) error {
	prefix := dirPrefix(parent)
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDirEnt))
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			entry := types.DirEntry{
				ParentID: parent,
				EncName:  append([]byte(nil), k[8:]...),
				ChildID:  types.FileId(binary.BigEndian.Uint64(v)),
			}
			if !visit(entry) {
				break
			}
		}
		return nil
	})
}

func (s *BoltStore) GetXattr(id types.FileId, attrName []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketXattrs))
		v := b.Get(xattrKey(id, attrName))
		if v == nil {
			return notFound("GetXattr", id)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) ListXattr(id types.FileId) ([][]byte, error) {
	prefix := xattrPrefix(id)
	var names [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketXattrs))
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			names = append(names, append([]byte(nil), k[8:]...))
		}
		return nil
	})
	return names, err
}

func (s *BoltStore) GetSymlinkTarget(id types.FileId) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSymlinks))
		v := b.Get(fileIDKey(id))
		if v == nil {
			return notFound("GetSymlinkTarget", id)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) GetRawMeta(id types.FileId) (RawMeta, error) {
	var out RawMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRawMeta))
		v := b.Get(fileIDKey(id))
		if v == nil {
			return notFound("GetRawMeta", id)
		}
		decoded, err := decodeRawMeta(v)
		if err != nil {
			return err
		}
		out = decoded
		return nil
	})
	return out, err
}

func (s *BoltStore) SetRawMeta(id types.FileId, m RawMeta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRawMeta))
		return b.Put(fileIDKey(id), encodeRawMeta(m))
	})
}

func (s *BoltStore) DeleteRawMeta(id types.FileId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRawMeta))
		return b.Delete(fileIDKey(id))
	})
}

func (s *BoltStore) AllocateID() (types.FileId, error) {
	var id types.FileId
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCounters))
		next := uint64(types.RootFileId + 1)
		if v := b.Get(counterKey); v != nil {
			next = binary.BigEndian.Uint64(v)
		}
		id = types.FileId(next)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next+1)
		return b.Put(counterKey, buf[:])
	})
	if err != nil {
		return 0, bjerrors.Newf(bjerrors.IoError, "AllocateID", 0, err)
	}
	return id, nil
}

func (s *BoltStore) PeekNextID() (types.FileId, error) {
	var next uint64 = uint64(types.RootFileId + 1)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCounters))
		if v := b.Get(counterKey); v != nil {
			next = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return types.FileId(next), err
}

func (s *BoltStore) RaiseCounter(next types.FileId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCounters))
		cur := uint64(0)
		if v := b.Get(counterKey); v != nil {
			cur = binary.BigEndian.Uint64(v)
		}
		if uint64(next) <= cur {
			return nil
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(next))
		return b.Put(counterKey, buf[:])
	})
}

// Batch executes ops atomically in a single bbolt transaction (§4.2).
func (s *BoltStore) Batch(ops []Op) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			if err := applyOpTx(tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyOpTx(tx *bolt.Tx, op Op) error {
	switch op.Kind {
	case OpPutInode:
		return putInodeTx(tx, op.Inode)
	case OpDeleteInode:
		return deleteInodeTx(tx, op.FileID)
	case OpInsertDirEntry:
		return insertDirEntryTx(tx, op.ParentID, op.EncName, op.ChildID)
	case OpRemoveDirEntry:
		return removeDirEntryTx(tx, op.ParentID, op.EncName)
	case OpPutXattr:
		b := tx.Bucket([]byte(bucketXattrs))
		return b.Put(xattrKey(op.FileID, op.EncName), op.Value)
	case OpDeleteXattr:
		b := tx.Bucket([]byte(bucketXattrs))
		return b.Delete(xattrKey(op.FileID, op.EncName))
	case OpPutSymlinkTarget:
		b := tx.Bucket([]byte(bucketSymlinks))
		return b.Put(fileIDKey(op.FileID), op.Value)
	case OpDeleteSymlinkTarget:
		b := tx.Bucket([]byte(bucketSymlinks))
		return b.Delete(fileIDKey(op.FileID))
	case OpDeleteRawMeta:
		b := tx.Bucket([]byte(bucketRawMeta))
		return b.Delete(fileIDKey(op.FileID))
	default:
		return fmt.Errorf("metastore: unknown op kind %d", op.Kind)
	}
}

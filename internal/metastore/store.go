// Package metastore is the thin layer over the embedded KV engine that
// defines Bijou's logical tables (inodes, directory entries, xattrs,
// symlink targets, id allocator) and the atomic multi-key transitions
// the filesystem engine needs (§4.2).
//
// The KV engine itself is assumed (per spec.md §1) to provide atomic
// single-key put/get/delete, prefix iteration, and column-family-like
// namespace separation; this package is implemented against
// go.etcd.io/bbolt, whose buckets are exactly that namespace
// separation and whose Tx.Update gives the atomic multi-key commits
// Batch requires (see DESIGN.md).
package metastore

import (
	"bytes"
	"encoding/binary"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/types"
)

// Table names double as bbolt bucket names, giving the
// column-family-like separation the spec calls for by one-byte
// prefix; the bucket names are the single-letter prefixes from §4.2.
const (
	bucketInodes    = "I" // file_id -> encoded Inode
	bucketDirEnt    = "D" // parent_id || enc_name -> child_id
	bucketDirByChild = "d" // parent_id || child_id -> enc_name (reverse index of D)
	bucketXattrs    = "X" // file_id || attr_name -> value
	bucketSymlinks  = "S" // file_id -> target bytes (when not inlined)
	bucketCounters  = "C" // "next_file_id" -> uint64
	bucketRawMeta   = "M" // file_id -> size||mtime||atime (Tracking wrapper, §4.4)
)

var allBuckets = []string{
	bucketInodes, bucketDirEnt, bucketDirByChild, bucketXattrs,
	bucketSymlinks, bucketCounters, bucketRawMeta,
}

// counterKey is the sole key stored in bucketCounters.
var counterKey = []byte("next_file_id")

// RawMeta is the (size, mtime, atime) triple the Tracking raw-store
// wrapper persists on the store's behalf (§4.4 "Raw metadata triple").
// Defined once in internal/types so internal/rawstore can share the
// exact wire shape without importing internal/metastore.
type RawMeta = types.RawMeta

// DirEntryVisitor is called once per directory entry during
// IterDirEntries; returning false stops iteration early.
type DirEntryVisitor func(entry types.DirEntry) bool

// Store is the metadata store's capability surface (§4.2). Naming
// follows the spec's operation names directly.
type Store interface {
	GetInode(id types.FileId) (*types.Inode, error)
	PutInode(inode *types.Inode) error
	DeleteInode(id types.FileId) error

	InsertDirEntry(parent types.FileId, encName []byte, child types.FileId) error
	RemoveDirEntry(parent types.FileId, encName []byte) error
	IterDirEntries(parent types.FileId, visit DirEntryVisitor) error
	LookupDirEntry(parent types.FileId, encName []byte) (types.FileId, error)

	GetXattr(id types.FileId, attrName []byte) ([]byte, error)
	ListXattr(id types.FileId) ([][]byte, error)

	GetSymlinkTarget(id types.FileId) ([]byte, error)

	GetRawMeta(id types.FileId) (RawMeta, error)
	SetRawMeta(id types.FileId, m RawMeta) error
	DeleteRawMeta(id types.FileId) error

	// AllocateID hands out the next file id and persists the
	// allocator's high-water mark in the counters table atomically
	// with the allocation itself. This KV counter is the only
	// persisted allocator state that allocation updates; the
	// superblock's NextFileID is not flushed from it.
	AllocateID() (types.FileId, error)
	// PeekNextID reports the next id that would be allocated, without
	// allocating it; CollectOrphans and Statfs use it as the upper
	// bound of the allocated id space.
	PeekNextID() (types.FileId, error)
	// RaiseCounter ensures the persisted counter is at least next; it
	// never lowers it.
	RaiseCounter(next types.FileId) error

	// Batch executes a set of operations atomically (§4.2 "batch(ops)
	// atomic write of a set of puts/deletes"). Higher-level
	// transitions (Create, Rename, Unlink, Link) are built by the
	// filesystem engine as lists of the primitive Ops below.
	Batch(ops []Op) error

	Close() error
}

// OpKind enumerates the primitive mutations a Batch can contain.
type OpKind uint8

const (
	OpPutInode OpKind = iota
	OpDeleteInode
	OpInsertDirEntry
	OpRemoveDirEntry
	OpPutXattr
	OpDeleteXattr
	OpPutSymlinkTarget
	OpDeleteSymlinkTarget
	OpDeleteRawMeta
)

// Op is one primitive mutation inside a Batch. Only the fields
// relevant to Kind are read.
type Op struct {
	Kind OpKind

	Inode *types.Inode // OpPutInode

	FileID types.FileId // OpDeleteInode, OpPutXattr/Delete, OpPutSymlinkTarget/Delete, OpDeleteRawMeta

	ParentID types.FileId // OpInsertDirEntry, OpRemoveDirEntry
	EncName  []byte       // OpInsertDirEntry, OpRemoveDirEntry, OpPutXattr/Delete (attr name)
	ChildID  types.FileId // OpInsertDirEntry

	Value []byte // OpPutXattr, OpPutSymlinkTarget
}

func dirEntryKey(parent types.FileId, encName []byte) []byte {
	key := make([]byte, 8+len(encName))
	binary.BigEndian.PutUint64(key, uint64(parent))
	copy(key[8:], encName)
	return key
}

func dirByChildKey(parent, child types.FileId) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, uint64(parent))
	binary.BigEndian.PutUint64(key[8:], uint64(child))
	return key
}

func xattrKey(id types.FileId, attrName []byte) []byte {
	key := make([]byte, 8+len(attrName))
	binary.BigEndian.PutUint64(key, uint64(id))
	copy(key[8:], attrName)
	return key
}

func fileIDKey(id types.FileId) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func dirPrefix(parent types.FileId) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint64(p, uint64(parent))
	return p
}

func xattrPrefix(id types.FileId) []byte {
	return fileIDKey(id)
}

func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}

// notFound is a small helper to keep call sites in store_bbolt.go tidy.
func notFound(op string, id types.FileId) error {
	return bjerrors.Newf(bjerrors.NotFound, op, uint64(id), nil)
}

// Package rawstore implements the raw blob store abstraction (§4.4):
// the pluggable byte-container layer indexed by FileId that the
// content cipher engine reads and writes ciphertext records through,
// plus its composable wrappers (LocalDir, Clustered, Tracking, KVBlob,
// and the experimental ObjectStore).
package rawstore

import (
	"io"

	"github.com/bijoufs/bijou/internal/types"
)

// Handle is an open blob, supporting the random-access operations the
// content cipher engine needs (§4.4 "Contract").
type Handle interface {
	io.Closer
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
	SetLen(size int64) error
	Sync() error
}

// Store is the raw blob store's capability contract. Concrete stores
// are tagged variants (LocalDir, KVBlob, ObjectStore); decorators
// (Tracking, Clustered) hold an inner Store behind the same interface
// rather than using inheritance (§9 "Raw store polymorphism").
type Store interface {
	// Create idempotently ensures an empty blob exists for id.
	Create(id types.FileId) error
	// Open returns a handle for id. The blob must already exist
	// (created via Create).
	Open(id types.FileId) (Handle, error)
	// Unlink removes the blob for id. Unlinking a nonexistent blob is
	// not an error (idempotent, mirroring Create).
	Unlink(id types.FileId) error

	// MetaSupported reports whether GetMeta/SetMeta are implemented
	// natively. Stores that report false must be wrapped in Tracking
	// before the engine will accept them (§4.4 "Composition rule",
	// §9 "open question").
	MetaSupported() bool
	GetMeta(id types.FileId) (types.RawMeta, error)
	SetMeta(id types.FileId, m types.RawMeta) error
}

// Compose validates the construction-time capability rule the spec
// requires: any store declaring MetaSupported() == false must already
// be wrapped in Tracking (which always reports true) before the engine
// will use it. This resolves the open question in §9: "the source
// allows SplitFileSystem without TrackingFileSystem in some paths ...
// this spec requires pairing when meta is unsupported and rejects
// misconfiguration at construction."
func Compose(store Store) (Store, error) {
	if !store.MetaSupported() {
		return nil, ErrMetaRequiresTracking
	}
	return store, nil
}

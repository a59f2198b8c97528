package rawstore

import (
	"fmt"

	"github.com/bijoufs/bijou/internal/types"
)

// DefaultClusterSize is the default number of fixed-size records grouped into
// one cluster file/key by Clustered (§4.4 "Clustered").
const DefaultClusterSize = 1024

// Clustered splits a logical blob into fixed-count clusters of
// clusterSize records, each cluster itself a blob in inner, addressed
// by a synthesized cluster id derived from the logical id and cluster
// index. This amortizes the per-blob overhead of small-object stores
// such as KVBlob (§4.4 "Clustered"). inner must support metadata
// natively (wrap it in Tracking first if it doesn't); Clustered itself
// never reports native support, since per-logical-id size/mtime/atime
// cannot be derived from the cluster blobs alone.
type Clustered struct {
	inner       Store
	clusterSize uint32
	recordSize  int64
}

// NewClustered wraps inner, which must satisfy MetaSupported() (pair
// it with Tracking first otherwise). recordSize is the fixed size, in
// bytes, of each record the content engine writes (content.RecordSizeFor);
// clusterSize is the number of records per cluster. Handles address
// their caller's records at byte offsets of blockIndex*recordSize, so
// the byte span of one cluster is clusterSize*recordSize bytes.
func NewClustered(inner Store, clusterSize uint32, recordSize int64) (*Clustered, error) {
	if !inner.MetaSupported() {
		return nil, ErrMetaRequiresTracking
	}
	if clusterSize == 0 {
		clusterSize = DefaultClusterSize
	}
	if recordSize <= 0 {
		return nil, fmt.Errorf("rawstore: NewClustered: recordSize must be positive, got %d", recordSize)
	}
	return &Clustered{inner: inner, clusterSize: clusterSize, recordSize: recordSize}, nil
}

// clusterID derives a stable per-(logical id, cluster index) id for
// the inner store: top byte 0xFF keeps clustered ids out of the
// logical FileId namespace, next 24 bits hold the cluster index, low
// 32 bits hold the logical id truncated. Logical ids that agree in
// their low 32 bits map to the same cluster ids.
func clusterID(id types.FileId, cluster uint32) types.FileId {
	return types.FileId(uint64(0xFF)<<56 | uint64(cluster&0xFFFFFF)<<32 | uint64(id)&0xFFFFFFFF)
}

func (c *Clustered) Create(id types.FileId) error {
	return c.inner.Create(clusterID(id, 0))
}

func (c *Clustered) Open(id types.FileId) (Handle, error) {
	return &clusteredHandle{store: c.inner, id: id, clusterSize: c.clusterSize, recordSize: c.recordSize, openClusters: map[uint32]Handle{}}, nil
}

func (c *Clustered) Unlink(id types.FileId) error {
	for cluster := uint32(0); ; cluster++ {
		err := c.inner.Unlink(clusterID(id, cluster))
		if err != nil && err != ErrNotFound {
			return fmt.Errorf("rawstore: Clustered.Unlink: %w", err)
		}
		if _, gerr := c.inner.GetMeta(clusterID(id, cluster)); gerr == ErrNotFound && cluster > 0 {
			break
		}
		if cluster > 1<<16 {
			break
		}
	}
	return nil
}

func (c *Clustered) MetaSupported() bool { return false }

func (c *Clustered) GetMeta(types.FileId) (types.RawMeta, error) {
	return types.RawMeta{}, fmt.Errorf("rawstore: Clustered does not support metadata natively")
}

func (c *Clustered) SetMeta(types.FileId, types.RawMeta) error {
	return fmt.Errorf("rawstore: Clustered does not support metadata natively")
}

type clusteredHandle struct {
	store        Store
	id           types.FileId
	clusterSize  uint32
	recordSize   int64
	openClusters map[uint32]Handle
}

// clusterFor maps a byte offset (always a multiple of recordSize, per
// the content engine's record-aligned ReadAt/WriteAt) to the cluster
// that holds it and the byte offset within that cluster's own blob.
func (h *clusteredHandle) clusterFor(offset int64) (cluster uint32, within int64) {
	clusterBytes := int64(h.clusterSize) * h.recordSize
	cluster = uint32(offset / clusterBytes)
	within = offset % clusterBytes
	return
}

func (h *clusteredHandle) handleFor(cluster uint32) (Handle, error) {
	if hd, ok := h.openClusters[cluster]; ok {
		return hd, nil
	}
	cid := clusterID(h.id, cluster)
	if err := h.store.Create(cid); err != nil {
		return nil, err
	}
	hd, err := h.store.Open(cid)
	if err != nil {
		return nil, err
	}
	h.openClusters[cluster] = hd
	return hd, nil
}

func (h *clusteredHandle) ReadAt(buf []byte, offset int64) (int, error) {
	cluster, within := h.clusterFor(offset)
	hd, err := h.handleFor(cluster)
	if err != nil {
		return 0, err
	}
	return hd.ReadAt(buf, within)
}

func (h *clusteredHandle) WriteAt(buf []byte, offset int64) (int, error) {
	cluster, within := h.clusterFor(offset)
	hd, err := h.handleFor(cluster)
	if err != nil {
		return 0, err
	}
	return hd.WriteAt(buf, within)
}

func (h *clusteredHandle) SetLen(size int64) error {
	lastCluster, within := h.clusterFor(size)
	hd, err := h.handleFor(lastCluster)
	if err != nil {
		return err
	}
	return hd.SetLen(within)
}

func (h *clusteredHandle) Sync() error {
	for _, hd := range h.openClusters {
		if err := hd.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (h *clusteredHandle) Close() error {
	for _, hd := range h.openClusters {
		if err := hd.Close(); err != nil {
			return err
		}
	}
	return nil
}

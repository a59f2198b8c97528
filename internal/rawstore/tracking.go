package rawstore

import (
	"fmt"
	"time"

	"github.com/bijoufs/bijou/internal/types"
)

// MetaPersister is the narrow slice of the metadata store Tracking
// needs: a place to record the (size, mtime, atime) triple for stores
// that can't report it themselves (§4.4 "Tracking"). metastore.Store
// satisfies this directly.
type MetaPersister interface {
	GetRawMeta(id types.FileId) (types.RawMeta, error)
	SetRawMeta(id types.FileId, m types.RawMeta) error
	DeleteRawMeta(id types.FileId) error
}

// Tracking decorates a Store that cannot report metadata natively,
// synthesizing it from state recorded in the metadata store and
// updating that state on every WriteAt, SetLen, and explicit SetMeta
// (§4.4 "Tracking").
type Tracking struct {
	inner Store
	meta  MetaPersister
}

// NewTracking wraps inner, recording metadata via meta. inner's own
// MetaSupported value is ignored: Tracking always reports true,
// regardless of whether the store underneath already had native
// support (wrapping a store that already supports meta is harmless,
// just redundant bookkeeping).
func NewTracking(inner Store, meta MetaPersister) *Tracking {
	return &Tracking{inner: inner, meta: meta}
}

func (t *Tracking) Create(id types.FileId) error {
	if err := t.inner.Create(id); err != nil {
		return err
	}
	now := time.Now().UTC()
	return t.meta.SetRawMeta(id, types.RawMeta{Size: 0, Mtime: now, Atime: now})
}

func (t *Tracking) Open(id types.FileId) (Handle, error) {
	inner, err := t.inner.Open(id)
	if err != nil {
		return nil, err
	}
	return &trackingHandle{Handle: inner, id: id, meta: t.meta}, nil
}

func (t *Tracking) Unlink(id types.FileId) error {
	if err := t.inner.Unlink(id); err != nil {
		return err
	}
	if err := t.meta.DeleteRawMeta(id); err != nil {
		return fmt.Errorf("rawstore: Tracking.Unlink: %w", err)
	}
	return nil
}

func (t *Tracking) MetaSupported() bool { return true }

func (t *Tracking) GetMeta(id types.FileId) (types.RawMeta, error) {
	return t.meta.GetRawMeta(id)
}

func (t *Tracking) SetMeta(id types.FileId, m types.RawMeta) error {
	return t.meta.SetRawMeta(id, m)
}

type trackingHandle struct {
	Handle
	id   types.FileId
	meta MetaPersister
}

func (h *trackingHandle) WriteAt(buf []byte, offset int64) (int, error) {
	n, err := h.Handle.WriteAt(buf, offset)
	if err != nil {
		return n, err
	}
	end := uint64(offset) + uint64(n)
	m, gerr := h.meta.GetRawMeta(h.id)
	if gerr != nil {
		m = types.RawMeta{}
	}
	if end > m.Size {
		m.Size = end
	}
	m.Mtime = time.Now().UTC()
	if serr := h.meta.SetRawMeta(h.id, m); serr != nil {
		return n, fmt.Errorf("rawstore: Tracking: recording meta: %w", serr)
	}
	return n, nil
}

func (h *trackingHandle) SetLen(size int64) error {
	if err := h.Handle.SetLen(size); err != nil {
		return err
	}
	m, err := h.meta.GetRawMeta(h.id)
	if err != nil {
		m = types.RawMeta{}
	}
	m.Size = uint64(size)
	m.Mtime = time.Now().UTC()
	return h.meta.SetRawMeta(h.id, m)
}

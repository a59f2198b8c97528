package rawstore

import (
	"sync"
	"time"

	"github.com/bijoufs/bijou/internal/types"
)

// ObjectStore is the experimental raw store variant the spec reserves
// for a future cloud-object backend (§4.4 "ObjectStore (experimental)").
// This package ships only the interface contract plus an in-memory
// reference implementation exercising it end to end; see DESIGN.md for
// why no cloud SDK is wired against it yet. A real object-storage
// binding (S3, GCS, Azure Blob) implements the same ObjectStore
// interface and can be substituted without touching callers.
type ObjectStore interface {
	Store
	// PutObject and GetObject expose the whole-object semantics a real
	// object store natively offers, which Store's handle-oriented
	// ReadAt/WriteAt approximates via byte-range requests.
	PutObject(id types.FileId, data []byte) error
	GetObject(id types.FileId) ([]byte, error)
}

// MemObjectStore is an in-memory ObjectStore used for tests and as a
// stand-in until a real backend is wired.
type MemObjectStore struct {
	mu      sync.Mutex
	objects map[types.FileId][]byte
	meta    map[types.FileId]types.RawMeta
}

func NewMemObjectStore() *MemObjectStore {
	return &MemObjectStore{
		objects: map[types.FileId][]byte{},
		meta:    map[types.FileId]types.RawMeta{},
	}
}

func (m *MemObjectStore) Create(id types.FileId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; ok {
		return nil
	}
	m.objects[id] = nil
	now := time.Now().UTC()
	m.meta[id] = types.RawMeta{Mtime: now, Atime: now}
	return nil
}

func (m *MemObjectStore) Open(id types.FileId) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return nil, ErrNotFound
	}
	return &memObjectHandle{store: m, id: id}, nil
}

func (m *MemObjectStore) Unlink(id types.FileId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	delete(m.meta, id)
	return nil
}

func (m *MemObjectStore) MetaSupported() bool { return true }

func (m *MemObjectStore) GetMeta(id types.FileId) (types.RawMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[id]
	if !ok {
		return types.RawMeta{}, ErrNotFound
	}
	meta.Size = uint64(len(m.objects[id]))
	return meta, nil
}

func (m *MemObjectStore) SetMeta(id types.FileId, meta types.RawMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return ErrNotFound
	}
	m.meta[id] = meta
	return nil
}

func (m *MemObjectStore) PutObject(id types.FileId, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return ErrNotFound
	}
	cp := append([]byte(nil), data...)
	m.objects[id] = cp
	meta := m.meta[id]
	meta.Size = uint64(len(cp))
	meta.Mtime = time.Now().UTC()
	m.meta[id] = meta
	return nil
}

func (m *MemObjectStore) GetObject(id types.FileId) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

type memObjectHandle struct {
	store *MemObjectStore
	id    types.FileId
}

func (h *memObjectHandle) ReadAt(buf []byte, offset int64) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	v := h.store.objects[h.id]
	if offset >= int64(len(v)) {
		return 0, nil
	}
	return copy(buf, v[offset:]), nil
}

func (h *memObjectHandle) WriteAt(buf []byte, offset int64) (int, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	v := h.store.objects[h.id]
	need := offset + int64(len(buf))
	if int64(len(v)) < need {
		grown := make([]byte, need)
		copy(grown, v)
		v = grown
	}
	copy(v[offset:], buf)
	h.store.objects[h.id] = v
	meta := h.store.meta[h.id]
	meta.Size = uint64(len(v))
	meta.Mtime = time.Now().UTC()
	h.store.meta[h.id] = meta
	return len(buf), nil
}

func (h *memObjectHandle) SetLen(size int64) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	v := h.store.objects[h.id]
	grown := make([]byte, size)
	copy(grown, v)
	h.store.objects[h.id] = grown
	return nil
}

func (h *memObjectHandle) Sync() error { return nil }

func (h *memObjectHandle) Close() error { return nil }

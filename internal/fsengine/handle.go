package fsengine

import (
	"errors"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
)

// Open flags, mirroring the host-facing contract's subset relevant to
// the engine (read/write gating; the mount adapter handles the rest).
const (
	OFlagRead  uint32 = 1 << 0
	OFlagWrite uint32 = 1 << 1
)

// Open pins fileID for the duration of a handle, returning a handle id
// the caller uses for subsequent Read/Write/Flush/Release calls (§4.5
// "Open handles").
func (b *Bijou) Open(path string, flags uint32) (uint64, *types.Inode, error) {
	inode, err := b.Lookup(path)
	if err != nil {
		return 0, nil, err
	}
	if inode.Kind == types.KindDirectory {
		return 0, nil, bjerrors.New(bjerrors.IsDirectory, "fsengine.Open")
	}
	return b.openInode(inode, flags), inode, nil
}

func (b *Bijou) openInode(inode *types.Inode, flags uint32) uint64 {
	b.refsMu.Lock()
	b.refcount[inode.FileID]++
	b.refsMu.Unlock()

	b.handlesMu.Lock()
	b.nextHandle++
	id := b.nextHandle
	b.handles[id] = &openHandle{fileID: inode.FileID, flags: flags}
	b.handlesMu.Unlock()
	return id
}

func (b *Bijou) handleFor(handleID uint64) (*openHandle, error) {
	b.handlesMu.Lock()
	h, ok := b.handles[handleID]
	b.handlesMu.Unlock()
	if !ok {
		return nil, bjerrors.New(bjerrors.NotFound, "fsengine: unknown handle")
	}
	return h, nil
}

// Release closes a handle, decrementing its inode's refcount. If the
// inode is an orphan (nlink already zero) and this was the last open
// handle, the inode and its xattrs are deleted in one metadata batch
// and its raw blob is then unlinked (§4.5 "Open handles").
func (b *Bijou) Release(handleID uint64) error {
	h, err := b.handleFor(handleID)
	if err != nil {
		return err
	}
	b.handlesMu.Lock()
	delete(b.handles, handleID)
	b.handlesMu.Unlock()

	unlock := b.lockAscending(h.fileID)
	defer unlock()

	b.refsMu.Lock()
	b.refcount[h.fileID]--
	remaining := b.refcount[h.fileID]
	if remaining <= 0 {
		delete(b.refcount, h.fileID)
	}
	b.refsMu.Unlock()

	if remaining > 0 {
		return nil
	}

	inode, err := b.meta.GetInode(h.fileID)
	if err != nil {
		if bjerrors.Is(err, bjerrors.NotFound) {
			return nil
		}
		return err
	}
	if !inode.IsOrphan() {
		return nil
	}
	return b.collectOrphan(inode)
}

// Flush is a no-op beyond syncing the raw store handle, since every
// write is already durable to the raw store by the time WriteAt
// returns (§6 "Engine API").
func (b *Bijou) Flush(handleID uint64) error {
	h, err := b.handleFor(handleID)
	if err != nil {
		return err
	}
	inode, err := b.meta.GetInode(h.fileID)
	if err != nil {
		return err
	}
	if !inode.EncryptsBody() {
		return nil
	}
	raw, err := b.raw.Open(h.fileID)
	if err != nil {
		if errors.Is(err, rawstore.ErrNotFound) {
			return nil
		}
		return bjerrors.Newf(bjerrors.IoError, "fsengine.Flush", uint64(h.fileID), err)
	}
	defer raw.Close()
	if err := raw.Sync(); err != nil {
		return bjerrors.Newf(bjerrors.IoError, "fsengine.Flush", uint64(h.fileID), err)
	}
	return nil
}

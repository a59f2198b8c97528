package fsengine

import (
	"sync/atomic"
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/types"
)

// Read decrypts up to len(buf) bytes of handleID's file starting at
// offset (§4.3 "Addressing"). Reads do not update atime.
func (b *Bijou) Read(handleID uint64, buf []byte, offset int64) (int, error) {
	h, err := b.handleFor(handleID)
	if err != nil {
		return 0, err
	}
	lock := b.lockFor(h.fileID)
	lock.RLock()
	defer lock.RUnlock()

	inode, err := b.meta.GetInode(h.fileID)
	if err != nil {
		return 0, err
	}
	if !inode.EncryptsBody() {
		return 0, nil
	}
	raw, err := b.raw.Open(h.fileID)
	if err != nil {
		return 0, bjerrors.Newf(bjerrors.IoError, "fsengine.Read", uint64(h.fileID), err)
	}
	defer raw.Close()

	eng, err := b.newContentEngine(inode)
	if err != nil {
		return 0, bjerrors.Newf(bjerrors.IoError, "fsengine.Read", uint64(h.fileID), err)
	}
	n, err := eng.ReadAt(raw, h.fileID, inode.Size, buf, offset)
	if err != nil {
		if bjerrors.Is(err, bjerrors.DataCorruption) {
			b.noteDataCorruption()
		}
		return n, err
	}
	return n, nil
}

func (b *Bijou) noteDataCorruption() {
	atomic.AddUint64(&b.dataCorruptions, 1)
}

// Write encrypts buf into handleID's file at offset, then records the
// new size and mtime/ctime in the inode (§4.3 "Writes").
func (b *Bijou) Write(handleID uint64, buf []byte, offset int64) (int, error) {
	h, err := b.handleFor(handleID)
	if err != nil {
		return 0, err
	}
	lock := b.lockFor(h.fileID)
	lock.Lock()
	defer lock.Unlock()

	inode, err := b.meta.GetInode(h.fileID)
	if err != nil {
		return 0, err
	}
	if !inode.EncryptsBody() {
		return 0, bjerrors.New(bjerrors.InvalidName, "fsengine.Write")
	}
	raw, err := b.raw.Open(h.fileID)
	if err != nil {
		return 0, bjerrors.Newf(bjerrors.IoError, "fsengine.Write", uint64(h.fileID), err)
	}
	defer raw.Close()

	eng, err := b.newContentEngine(inode)
	if err != nil {
		return 0, bjerrors.Newf(bjerrors.IoError, "fsengine.Write", uint64(h.fileID), err)
	}
	n, newSize, err := eng.WriteAt(raw, h.fileID, inode.Size, buf, offset)
	if err != nil {
		return n, err
	}

	if n > 0 {
		now := time.Now().UTC()
		updated := *inode
		updated.Size = newSize
		updated.Mtime = now
		updated.Ctime = now
		if err := b.meta.PutInode(&updated); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Truncate resizes a file's content to size (§4.3 "Truncate").
func (b *Bijou) Truncate(path string, size uint64) error {
	inode, err := b.Lookup(path)
	if err != nil {
		return err
	}
	lock := b.lockFor(inode.FileID)
	lock.Lock()
	defer lock.Unlock()

	if !inode.EncryptsBody() {
		return bjerrors.New(bjerrors.InvalidName, "fsengine.Truncate")
	}
	if size == inode.Size {
		return nil
	}

	raw, err := b.raw.Open(inode.FileID)
	if err != nil {
		return bjerrors.Newf(bjerrors.IoError, "fsengine.Truncate", uint64(inode.FileID), err)
	}
	defer raw.Close()

	eng, err := b.newContentEngine(inode)
	if err != nil {
		return bjerrors.Newf(bjerrors.IoError, "fsengine.Truncate", uint64(inode.FileID), err)
	}
	if size < inode.Size {
		if err := eng.Truncate(raw, inode.FileID, inode.Size, size); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	updated := *inode
	updated.Size = size
	updated.Mtime = now
	updated.Ctime = now
	return b.meta.PutInode(&updated)
}

// Attrs is the subset of inode attributes SetAttr can change (§4.5
// "Timestamps": "ctime on metadata change").
type Attrs struct {
	Permissions *uint32
	UID         *uint32
	GID         *uint32
	Atime       *time.Time
	Mtime       *time.Time
}

// GetAttr returns the resolved inode for path (§6 "Engine API").
func (b *Bijou) GetAttr(path string) (*types.Inode, error) {
	return b.Lookup(path)
}

// SetAttr applies attrs to path's inode, bumping ctime (§4.5
// "Timestamps").
func (b *Bijou) SetAttr(path string, attrs Attrs) (*types.Inode, error) {
	inode, err := b.Lookup(path)
	if err != nil {
		return nil, err
	}
	lock := b.lockFor(inode.FileID)
	lock.Lock()
	defer lock.Unlock()

	current, err := b.meta.GetInode(inode.FileID)
	if err != nil {
		return nil, err
	}
	updated := *current
	if attrs.Permissions != nil {
		updated.Permissions = *attrs.Permissions
	}
	if attrs.UID != nil {
		updated.UID = *attrs.UID
	}
	if attrs.GID != nil {
		updated.GID = *attrs.GID
	}
	if attrs.Atime != nil {
		updated.Atime = *attrs.Atime
	}
	if attrs.Mtime != nil {
		updated.Mtime = *attrs.Mtime
	}
	updated.Ctime = time.Now().UTC()
	if err := b.meta.PutInode(&updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

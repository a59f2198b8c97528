package fsengine

import (
	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/types"
)

// collectOrphan deletes an inode already confirmed to be an orphan
// with no remaining handle reference: its metadata record, its xattrs
// and (for non-inlined symlinks) its symlink target are removed in one
// atomic batch, after which its raw blob is unlinked (§3 "Ownership
// and lifecycle").
func (b *Bijou) collectOrphan(inode *types.Inode) error {
	ops := []metastore.Op{
		{Kind: metastore.OpDeleteInode, FileID: inode.FileID},
	}
	attrNames, err := b.meta.ListXattr(inode.FileID)
	if err != nil {
		return err
	}
	for _, attrName := range attrNames {
		ops = append(ops, metastore.Op{Kind: metastore.OpDeleteXattr, FileID: inode.FileID, EncName: attrName})
	}
	if inode.Kind == types.KindSymlink && !inode.HasInlineTarget {
		ops = append(ops, metastore.Op{Kind: metastore.OpDeleteSymlinkTarget, FileID: inode.FileID})
	}
	if err := b.meta.Batch(ops); err != nil {
		return err
	}
	if inode.EncryptsBody() {
		if err := b.raw.Unlink(inode.FileID); err != nil {
			return bjerrors.Newf(bjerrors.IoError, "fsengine.collectOrphan", uint64(inode.FileID), err)
		}
	}
	return nil
}

// CollectOrphans scans file ids from RootFileId+1 up to the
// allocator's high-water mark, deleting any inode marked orphan that
// has no live handle reference, as required at mount time (§4.5 "Link
// count and orphan handling": "On mount, orphans with zero handles are
// garbage-collected").
//
// This is a linear scan over the allocated id space rather than a
// dedicated orphan index; acceptable because it runs once per mount,
// not per operation.
func (b *Bijou) CollectOrphans() (int, error) {
	next, err := b.meta.PeekNextID()
	if err != nil {
		return 0, err
	}
	collected := 0
	for id := types.RootFileId + 1; id < next; id++ {
		inode, err := b.meta.GetInode(id)
		if err != nil {
			if bjerrors.Is(err, bjerrors.NotFound) {
				continue
			}
			return collected, err
		}
		if !inode.IsOrphan() {
			continue
		}
		b.refsMu.Lock()
		refs := b.refcount[id]
		b.refsMu.Unlock()
		if refs > 0 {
			continue
		}
		if err := b.collectOrphan(inode); err != nil {
			return collected, err
		}
		collected++
	}
	return collected, nil
}

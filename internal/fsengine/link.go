package fsengine

import (
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/types"
)

// Link creates a new directory entry pointing at target's inode and
// increments its nlink. Only valid for non-directories (§4.5 "Link
// count and orphan handling").
func (b *Bijou) Link(targetPath, newPath string) (*types.Inode, error) {
	target, err := b.LookupNoFollow(targetPath)
	if err != nil {
		return nil, err
	}
	if target.Kind == types.KindDirectory {
		return nil, bjerrors.New(bjerrors.IsDirectory, "fsengine.Link")
	}
	parent, name, err := b.resolveParent(newPath)
	if err != nil {
		return nil, err
	}

	unlock := b.lockAscending(parent.FileID, target.FileID)
	defer unlock()

	encName, err := b.encodeName(parent.FileID, name)
	if err != nil {
		return nil, err
	}
	if _, err := b.meta.LookupDirEntry(parent.FileID, encName); err == nil {
		return nil, bjerrors.New(bjerrors.AlreadyExists, "fsengine.Link")
	}

	current, err := b.meta.GetInode(target.FileID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	updated := *current
	updated.Nlink++
	updated.Ctime = now

	parentUpdate := *parent
	parentUpdate.Mtime = now
	parentUpdate.Ctime = now

	ops := []metastore.Op{
		{Kind: metastore.OpInsertDirEntry, ParentID: parent.FileID, EncName: encName, ChildID: target.FileID},
		{Kind: metastore.OpPutInode, Inode: &updated},
		{Kind: metastore.OpPutInode, Inode: &parentUpdate},
	}
	if err := b.meta.Batch(ops); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Unlink removes a directory entry, decrementing the target's nlink.
// If nlink reaches zero and no handle references the inode, its raw
// blob is unlinked and the inode and its xattrs are then deleted in
// the same batch as the entry removal; if handles remain open, the
// inode is marked orphan and deletion is deferred to the last Release
// (§4.5 "Link count and orphan handling").
func (b *Bijou) Unlink(path string) error {
	parent, name, err := b.resolveParent(path)
	if err != nil {
		return err
	}
	encName, err := b.encodeName(parent.FileID, name)
	if err != nil {
		return err
	}
	childID, err := b.meta.LookupDirEntry(parent.FileID, encName)
	if err != nil {
		return err
	}

	unlock := b.lockAscending(parent.FileID, childID)
	defer unlock()

	return b.unlinkLocked(parent, encName, childID)
}

// unlinkLocked performs the unlink transition; callers must already
// hold locks on parent.FileID and childID in ascending order.
func (b *Bijou) unlinkLocked(parent *types.Inode, encName []byte, childID types.FileId) error {
	child, err := b.meta.GetInode(childID)
	if err != nil {
		return err
	}
	if child.Kind == types.KindDirectory {
		return bjerrors.New(bjerrors.IsDirectory, "fsengine.Unlink")
	}

	now := time.Now().UTC()
	updated := *child
	updated.Nlink--
	updated.Ctime = now

	parentUpdate := *parent
	parentUpdate.Mtime = now
	parentUpdate.Ctime = now

	ops := []metastore.Op{
		{Kind: metastore.OpRemoveDirEntry, ParentID: parent.FileID, EncName: encName},
		{Kind: metastore.OpPutInode, Inode: &parentUpdate},
	}

	b.refsMu.Lock()
	openRefs := b.refcount[childID]
	b.refsMu.Unlock()

	if updated.Nlink == 0 && openRefs == 0 {
		ops = append(ops, metastore.Op{Kind: metastore.OpDeleteInode, FileID: childID})
		attrNames, err := b.meta.ListXattr(childID)
		if err != nil {
			return err
		}
		for _, attrName := range attrNames {
			ops = append(ops, metastore.Op{Kind: metastore.OpDeleteXattr, FileID: childID, EncName: attrName})
		}
		if child.EncryptsBody() {
			if err := b.raw.Unlink(childID); err != nil {
				return bjerrors.Newf(bjerrors.IoError, "fsengine.Unlink", uint64(childID), err)
			}
		}
		if !child.HasInlineTarget && child.Kind == types.KindSymlink {
			ops = append(ops, metastore.Op{Kind: metastore.OpDeleteSymlinkTarget, FileID: childID})
		}
	} else {
		updated.Flags |= types.FlagOrphan * boolToFlag(updated.Nlink == 0)
		ops = append(ops, metastore.Op{Kind: metastore.OpPutInode, Inode: &updated})
	}

	return b.meta.Batch(ops)
}

func boolToFlag(v bool) types.InodeFlags {
	if v {
		return 1
	}
	return 0
}

// Rename moves a directory entry, handling same-entry no-ops,
// destination replacement (matching kind, empty if a directory), and
// forbidding moving a directory into its own descendant (§4.5
// "rename").
func (b *Bijou) Rename(srcPath, dstPath string) error {
	srcParent, srcName, err := b.resolveParent(srcPath)
	if err != nil {
		return err
	}
	dstParent, dstName, err := b.resolveParent(dstPath)
	if err != nil {
		return err
	}

	srcEnc, err := b.encodeName(srcParent.FileID, srcName)
	if err != nil {
		return err
	}
	dstEnc, err := b.encodeName(dstParent.FileID, dstName)
	if err != nil {
		return err
	}

	if srcParent.FileID == dstParent.FileID && string(srcEnc) == string(dstEnc) {
		return nil
	}

	unlock := b.lockAscending(srcParent.FileID, dstParent.FileID)
	defer unlock()

	srcChildID, err := b.meta.LookupDirEntry(srcParent.FileID, srcEnc)
	if err != nil {
		return err
	}
	srcChild, err := b.meta.GetInode(srcChildID)
	if err != nil {
		return err
	}

	if srcChild.Kind == types.KindDirectory {
		if err := b.forbidDescendantMove(srcChildID, dstParent.FileID); err != nil {
			return err
		}
	}

	dstChildID, lookupErr := b.meta.LookupDirEntry(dstParent.FileID, dstEnc)
	now := time.Now().UTC()
	srcParentUpdate := *srcParent
	srcParentUpdate.Mtime = now
	srcParentUpdate.Ctime = now
	dstParentUpdate := *dstParent
	dstParentUpdate.Mtime = now
	dstParentUpdate.Ctime = now

	if lookupErr == nil {
		dstChild, err := b.meta.GetInode(dstChildID)
		if err != nil {
			return err
		}
		if dstChild.Kind != srcChild.Kind {
			return bjerrors.New(bjerrors.InvalidName, "fsengine.Rename")
		}
		if dstChild.Kind == types.KindDirectory {
			empty := true
			if err := b.meta.IterDirEntries(dstChildID, func(types.DirEntry) bool {
				empty = false
				return false
			}); err != nil {
				return err
			}
			if !empty {
				return bjerrors.New(bjerrors.DirectoryNotEmpty, "fsengine.Rename")
			}
			// Directories never have more than one parent entry (§3),
			// so replacing one is a straight remove, unlike
			// unlinkLocked's nlink bookkeeping for hard-linkable kinds.
			if err := b.meta.Batch([]metastore.Op{
				{Kind: metastore.OpRemoveDirEntry, ParentID: dstParent.FileID, EncName: dstEnc},
				{Kind: metastore.OpDeleteInode, FileID: dstChildID},
			}); err != nil {
				return err
			}
		} else if err := b.unlinkLocked(dstParent, dstEnc, dstChildID); err != nil {
			return err
		}
	}

	ops := []metastore.Op{
		{Kind: metastore.OpRemoveDirEntry, ParentID: srcParent.FileID, EncName: srcEnc},
		{Kind: metastore.OpInsertDirEntry, ParentID: dstParent.FileID, EncName: dstEnc, ChildID: srcChildID},
		{Kind: metastore.OpPutInode, Inode: &srcParentUpdate},
	}
	if dstParent.FileID != srcParent.FileID {
		ops = append(ops, metastore.Op{Kind: metastore.OpPutInode, Inode: &dstParentUpdate})
	}
	if srcChild.Kind == types.KindDirectory && srcChild.ParentID != dstParent.FileID {
		movedChild := *srcChild
		movedChild.ParentID = dstParent.FileID
		movedChild.Ctime = now
		ops = append(ops, metastore.Op{Kind: metastore.OpPutInode, Inode: &movedChild})
	}
	return b.meta.Batch(ops)
}

// forbidDescendantMove walks upward from candidateAncestor towards the
// root, failing if it encounters movingDir (§4.5 "rename": "Forbid
// moving a directory into its own descendant").
func (b *Bijou) forbidDescendantMove(movingDir, candidateAncestor types.FileId) error {
	current := candidateAncestor
	for current != types.RootFileId {
		if current == movingDir {
			return bjerrors.New(bjerrors.InvalidName, "fsengine.Rename")
		}
		parentID, err := b.parentOf(current)
		if err != nil {
			return err
		}
		current = parentID
	}
	if current == movingDir {
		return bjerrors.New(bjerrors.InvalidName, "fsengine.Rename")
	}
	return nil
}

// parentOf returns id's containing directory, read directly off the
// directory inode's ParentID field (directories have exactly one
// parent, §3 invariant).
func (b *Bijou) parentOf(id types.FileId) (types.FileId, error) {
	inode, err := b.meta.GetInode(id)
	if err != nil {
		return 0, err
	}
	if inode.Kind != types.KindDirectory || id == types.RootFileId {
		return types.RootFileId, nil
	}
	return inode.ParentID, nil
}

// Symlink creates a symlink inode whose target is inlined in the
// inode if short, or stored in the metadata store's symlink-target
// table otherwise (§3 "Symlink target").
func (b *Bijou) Symlink(target, newPath string, uid, gid uint32) (*types.Inode, error) {
	parent, name, err := b.resolveParent(newPath)
	if err != nil {
		return nil, err
	}
	unlock := b.lockAscending(parent.FileID)
	defer unlock()

	encName, err := b.encodeName(parent.FileID, name)
	if err != nil {
		return nil, err
	}
	if _, err := b.meta.LookupDirEntry(parent.FileID, encName); err == nil {
		return nil, bjerrors.New(bjerrors.AlreadyExists, "fsengine.Symlink")
	}

	id, err := b.meta.AllocateID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	child := &types.Inode{
		FileID:      id,
		Kind:        types.KindSymlink,
		Permissions: 0o777,
		UID:         uid,
		GID:         gid,
		Nlink:       1,
		Size:        uint64(len(target)),
		Atime:       now,
		Mtime:       now,
		Ctime:       now,
	}

	const inlineThreshold = 255
	ops := []metastore.Op{}
	if len(target) <= inlineThreshold {
		child.HasInlineTarget = true
		child.InlineSymlinkTarget = []byte(target)
	} else {
		ops = append(ops, metastore.Op{Kind: metastore.OpPutSymlinkTarget, FileID: id, Value: []byte(target)})
	}

	parentUpdate := *parent
	parentUpdate.Mtime = now
	parentUpdate.Ctime = now

	ops = append(ops,
		metastore.Op{Kind: metastore.OpPutInode, Inode: child},
		metastore.Op{Kind: metastore.OpInsertDirEntry, ParentID: parent.FileID, EncName: encName, ChildID: id},
		metastore.Op{Kind: metastore.OpPutInode, Inode: &parentUpdate},
	)
	if err := b.meta.Batch(ops); err != nil {
		return nil, err
	}
	return child, nil
}

// Readlink returns a symlink's target without following it (§6
// "Engine API").
func (b *Bijou) Readlink(path string) (string, error) {
	inode, err := b.LookupNoFollow(path)
	if err != nil {
		return "", err
	}
	if inode.Kind != types.KindSymlink {
		return "", bjerrors.New(bjerrors.InvalidName, "fsengine.Readlink")
	}
	target, err := b.readSymlinkTarget(inode)
	if err != nil {
		return "", err
	}
	return string(target), nil
}

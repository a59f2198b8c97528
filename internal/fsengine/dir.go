package fsengine

import (
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	bjcrypto "github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/types"
)

// Create allocates a new regular-file inode under parent/name and
// inserts its directory entry atomically (§4.2 "create(parent, name,
// inode)").
func (b *Bijou) Create(path string, mode uint32, uid, gid uint32) (*types.Inode, error) {
	parent, name, err := b.resolveParent(path)
	if err != nil {
		return nil, err
	}
	unlock := b.lockAscending(parent.FileID)
	defer unlock()

	return b.createChild(parent, name, types.KindRegular, mode, uid, gid)
}

// Mkdir allocates a new directory inode under parent/name (§4.5
// "mkdir").
func (b *Bijou) Mkdir(path string, mode uint32, uid, gid uint32) (*types.Inode, error) {
	parent, name, err := b.resolveParent(path)
	if err != nil {
		return nil, err
	}
	unlock := b.lockAscending(parent.FileID)
	defer unlock()

	return b.createChild(parent, name, types.KindDirectory, mode, uid, gid)
}

func (b *Bijou) createChild(parent *types.Inode, name string, kind types.Kind, mode uint32, uid, gid uint32) (*types.Inode, error) {
	encName, err := b.encodeName(parent.FileID, name)
	if err != nil {
		return nil, err
	}
	if _, err := b.meta.LookupDirEntry(parent.FileID, encName); err == nil {
		return nil, bjerrors.New(bjerrors.AlreadyExists, "fsengine.createChild")
	}

	id, err := b.meta.AllocateID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	child := &types.Inode{
		FileID:      id,
		Kind:        kind,
		Permissions: mode,
		UID:         uid,
		GID:         gid,
		Nlink:       1,
		ParentID:    parent.FileID,
		Atime:       now,
		Mtime:       now,
		Ctime:       now,
		BlockSize:   b.hier.Superblock.DefaultBlockSize,
		CipherID:    b.hier.Superblock.DefaultCipher,
	}
	if kind == types.KindRegular {
		salt, err := bjcrypto.RandomBytes(16)
		if err != nil {
			return nil, bjerrors.Newf(bjerrors.IoError, "fsengine.createChild", uint64(id), err)
		}
		key, err := bjcrypto.DerivePerFileKey(b.hier.Subkeys.ContentRoot[:], uint64(id), salt)
		if err != nil {
			return nil, bjerrors.Newf(bjerrors.IoError, "fsengine.createChild", uint64(id), err)
		}
		child.ContentKey = key
		child.HasContentKey = true
		if err := b.raw.Create(id); err != nil {
			return nil, bjerrors.Newf(bjerrors.IoError, "fsengine.createChild", uint64(id), err)
		}
	}

	parentUpdate := *parent
	parentUpdate.Mtime = now
	parentUpdate.Ctime = now

	ops := []metastore.Op{
		{Kind: metastore.OpPutInode, Inode: child},
		{Kind: metastore.OpInsertDirEntry, ParentID: parent.FileID, EncName: encName, ChildID: id},
		{Kind: metastore.OpPutInode, Inode: &parentUpdate},
	}
	if err := b.meta.Batch(ops); err != nil {
		return nil, err
	}
	return child, nil
}

// Rmdir removes an empty directory (§4.5 "rmdir").
func (b *Bijou) Rmdir(path string) error {
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

	child, err := b.meta.GetInode(childID)
	if err != nil {
		return err
	}
	if child.Kind != types.KindDirectory {
		return bjerrors.New(bjerrors.NotDirectory, "fsengine.Rmdir")
	}
	empty := true
	if err := b.meta.IterDirEntries(childID, func(types.DirEntry) bool {
		empty = false
		return false
	}); err != nil {
		return err
	}
	if !empty {
		return bjerrors.New(bjerrors.DirectoryNotEmpty, "fsengine.Rmdir")
	}

	now := time.Now().UTC()
	parentUpdate := *parent
	parentUpdate.Mtime = now
	parentUpdate.Ctime = now

	ops := []metastore.Op{
		{Kind: metastore.OpRemoveDirEntry, ParentID: parent.FileID, EncName: encName},
		{Kind: metastore.OpDeleteInode, FileID: childID},
		{Kind: metastore.OpPutInode, Inode: &parentUpdate},
	}
	return b.meta.Batch(ops)
}

// DirEntryInfo is one decoded readdir result (§4.5 "readdir").
type DirEntryInfo struct {
	Name   string
	FileID types.FileId
}

// Readdir lists dir's entries, decrypting names if filename encryption
// is enabled. Order follows KV iteration order and carries no
// stability guarantee across modification (§4.5 "readdir").
func (b *Bijou) Readdir(path string) ([]DirEntryInfo, error) {
	dir, err := b.Lookup(path)
	if err != nil {
		return nil, err
	}
	if dir.Kind != types.KindDirectory {
		return nil, bjerrors.New(bjerrors.NotDirectory, "fsengine.Readdir")
	}
	var out []DirEntryInfo
	err = b.meta.IterDirEntries(dir.FileID, func(entry types.DirEntry) bool {
		name, derr := b.decodeName(dir.FileID, entry.EncName)
		if derr != nil {
			return true
		}
		out = append(out, DirEntryInfo{Name: name, FileID: entry.ChildID})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

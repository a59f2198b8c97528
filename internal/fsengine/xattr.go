package fsengine

import (
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/types"
)

// Getxattr returns attrName's value for path (§4.5 "Xattrs").
func (b *Bijou) Getxattr(path string, attrName []byte) ([]byte, error) {
	inode, err := b.Lookup(path)
	if err != nil {
		return nil, err
	}
	return b.meta.GetXattr(inode.FileID, attrName)
}

// Listxattr returns every attribute name set on path.
func (b *Bijou) Listxattr(path string) ([][]byte, error) {
	inode, err := b.Lookup(path)
	if err != nil {
		return nil, err
	}
	return b.meta.ListXattr(inode.FileID)
}

// Setxattr sets attrName to value under path's inode, honoring
// create/replace/any semantics (§4.5 "Xattrs").
func (b *Bijou) Setxattr(path string, attrName, value []byte, mode types.SetxattrMode) error {
	inode, err := b.Lookup(path)
	if err != nil {
		return err
	}
	lock := b.lockFor(inode.FileID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := b.meta.GetXattr(inode.FileID, attrName)
	exists := err == nil && existing != nil
	switch mode {
	case types.SetxattrCreate:
		if exists {
			return bjerrors.New(bjerrors.AlreadyExists, "fsengine.Setxattr")
		}
	case types.SetxattrReplace:
		if !exists {
			return bjerrors.New(bjerrors.NotFound, "fsengine.Setxattr")
		}
	}

	current, err := b.meta.GetInode(inode.FileID)
	if err != nil {
		return err
	}
	updated := *current
	updated.Ctime = time.Now().UTC()

	ops := []metastore.Op{
		{Kind: metastore.OpPutXattr, FileID: inode.FileID, EncName: attrName, Value: value},
		{Kind: metastore.OpPutInode, Inode: &updated},
	}
	return b.meta.Batch(ops)
}

// Removexattr deletes attrName from path's inode.
func (b *Bijou) Removexattr(path string, attrName []byte) error {
	inode, err := b.Lookup(path)
	if err != nil {
		return err
	}
	lock := b.lockFor(inode.FileID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := b.meta.GetXattr(inode.FileID, attrName); err != nil {
		return err
	}

	current, err := b.meta.GetInode(inode.FileID)
	if err != nil {
		return err
	}
	updated := *current
	updated.Ctime = time.Now().UTC()

	ops := []metastore.Op{
		{Kind: metastore.OpDeleteXattr, FileID: inode.FileID, EncName: attrName},
		{Kind: metastore.OpPutInode, Inode: &updated},
	}
	return b.meta.Batch(ops)
}

package mountadapter

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

var (
	_ fs.InodeEmbedder = (*bijouNode)(nil)

	_ fs.NodeLookuper    = (*bijouNode)(nil)
	_ fs.NodeGetattrer   = (*bijouNode)(nil)
	_ fs.NodeSetattrer   = (*bijouNode)(nil)
	_ fs.NodeStatfser    = (*bijouNode)(nil)
	_ fs.NodeCreater     = (*bijouNode)(nil)
	_ fs.NodeMkdirer     = (*bijouNode)(nil)
	_ fs.NodeRmdirer     = (*bijouNode)(nil)
	_ fs.NodeUnlinker    = (*bijouNode)(nil)
	_ fs.NodeRenamer     = (*bijouNode)(nil)
	_ fs.NodeLinker      = (*bijouNode)(nil)
	_ fs.NodeSymlinker   = (*bijouNode)(nil)
	_ fs.NodeReadlinker  = (*bijouNode)(nil)
	_ fs.NodeOpener      = (*bijouNode)(nil)
	_ fs.NodeReaddirer   = (*bijouNode)(nil)
	_ fs.NodeReader      = (*bijouNode)(nil)
	_ fs.NodeWriter      = (*bijouNode)(nil)
	_ fs.NodeFlusher     = (*bijouNode)(nil)
	_ fs.NodeReleaser    = (*bijouNode)(nil)
	_ fs.NodeGetxattrer  = (*bijouNode)(nil)
	_ fs.NodeSetxattrer  = (*bijouNode)(nil)
	_ fs.NodeListxattrer = (*bijouNode)(nil)
	_ fs.NodeRemovexattrer = (*bijouNode)(nil)
)

// bijouNode is a node in the host-facing FUSE tree. It carries no
// cached attributes or children of its own: every operation resolves
// path fresh against the engine, which is the single source of truth
// (§6 "Mount adapter": "a thin shim, no state beyond the engine's").
type bijouNode struct {
	fs.Inode

	engine *fsengine.Bijou
	path   string
}

// fileHandle wraps an engine-level open handle id so it satisfies
// go-fuse's fs.FileHandle marker interface.
type fileHandle struct {
	id uint64
}

// NewRoot constructs the root node of the mount tree over an
// already-bootstrapped engine (§5 "Mount lifecycle").
func NewRoot(engine *fsengine.Bijou) fs.InodeEmbedder {
	return &bijouNode{engine: engine, path: "/"}
}

func (n *bijouNode) childPath(name string) string {
	return path.Join(n.path, name)
}

func modeFor(kind types.Kind, perm uint32) uint32 {
	switch kind {
	case types.KindDirectory:
		return fuse.S_IFDIR | perm
	case types.KindSymlink:
		return fuse.S_IFLNK | perm
	default:
		return fuse.S_IFREG | perm
	}
}

func stableAttr(inode *types.Inode) fs.StableAttr {
	return fs.StableAttr{
		Mode: modeFor(inode.Kind, inode.Permissions),
		Ino:  uint64(inode.FileID),
	}
}

func splitTime(t time.Time) (sec uint64, nsec uint32) {
	return uint64(t.Unix()), uint32(t.Nanosecond())
}

func fillAttr(out *fuse.Attr, inode *types.Inode) {
	out.Ino = uint64(inode.FileID)
	out.Size = inode.Size
	out.Blocks = (inode.Size + 511) / 512
	out.Mode = modeFor(inode.Kind, inode.Permissions)
	out.Nlink = inode.Nlink
	out.Uid = inode.UID
	out.Gid = inode.GID
	out.Blksize = types.DefaultBlockSize
	out.Atime, out.Atimensec = splitTime(inode.Atime)
	out.Mtime, out.Mtimensec = splitTime(inode.Mtime)
	out.Ctime, out.Ctimensec = splitTime(inode.Ctime)
}

func callerIDs(ctx context.Context) (uid, gid uint32) {
	if caller, ok := fuse.FromContext(ctx); ok {
		return caller.Uid, caller.Gid
	}
	return 0, 0
}

// Lookup resolves name under n, returning the child's stable inode
// (§4.5 "Path resolution").
func (n *bijouNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	inode, err := n.engine.Lookup(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	child := &bijouNode{engine: n.engine, path: childPath}
	return n.NewInode(ctx, child, stableAttr(inode)), 0
}

// Getattr reports n's current attributes (§6 "Engine API": getattr).
func (n *bijouNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	inode, err := n.engine.GetAttr(n.path)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	return 0
}

// Setattr applies permission, ownership and size changes (§4.5
// "Timestamps": "ctime on metadata change").
func (n *bijouNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var attrs fsengine.Attrs
	if mode, ok := in.GetMode(); ok {
		perm := mode & 0o7777
		attrs.Permissions = &perm
	}
	if uid, ok := in.GetUID(); ok {
		attrs.UID = &uid
	}
	if gid, ok := in.GetGID(); ok {
		attrs.GID = &gid
	}
	if mtime, ok := in.GetMTime(); ok {
		attrs.Mtime = &mtime
	}

	if size, ok := in.GetSize(); ok {
		if err := n.engine.Truncate(n.path, size); err != nil {
			return toErrno(err)
		}
	}

	inode, err := n.engine.SetAttr(n.path, attrs)
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	return 0
}

// Statfs reports space and inode-count statistics (§6 "Engine API":
// statfs).
func (n *bijouNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	stats, err := n.engine.Statfs()
	if err != nil {
		return toErrno(err)
	}
	out.Blocks = stats.Blocks
	out.Bfree = stats.BlocksFree
	out.Bavail = stats.BlocksAvail
	out.Files = stats.Files
	out.Ffree = stats.FilesFree
	out.Bsize = stats.BlockSize
	out.Namelen = stats.NameLen
	return 0
}

// Create makes a new regular file and opens it in one step (§4.2
// "create(parent, name, inode)").
func (n *bijouNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	uid, gid := callerIDs(ctx)
	inode, err := n.engine.Create(childPath, mode&0o7777, uid, gid)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	handleID, _, err := n.engine.Open(childPath, fsengine.OFlagRead|fsengine.OFlagWrite)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	child := &bijouNode{engine: n.engine, path: childPath}
	return n.NewInode(ctx, child, stableAttr(inode)), &fileHandle{id: handleID}, 0, 0
}

// Mkdir creates a subdirectory (§4.5 "mkdir").
func (n *bijouNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	uid, gid := callerIDs(ctx)
	inode, err := n.engine.Mkdir(childPath, mode&0o7777, uid, gid)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	child := &bijouNode{engine: n.engine, path: childPath}
	return n.NewInode(ctx, child, stableAttr(inode)), 0
}

// Rmdir removes an empty subdirectory (§4.5 "rmdir").
func (n *bijouNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := n.engine.Rmdir(n.childPath(name)); err != nil {
		return toErrno(err)
	}
	n.RmChild(name)
	return 0
}

// Unlink removes a directory entry (§4.5 "Link count and orphan
// handling").
func (n *bijouNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := n.engine.Unlink(n.childPath(name)); err != nil {
		return toErrno(err)
	}
	n.RmChild(name)
	return 0
}

// Rename moves name to newName under newParent (§4.5 "rename").
func (n *bijouNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst := newParent.EmbeddedInode().Operations().(*bijouNode)
	if err := n.engine.Rename(n.childPath(name), dst.childPath(newName)); err != nil {
		return toErrno(err)
	}
	return 0
}

// Link creates a new hard link to an existing non-directory target
// (§4.5 "Link count and orphan handling").
func (n *bijouNode) Link(ctx context.Context, target fs.InodeEmbedder, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	src := target.EmbeddedInode().Operations().(*bijouNode)
	inode, err := n.engine.Link(src.path, n.childPath(name))
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	child := &bijouNode{engine: n.engine, path: n.childPath(name)}
	return n.NewInode(ctx, child, stableAttr(inode)), 0
}

// Symlink creates a symlink whose target is an arbitrary string (§3
// "Symlink target").
func (n *bijouNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	uid, gid := callerIDs(ctx)
	inode, err := n.engine.Symlink(target, childPath, uid, gid)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, inode)
	child := &bijouNode{engine: n.engine, path: childPath}
	return n.NewInode(ctx, child, stableAttr(inode)), 0
}

// Readlink returns n's symlink target without following it.
func (n *bijouNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.engine.Readlink(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return []byte(target), 0
}

// Open pins n's inode for reads and/or writes (§4.5 "Open handles").
func (n *bijouNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	engineFlags := uint32(0)
	accessMode := flags & syscall.O_ACCMODE
	if accessMode == syscall.O_RDONLY || accessMode == syscall.O_RDWR {
		engineFlags |= fsengine.OFlagRead
	}
	if accessMode == syscall.O_WRONLY || accessMode == syscall.O_RDWR {
		engineFlags |= fsengine.OFlagWrite
	}
	handleID, _, err := n.engine.Open(n.path, engineFlags)
	if err != nil {
		return nil, 0, toErrno(err)
	}
	return &fileHandle{id: handleID}, 0, 0
}

// Read decrypts up to len(dest) bytes at off (§4.3 "Addressing").
func (n *bijouNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	nRead, err := n.engine.Read(h.id, dest, off)
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:nRead]), 0
}

// Write encrypts data into n's content at off (§4.3 "Writes").
func (n *bijouNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	h, ok := f.(*fileHandle)
	if !ok {
		return 0, syscall.EBADF
	}
	nWritten, err := n.engine.Write(h.id, data, off)
	if err != nil {
		return uint32(nWritten), toErrno(err)
	}
	return uint32(nWritten), 0
}

// Flush syncs the raw store handle backing f (§6 "Engine API").
func (n *bijouNode) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	h, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	return toErrno(n.engine.Flush(h.id))
}

// Release closes f, triggering orphan collection if it was the last
// reference to a deleted inode (§4.5 "Open handles").
func (n *bijouNode) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	h, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	return toErrno(n.engine.Release(h.id))
}

// Readdir lists n's entries (§4.5 "readdir").
func (n *bijouNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.engine.Readdir(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	result := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		childInode, err := n.engine.GetAttr(n.childPath(e.Name))
		if err != nil {
			continue
		}
		result = append(result, fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.FileID),
			Mode: modeFor(childInode.Kind, childInode.Permissions),
		})
	}
	return fs.NewListDirStream(result), 0
}

// Getxattr reads an extended attribute's value into dest (§4.5
// "Xattrs").
func (n *bijouNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	value, err := n.engine.Getxattr(n.path, []byte(attr))
	if err != nil {
		return 0, toErrno(err)
	}
	if len(value) > len(dest) {
		return uint32(len(value)), syscall.ERANGE
	}
	return uint32(copy(dest, value)), 0
}

// Setxattr sets an extended attribute, honoring create/replace/any
// semantics encoded in flags.
func (n *bijouNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	mode := types.SetxattrAny
	switch flags {
	case unix.XATTR_CREATE:
		mode = types.SetxattrCreate
	case unix.XATTR_REPLACE:
		mode = types.SetxattrReplace
	}
	return toErrno(n.engine.Setxattr(n.path, []byte(attr), data, mode))
}

// Listxattr returns every attribute name set on n, NUL-separated per
// the listxattr(2) wire convention.
func (n *bijouNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, err := n.engine.Listxattr(n.path)
	if err != nil {
		return 0, toErrno(err)
	}
	var total int
	for _, name := range names {
		total += len(name) + 1
	}
	if total > len(dest) {
		return uint32(total), syscall.ERANGE
	}
	var off int
	for _, name := range names {
		off += copy(dest[off:], name)
		dest[off] = 0
		off++
	}
	return uint32(total), 0
}

// Removexattr deletes an extended attribute.
func (n *bijouNode) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return toErrno(n.engine.Removexattr(n.path, []byte(attr)))
}

package types

import "time"

// InodeFlags are bit flags stored alongside an inode.
type InodeFlags uint32

const (
	// FlagOrphan marks an inode whose nlink has reached zero but which
	// is still referenced by at least one open handle. Orphans are
	// garbage-collected when the last handle closes, or at mount time
	// if no handle ever reopens them.
	FlagOrphan InodeFlags = 1 << iota
)

// Inode represents one filesystem object: its attributes, ownership,
// timestamps and (for regular files and symlinks with a body) its
// content-encryption parameters.
//
// An inode exists in the metadata store while Nlink >= 1 OR at least
// one open handle references it (see internal/fsengine's handle
// table); on the transition to "neither", a single atomic metadata
// batch deletes the inode, its xattrs and any symlink-target record,
// and the raw blob is unlinked separately, outside that batch.
type Inode struct {
	FileID FileId
	Kind   Kind

	Permissions uint32 // host-style mode bits, kind bits excluded
	UID         uint32
	GID         uint32
	Nlink       uint32

	// ParentID is the containing directory's file id. Only meaningful
	// for directories: since directory hard-links are forbidden (§3
	// invariant "Directories have exactly one parent entry except the
	// root"), a directory's single parent can be tracked directly on
	// its inode instead of requiring a reverse scan of directory
	// entries, which is what rename's descendant check
	// (internal/fsengine) needs. Unused (zero) for regular files and
	// symlinks, which may have many parents via hard links.
	ParentID FileId

	// Size is the logical size in bytes: content length for regular
	// files, target length for symlinks, unused (0) for directories.
	Size uint64

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// ContentKey is the 32-byte per-file content-encryption key. Only
	// populated for regular files; symlinks never have one.
	ContentKey [32]byte
	HasContentKey bool

	CipherID  CipherID
	BlockSize uint32

	Flags InodeFlags

	// InlineSymlinkTarget holds a short symlink target stored directly
	// in the inode rather than in the metadata store's symlink-target
	// table; the choice is made once at creation and never changes for
	// a given inode (§3).
	InlineSymlinkTarget []byte
	HasInlineTarget     bool
}

// IsOrphan reports whether the inode is pinned only by open handles.
func (i *Inode) IsOrphan() bool {
	return i.Flags&FlagOrphan != 0
}

// EncryptsBody reports whether the engine treats this inode as having
// a raw blob handled by the content cipher engine: true for regular
// files and for symlinks whose target is not inlined, false for
// directories and inlined symlinks. A non-inlined symlink's target is
// kept in the metadata store's symlink-target table, so such a
// symlink has no blob of its own.
func (i *Inode) EncryptsBody() bool {
	switch i.Kind {
	case KindRegular:
		return true
	case KindSymlink:
		return !i.HasInlineTarget
	default:
		return false
	}
}

// Package mountadapter wires a *fsengine.Bijou to the host kernel via
// github.com/hanwen/go-fuse/v2's tree-of-nodes API (§6 "Mount
// adapter"). Every node is a thin, stateless wrapper around an
// absolute path; all state lives in the engine, so the node tree
// never caches an inode or directory listing of its own.
package mountadapter

import (
	"syscall"

	"github.com/bijoufs/bijou/internal/bjerrors"
)

// toErrno maps the engine's stable error kinds to the syscall.Errno
// values go-fuse requires every NodeXxx method to return (§7
// "Propagation": "the host-facing contract only ever sees POSIX
// errno values, translated from the stable kind").
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	kind, ok := bjerrors.Of(err)
	if !ok {
		return syscall.EIO
	}
	switch kind {
	case bjerrors.NotFound:
		return syscall.ENOENT
	case bjerrors.AlreadyExists:
		return syscall.EEXIST
	case bjerrors.NotDirectory:
		return syscall.ENOTDIR
	case bjerrors.IsDirectory:
		return syscall.EISDIR
	case bjerrors.DirectoryNotEmpty:
		return syscall.ENOTEMPTY
	case bjerrors.InvalidName:
		return syscall.EINVAL
	case bjerrors.NameTooLong:
		return syscall.ENAMETOOLONG
	case bjerrors.PermissionDenied:
		return syscall.EACCES
	case bjerrors.AuthFailed:
		return syscall.EACCES
	case bjerrors.CorruptKeystore, bjerrors.CorruptConfig, bjerrors.DataCorruption:
		return syscall.EIO
	case bjerrors.IoError:
		return syscall.EIO
	case bjerrors.Unsupported:
		return syscall.ENOSYS
	case bjerrors.ReadOnlyFs:
		return syscall.EROFS
	case bjerrors.NoSpace:
		return syscall.ENOSPC
	case bjerrors.TooManyLinks:
		return syscall.EMLINK
	case bjerrors.LoopDetected:
		return syscall.ELOOP
	case bjerrors.CrossDeviceLink:
		return syscall.EXDEV
	default:
		return syscall.EIO
	}
}

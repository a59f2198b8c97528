package mountadapter

import (
	"errors"
	"syscall"
	"testing"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/stretchr/testify/assert"
)

func TestToErrnoNil(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), toErrno(nil))
}

func TestToErrnoKnownKinds(t *testing.T) {
	cases := []struct {
		kind bjerrors.Kind
		want syscall.Errno
	}{
		{bjerrors.NotFound, syscall.ENOENT},
		{bjerrors.AlreadyExists, syscall.EEXIST},
		{bjerrors.NotDirectory, syscall.ENOTDIR},
		{bjerrors.IsDirectory, syscall.EISDIR},
		{bjerrors.DirectoryNotEmpty, syscall.ENOTEMPTY},
		{bjerrors.InvalidName, syscall.EINVAL},
		{bjerrors.NameTooLong, syscall.ENAMETOOLONG},
		{bjerrors.PermissionDenied, syscall.EACCES},
		{bjerrors.AuthFailed, syscall.EACCES},
		{bjerrors.CorruptKeystore, syscall.EIO},
		{bjerrors.CorruptConfig, syscall.EIO},
		{bjerrors.DataCorruption, syscall.EIO},
		{bjerrors.IoError, syscall.EIO},
		{bjerrors.Unsupported, syscall.ENOSYS},
		{bjerrors.ReadOnlyFs, syscall.EROFS},
		{bjerrors.NoSpace, syscall.ENOSPC},
		{bjerrors.TooManyLinks, syscall.EMLINK},
		{bjerrors.LoopDetected, syscall.ELOOP},
		{bjerrors.CrossDeviceLink, syscall.EXDEV},
	}
	for _, c := range cases {
		err := bjerrors.New(c.kind, "test")
		assert.Equal(t, c.want, toErrno(err), "kind %v", c.kind)
	}
}

func TestToErrnoUnwrappedError(t *testing.T) {
	assert.Equal(t, syscall.EIO, toErrno(errors.New("opaque failure")))
}

//go:build linux

package fsengine

import (
	"syscall"

	"github.com/bijoufs/bijou/internal/bjerrors"
)

func statfsHost(dir string) (StatfsResult, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return StatfsResult{}, bjerrors.Newf(bjerrors.IoError, "fsengine.Statfs", 0, err)
	}
	return StatfsResult{
		Blocks:      uint64(st.Blocks),
		BlocksFree:  uint64(st.Bfree),
		BlocksAvail: uint64(st.Bavail),
	}, nil
}

//go:build linux

package rawstore

import (
	"os"
	"syscall"
	"time"
)

func init() {
	atimeOf = func(info os.FileInfo) time.Time {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			return time.Unix(st.Atim.Sec, st.Atim.Nsec)
		}
		return info.ModTime()
	}
}

package fsengine

import (
	"github.com/bijoufs/bijou/internal/types"
)

// StatfsResult mirrors the subset of host statfs(2) fields the mount
// adapter's StatfsOut needs (§6 "Engine API": statfs).
type StatfsResult struct {
	BlockSize   uint32
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
	NameLen     uint32
}

// Statfs reports free-space and inode-count statistics, proxying the
// host filesystem's statfs(2) on the data directory for the space
// figures (the KV engine and raw store don't track free space
// themselves, §4.4) and the metadata store's id allocator for the
// inode figures. The platform-specific stat call lives in
// stats_linux.go; statfsHost falls back to zeroed space figures
// elsewhere.
func (b *Bijou) Statfs() (StatfsResult, error) {
	space, err := statfsHost(b.dataDir)
	if err != nil {
		return StatfsResult{}, err
	}
	next, err := b.meta.PeekNextID()
	if err != nil {
		return StatfsResult{}, err
	}
	space.BlockSize = types.DefaultBlockSize
	space.Files = uint64(next)
	space.FilesFree = ^uint64(0) - uint64(next)
	space.NameLen = types.MaxNameCiphertext
	return space, nil
}

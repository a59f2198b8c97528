// Package fsengine implements Bijou, the filesystem engine (§4.5):
// path resolution, directory operations, inode lifecycle and link
// counts, timestamp rules, extended attributes, and the open-handle
// table that the mount adapter and the high-level facade both sit on
// top of.
package fsengine

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/content"
	bjcrypto "github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/keys"
	"github.com/bijoufs/bijou/internal/metastore"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
)

// MaxSymlinkDepth bounds symlink-follow recursion during path
// resolution (§4.5 "Path resolution").
const MaxSymlinkDepth = 40

// Stats are diagnostic counters incremented when the engine detects a
// logical invariant violation at runtime that is fatal to the
// operation but not to the mount (§7 "Propagation").
type Stats struct {
	DanglingDirEntries uint64
	DataCorruptions    uint64
}

// Bijou is the filesystem engine for one open database. It owns no
// host-facing transport; the mount adapter and pkg/bijoufs call its
// methods directly.
type Bijou struct {
	dataDir string
	hier    *keys.Hierarchy
	meta    metastore.Store
	raw     rawstore.Store

	inodeLocks sync.Map // types.FileId -> *sync.RWMutex

	handlesMu  sync.Mutex
	handles    map[uint64]*openHandle
	nextHandle uint64

	refsMu   sync.Mutex
	refcount map[types.FileId]int

	danglingDirEntries uint64
	dataCorruptions    uint64
}

type openHandle struct {
	fileID types.FileId
	flags  uint32
}

// New constructs the engine over an already-opened metadata store and
// raw blob store, using hier's derived keys (§5 "Mount lifecycle").
func New(dataDir string, hier *keys.Hierarchy, meta metastore.Store, raw rawstore.Store) *Bijou {
	return &Bijou{
		dataDir:  dataDir,
		hier:     hier,
		meta:     meta,
		raw:      raw,
		handles:  map[uint64]*openHandle{},
		refcount: map[types.FileId]int{},
	}
}

// EnsureRoot creates the root directory inode if the database is
// freshly initialized and no inode 1 exists yet. Idempotent: a second
// call against an already-bootstrapped database is a no-op (§5 "Mount
// lifecycle").
func (b *Bijou) EnsureRoot() error {
	if _, err := b.meta.GetInode(types.RootFileId); err == nil {
		return nil
	} else if !bjerrors.Is(err, bjerrors.NotFound) {
		return err
	}
	now := time.Now().UTC()
	root := &types.Inode{
		FileID:      types.RootFileId,
		Kind:        types.KindDirectory,
		Permissions: 0o755,
		Nlink:       1,
		ParentID:    types.RootFileId,
		Atime:       now,
		Mtime:       now,
		Ctime:       now,
	}
	return b.meta.PutInode(root)
}

func (b *Bijou) lockFor(id types.FileId) *sync.RWMutex {
	v, _ := b.inodeLocks.LoadOrStore(id, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// lockAscending locks the inode-id-keyed mutexes for ids in ascending
// order to prevent deadlock across multi-inode operations such as
// rename (§5 "Per-inode lock discipline"). Returns an unlock function.
func (b *Bijou) lockAscending(ids ...types.FileId) func() {
	uniq := map[types.FileId]bool{}
	ordered := make([]types.FileId, 0, len(ids))
	for _, id := range ids {
		if !uniq[id] {
			uniq[id] = true
			ordered = append(ordered, id)
		}
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j] < ordered[i] {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	locks := make([]*sync.RWMutex, len(ordered))
	for i, id := range ordered {
		locks[i] = b.lockFor(id)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (b *Bijou) nameEncryptionEnabled() bool {
	return b.hier.Superblock.NameEncryption
}

func (b *Bijou) encodeName(parent types.FileId, name string) ([]byte, error) {
	if len(name) == 0 || name == "." || name == ".." || strings.Contains(name, "/") {
		return nil, bjerrors.New(bjerrors.InvalidName, "fsengine.encodeName")
	}
	if !b.nameEncryptionEnabled() {
		if len(name) > types.MaxNameCiphertext {
			return nil, bjerrors.New(bjerrors.NameTooLong, "fsengine.encodeName")
		}
		return []byte(name), nil
	}
	enc, err := bjcrypto.EncryptName(b.hier.Subkeys.FilenameRoot[:], uint64(parent), []byte(name))
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "fsengine.encodeName", uint64(parent), err)
	}
	if len(enc) > types.MaxNameCiphertext {
		return nil, bjerrors.New(bjerrors.NameTooLong, "fsengine.encodeName")
	}
	return enc, nil
}

func (b *Bijou) decodeName(parent types.FileId, encName []byte) (string, error) {
	if !b.nameEncryptionEnabled() {
		return string(encName), nil
	}
	plain, err := bjcrypto.DecryptName(b.hier.Subkeys.FilenameRoot[:], uint64(parent), encName)
	if err != nil {
		return "", bjerrors.Newf(bjerrors.DataCorruption, "fsengine.decodeName", uint64(parent), err)
	}
	return string(plain), nil
}

// splitPath splits a slash-separated path into non-empty components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Lookup resolves path from the root, following symlinks up to
// MaxSymlinkDepth, and returns the resolved inode (§4.5 "Path
// resolution").
func (b *Bijou) Lookup(path string) (*types.Inode, error) {
	return b.lookupFrom(types.RootFileId, splitPath(path), 0)
}

// LookupNoFollow resolves path but does not follow a symlink at the
// final component (only intermediate components are followed).
func (b *Bijou) LookupNoFollow(path string) (*types.Inode, error) {
	return b.resolveComponents(types.RootFileId, splitPath(path), 0, false)
}

func (b *Bijou) lookupFrom(dir types.FileId, components []string, depth int) (*types.Inode, error) {
	return b.resolveComponents(dir, components, depth, true)
}

func (b *Bijou) resolveComponents(dir types.FileId, components []string, depth int, followLast bool) (*types.Inode, error) {
	current := dir
	for i, comp := range components {
		encName, err := b.encodeName(current, comp)
		if err != nil {
			return nil, err
		}
		childID, err := b.meta.LookupDirEntry(current, encName)
		if err != nil {
			return nil, err
		}
		child, err := b.meta.GetInode(childID)
		if err != nil {
			if bjerrors.Is(err, bjerrors.NotFound) {
				atomic.AddUint64(&b.danglingDirEntries, 1)
			}
			return nil, err
		}
		last := i == len(components)-1
		if child.Kind == types.KindSymlink && (!last || followLast) {
			if depth >= MaxSymlinkDepth {
				return nil, bjerrors.New(bjerrors.LoopDetected, "fsengine.resolveComponents")
			}
			target, err := b.readSymlinkTarget(child)
			if err != nil {
				return nil, err
			}
			targetComponents := splitPath(string(target))
			startDir := current
			if strings.HasPrefix(string(target), "/") {
				startDir = types.RootFileId
			}
			remainder := components[i+1:]
			next := append(append([]string{}, targetComponents...), remainder...)
			return b.resolveComponents(startDir, next, depth+1, followLast)
		}
		current = childID
		if last {
			return child, nil
		}
		if child.Kind != types.KindDirectory {
			return nil, bjerrors.New(bjerrors.NotDirectory, "fsengine.resolveComponents")
		}
	}
	return b.meta.GetInode(types.RootFileId)
}

// resolveParent resolves all but the last component of path, returning
// the parent directory inode and the final component name.
func (b *Bijou) resolveParent(path string) (*types.Inode, string, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return nil, "", bjerrors.New(bjerrors.InvalidName, "fsengine.resolveParent")
	}
	parentComponents := components[:len(components)-1]
	name := components[len(components)-1]
	parent, err := b.lookupFrom(types.RootFileId, parentComponents, 0)
	if err != nil {
		return nil, "", err
	}
	if parent.Kind != types.KindDirectory {
		return nil, "", bjerrors.New(bjerrors.NotDirectory, "fsengine.resolveParent")
	}
	return parent, name, nil
}

func (b *Bijou) readSymlinkTarget(inode *types.Inode) ([]byte, error) {
	if inode.HasInlineTarget {
		return inode.InlineSymlinkTarget, nil
	}
	return b.meta.GetSymlinkTarget(inode.FileID)
}

// Stats reports the engine's diagnostic counters (§7 "Propagation").
func (b *Bijou) Stats() Stats {
	return Stats{
		DanglingDirEntries: atomic.LoadUint64(&b.danglingDirEntries),
		DataCorruptions:    atomic.LoadUint64(&b.dataCorruptions),
	}
}

func (b *Bijou) touch(id types.FileId, contentChanged bool) error {
	inode, err := b.meta.GetInode(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if contentChanged {
		inode.Mtime = now
	}
	inode.Ctime = now
	return b.meta.PutInode(inode)
}

func (b *Bijou) newContentEngine(inode *types.Inode) (*content.Engine, error) {
	return content.NewEngine(inode.CipherID, inode.ContentKey[:], inode.BlockSize)
}

package rawstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bijoufs/bijou/internal/types"
)

// LocalDir stores each blob as a plain file under root, sharded by the
// high byte of the file id into blobs/XX/YYYYYYYYYYYYYYYY (§4.4
// "LocalDir", §6 "blobs/"). It reports native metadata via the host
// filesystem's stat, so it never needs to be paired with Tracking.
type LocalDir struct {
	root string
}

// NewLocalDir returns a LocalDir rooted at dir, creating dir if
// necessary.
func NewLocalDir(dir string) (*LocalDir, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("rawstore: LocalDir: %w", err)
	}
	return &LocalDir{root: dir}, nil
}

func (l *LocalDir) pathFor(id types.FileId) string {
	hi := byte(uint64(id) >> 56)
	name := fmt.Sprintf("%016x", uint64(id))
	return filepath.Join(l.root, fmt.Sprintf("%02x", hi), name)
}

func (l *LocalDir) Create(id types.FileId) error {
	path := l.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("rawstore: LocalDir.Create: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("rawstore: LocalDir.Create: %w", err)
	}
	return f.Close()
}

func (l *LocalDir) Open(id types.FileId) (Handle, error) {
	path := l.pathFor(id)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rawstore: LocalDir.Open: %w", err)
	}
	return &localFileHandle{f: f}, nil
}

func (l *LocalDir) Unlink(id types.FileId) error {
	err := os.Remove(l.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rawstore: LocalDir.Unlink: %w", err)
	}
	return nil
}

func (l *LocalDir) MetaSupported() bool { return true }

func (l *LocalDir) GetMeta(id types.FileId) (types.RawMeta, error) {
	info, err := os.Stat(l.pathFor(id))
	if os.IsNotExist(err) {
		return types.RawMeta{}, ErrNotFound
	}
	if err != nil {
		return types.RawMeta{}, fmt.Errorf("rawstore: LocalDir.GetMeta: %w", err)
	}
	atime := atimeOf(info)
	return types.RawMeta{
		Size:  uint64(info.Size()),
		Mtime: info.ModTime(),
		Atime: atime,
	}, nil
}

// SetMeta adjusts the file's mtime/atime via utimes; LocalDir has no
// separate size field to set (size always tracks the file's actual
// length, adjusted via SetLen on the handle).
func (l *LocalDir) SetMeta(id types.FileId, m types.RawMeta) error {
	path := l.pathFor(id)
	if err := os.Chtimes(path, m.Atime, m.Mtime); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rawstore: LocalDir.SetMeta: %w", err)
	}
	return nil
}

type localFileHandle struct {
	f *os.File
}

func (h *localFileHandle) ReadAt(buf []byte, offset int64) (int, error) {
	return h.f.ReadAt(buf, offset)
}

func (h *localFileHandle) WriteAt(buf []byte, offset int64) (int, error) {
	return h.f.WriteAt(buf, offset)
}

func (h *localFileHandle) SetLen(size int64) error {
	return h.f.Truncate(size)
}

func (h *localFileHandle) Sync() error {
	return h.f.Sync()
}

func (h *localFileHandle) Close() error {
	return h.f.Close()
}

// atimeOf is overridden on Linux by localdir_linux.go (via
// syscall.Stat_t); the portable fallback here reports
// ModTime for atime too, since Go's stdlib os.FileInfo doesn't expose
// atime uniformly across platforms.
var atimeOf = func(info os.FileInfo) time.Time {
	return info.ModTime()
}

// Package bijoufs is the high-level facade (§4.6): stateless
// convenience operations composed from the filesystem engine, for
// callers that want whole-file or whole-tree operations rather than
// handle-oriented read/write.
package bijoufs

import (
	"path"
	"strings"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/fsengine"
	"github.com/bijoufs/bijou/internal/types"
)

// BijouFs wraps a mounted engine with convenience operations. It holds
// no state of its own beyond the engine reference.
type BijouFs struct {
	engine *fsengine.Bijou
}

// New wraps an already-mounted engine.
func New(engine *fsengine.Bijou) *BijouFs {
	return &BijouFs{engine: engine}
}

// ReadFile reads the whole content of path (§4.6 "read_file(path)").
func (fs *BijouFs) ReadFile(filePath string) ([]byte, error) {
	inode, err := fs.engine.GetAttr(filePath)
	if err != nil {
		return nil, err
	}
	handle, _, err := fs.engine.Open(filePath, fsengine.OFlagRead)
	if err != nil {
		return nil, err
	}
	defer fs.engine.Release(handle)

	buf := make([]byte, inode.Size)
	total := 0
	for total < len(buf) {
		n, err := fs.engine.Read(handle, buf[total:], int64(total))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}

// WriteFile creates (or truncates) path and writes data to it in full
// (§4.6 "write_file(path, bytes)").
func (fs *BijouFs) WriteFile(filePath string, data []byte, mode uint32) error {
	if _, err := fs.engine.Lookup(filePath); err == nil {
		if err := fs.engine.Truncate(filePath, 0); err != nil {
			return err
		}
	} else if bjerrors.Is(err, bjerrors.NotFound) {
		if _, err := fs.engine.Create(filePath, mode, 0, 0); err != nil {
			return err
		}
	} else {
		return err
	}

	handle, _, err := fs.engine.Open(filePath, fsengine.OFlagRead|fsengine.OFlagWrite)
	if err != nil {
		return err
	}
	defer fs.engine.Release(handle)

	total := 0
	for total < len(data) {
		n, err := fs.engine.Write(handle, data[total:], int64(total))
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return nil
}

// CreateDirAll ensures every directory component of dirPath exists,
// creating any that are missing (§4.6 "create_dir_all(path)").
func (fs *BijouFs) CreateDirAll(dirPath string) error {
	components := strings.Split(strings.Trim(dirPath, "/"), "/")
	current := "/"
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = path.Join(current, comp)
		if _, err := fs.engine.Lookup(current); err == nil {
			continue
		} else if !bjerrors.Is(err, bjerrors.NotFound) {
			return err
		}
		if _, err := fs.engine.Mkdir(current, 0o755, 0, 0); err != nil && !bjerrors.Is(err, bjerrors.AlreadyExists) {
			return err
		}
	}
	return nil
}

// RemoveDirAll recursively removes dirPath and everything under it
// (§4.6 "remove_dir_all(path)").
func (fs *BijouFs) RemoveDirAll(dirPath string) error {
	inode, err := fs.engine.Lookup(dirPath)
	if err != nil {
		if bjerrors.Is(err, bjerrors.NotFound) {
			return nil
		}
		return err
	}
	if inode.Kind != types.KindDirectory {
		return fs.engine.Unlink(dirPath)
	}

	entries, err := fs.engine.Readdir(dirPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childPath := path.Join(dirPath, entry.Name)
		childInode, err := fs.engine.Lookup(childPath)
		if err != nil {
			return err
		}
		if childInode.Kind == types.KindDirectory {
			if err := fs.RemoveDirAll(childPath); err != nil {
				return err
			}
		} else if err := fs.engine.Unlink(childPath); err != nil {
			return err
		}
	}
	return fs.engine.Rmdir(dirPath)
}

// WalkFunc is called once per entry visited by Walk.
type WalkFunc func(entryPath string, inode *types.Inode) error

// Walk visits root and every entry beneath it, depth-first, calling fn
// for each (§4.6 "walk(path)").
func (fs *BijouFs) Walk(root string, fn WalkFunc) error {
	inode, err := fs.engine.Lookup(root)
	if err != nil {
		return err
	}
	if err := fn(root, inode); err != nil {
		return err
	}
	if inode.Kind != types.KindDirectory {
		return nil
	}
	entries, err := fs.engine.Readdir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := fs.Walk(path.Join(root, entry.Name), fn); err != nil {
			return err
		}
	}
	return nil
}

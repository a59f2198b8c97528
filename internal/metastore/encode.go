package metastore

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bijoufs/bijou/internal/types"
)

// inode wire format, fixed-width fields followed by a variable-length
// inline symlink target. Versioned with a leading byte so a future
// format change doesn't have to guess the layout of old records.
const inodeEncodingVersion byte = 1

func encodeInode(in *types.Inode) []byte {
	// version(1) + fileid(8) + kind(1) + perm(4) + uid(4) + gid(4) +
	// nlink(4) + parentID(8) + size(8) + atime(8) + mtime(8) + ctime(8) +
	// hasContentKey(1) + contentKey(32) + cipherID(1) + blockSize(4) +
	// flags(4) + hasInlineTarget(1) + inlineLen(4) + inline(n)
	buf := make([]byte, 0, 128+len(in.InlineSymlinkTarget))
	buf = append(buf, inodeEncodingVersion)
	buf = appendU64(buf, uint64(in.FileID))
	buf = append(buf, byte(in.Kind))
	buf = appendU32(buf, in.Permissions)
	buf = appendU32(buf, in.UID)
	buf = appendU32(buf, in.GID)
	buf = appendU32(buf, in.Nlink)
	buf = appendU64(buf, uint64(in.ParentID))
	buf = appendU64(buf, in.Size)
	buf = appendTime(buf, in.Atime)
	buf = appendTime(buf, in.Mtime)
	buf = appendTime(buf, in.Ctime)
	if in.HasContentKey {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, in.ContentKey[:]...)
	buf = append(buf, byte(in.CipherID))
	buf = appendU32(buf, in.BlockSize)
	buf = appendU32(buf, uint32(in.Flags))
	if in.HasInlineTarget {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendU32(buf, uint32(len(in.InlineSymlinkTarget)))
	buf = append(buf, in.InlineSymlinkTarget...)
	return buf
}

func decodeInode(data []byte) (*types.Inode, error) {
	if len(data) < 1 || data[0] != inodeEncodingVersion {
		return nil, fmt.Errorf("metastore: unsupported inode encoding version")
	}
	r := &reader{buf: data[1:]}

	in := &types.Inode{}
	in.FileID = types.FileId(r.u64())
	in.Kind = types.Kind(r.u8())
	in.Permissions = r.u32()
	in.UID = r.u32()
	in.GID = r.u32()
	in.Nlink = r.u32()
	in.ParentID = types.FileId(r.u64())
	in.Size = r.u64()
	in.Atime = r.time()
	in.Mtime = r.time()
	in.Ctime = r.time()
	in.HasContentKey = r.u8() == 1
	copy(in.ContentKey[:], r.bytes(32))
	in.CipherID = types.CipherID(r.u8())
	in.BlockSize = r.u32()
	in.Flags = types.InodeFlags(r.u32())
	in.HasInlineTarget = r.u8() == 1
	n := r.u32()
	if n > 0 {
		in.InlineSymlinkTarget = append([]byte(nil), r.bytes(int(n))...)
	}
	if r.err != nil {
		return nil, r.err
	}
	return in, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendTime(buf []byte, t time.Time) []byte {
	return appendU64(buf, uint64(t.UnixNano()))
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("metastore: truncated inode record")
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.need(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.need(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) time() time.Time {
	return time.Unix(0, int64(r.u64())).UTC()
}

func (r *reader) bytes(n int) []byte {
	return r.need(n)
}

func encodeRawMeta(m RawMeta) []byte {
	buf := make([]byte, 0, 24)
	buf = appendU64(buf, m.Size)
	buf = appendTime(buf, m.Mtime)
	buf = appendTime(buf, m.Atime)
	return buf
}

func decodeRawMeta(data []byte) (RawMeta, error) {
	if len(data) != 24 {
		return RawMeta{}, fmt.Errorf("metastore: malformed raw meta record")
	}
	r := &reader{buf: data}
	m := RawMeta{}
	m.Size = r.u64()
	m.Mtime = r.time()
	m.Atime = r.time()
	return m, r.err
}

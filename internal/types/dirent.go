package types

// DirEntry is a single (parent, name, child) edge in the filesystem
// tree. EncName is the wire form stored in the metadata store: either
// the plaintext UTF-8 bytes of the component, or SIV-encrypted
// ciphertext, depending on the superblock's filename-encryption
// setting (§4.5 "Filename encryption").
type DirEntry struct {
	ParentID FileId
	EncName  []byte
	ChildID  FileId
}

// XattrEntry is an extended attribute value attached to a file.
// AttrName is treated as an opaque byte string and is unique per
// FileID; Value is stored in the metadata store exactly as given, and
// is not encrypted there (§4.5 "Xattrs").
type XattrEntry struct {
	FileID   FileId
	AttrName []byte
	Value    []byte
}

// MaxNameCiphertext bounds the size of an encrypted name's wire form,
// a practical cap since the KV key size is otherwise unbounded (§4.5).
const MaxNameCiphertext = 4096

// SetxattrMode selects setxattr's create/replace/any semantics.
type SetxattrMode uint8

const (
	SetxattrAny SetxattrMode = iota
	SetxattrCreate
	SetxattrReplace
)

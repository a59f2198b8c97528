package types

import (
	"time"

	"github.com/google/uuid"
)

// Superblock is the container-level record of immutable and
// slowly-changing settings: versioning, cipher defaults, block size,
// the id allocator's high-water mark, and whether filename encryption
// is enabled. It is persisted (encrypted under config_key) in
// config.json (§6).
type Superblock struct {
	// UUID identifies this data directory's lifetime. It is generated
	// at creation and stored and parsed with the rest of the
	// superblock; nothing compares it against anything. Not part of
	// the original spec's data model (see SPEC_FULL.md §B).
	UUID uuid.UUID

	Version uint32

	DefaultCipher     CipherID
	DefaultBlockSize  uint32
	NameCipher        NameCipherID
	NameEncryption    bool

	// NextFileID is the allocator's high-water mark as recorded in
	// config.json: RootFileId+1 at creation. Id allocation advances
	// only the metadata store's counter, not this field.
	NextFileID FileId

	CreatedAt time.Time
}

// CurrentSuperblockVersion is written into every new superblock.
// Reading a superblock back parses its version without checking it.
const CurrentSuperblockVersion uint32 = 1

// NewSuperblock returns a freshly initialized superblock for a newly
// created database, with the root directory already accounted for in
// the id allocator.
func NewSuperblock(defaultCipher CipherID, blockSize uint32, nameEncryption bool, now time.Time) *Superblock {
	nameCipher := NameCipherPlaintext
	if nameEncryption {
		nameCipher = NameCipherXChaCha20SIV
	}
	return &Superblock{
		UUID:             uuid.New(),
		Version:          CurrentSuperblockVersion,
		DefaultCipher:    defaultCipher,
		DefaultBlockSize: blockSize,
		NameCipher:       nameCipher,
		NameEncryption:   nameEncryption,
		NextFileID:       RootFileId + 1,
		CreatedAt:        now,
	}
}

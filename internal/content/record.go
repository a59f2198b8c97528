// Package content implements the block-structured authenticated
// encryption layer over a raw blob (§4.3): fixed-size plaintext blocks
// are each sealed into a fixed-size ciphertext record of
// header‖ciphertext‖tag, addressed by block index within the blob.
// Holes (never-written blocks) are represented by an all-zero header
// and read back as zeroed plaintext without invoking the AEAD at all,
// giving the raw blob sparse-file semantics for free.
package content

import (
	"crypto/cipher"
	"fmt"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/types"
)

// recordLayout describes the fixed byte geometry of one block's record
// for a given cipher and block size (§4.3 "Record format").
type recordLayout struct {
	headerSize   int
	tagSize      int
	blockSize    int
	recordSize   int
}

func layoutFor(aead cipher.AEAD, blockSize uint32) recordLayout {
	return recordLayout{
		headerSize: aead.NonceSize(),
		tagSize:    aead.Overhead(),
		blockSize:  int(blockSize),
		recordSize: aead.NonceSize() + int(blockSize) + aead.Overhead(),
	}
}

// RecordSizeFor returns the fixed on-disk record size (header + block
// + tag) that cipherID/blockSize would produce, without needing real
// key material: NonceSize and Overhead depend only on the AEAD
// construction, not the key's value. Callers that need to size raw
// storage (e.g. rawstore.Clustered) before a file's actual content key
// is available use this instead of NewEngine.
func RecordSizeFor(cipherID types.CipherID, blockSize uint32) (int64, error) {
	if blockSize == 0 {
		blockSize = types.DefaultBlockSize
	}
	aead, err := crypto.AEADFor(crypto.CipherID(cipherID), make([]byte, crypto.KeySize))
	if err != nil {
		return 0, fmt.Errorf("content: RecordSizeFor: %w", err)
	}
	return int64(layoutFor(aead, blockSize).recordSize), nil
}

// isHole reports whether header (the record's leading IV/nonce field)
// marks an unwritten block (§4.3 "Hole handling": all-zero IV).
func isHole(header []byte) bool {
	for _, b := range header {
		if b != 0 {
			return false
		}
	}
	return true
}

// Engine seals and opens one file's content blocks against its raw
// blob, given the file's cipher id, per-file content key and block
// size (all persisted in the inode, §4.3).
type Engine struct {
	aead      cipher.AEAD
	layout    recordLayout
	blockSize uint32
}

// NewEngine builds the block cipher engine for one open file.
func NewEngine(cipherID types.CipherID, contentKey []byte, blockSize uint32) (*Engine, error) {
	if blockSize == 0 {
		blockSize = types.DefaultBlockSize
	}
	aead, err := crypto.AEADFor(crypto.CipherID(cipherID), contentKey)
	if err != nil {
		return nil, fmt.Errorf("content: NewEngine: %w", err)
	}
	return &Engine{aead: aead, layout: layoutFor(aead, blockSize), blockSize: blockSize}, nil
}

// BlockSize returns the plaintext block size this engine was built
// for.
func (e *Engine) BlockSize() uint32 { return e.blockSize }

// RecordSize returns the fixed ciphertext record size (header + block
// + tag) used to address the raw blob.
func (e *Engine) RecordSize() int64 { return int64(e.layout.recordSize) }

// associatedData binds each record to its file id and block index, so
// that records cannot be silently swapped between files or reordered
// within one file without the AEAD verification failing (§4.3 "AEAD
// associated data").
func associatedData(fileID types.FileId, blockIndex uint64) []byte {
	buf := make([]byte, 16)
	putUint64(buf[0:8], uint64(fileID))
	putUint64(buf[8:16], blockIndex)
	return buf
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// sealBlock encrypts one plaintext block (which may be shorter than
// BlockSize only for the final partial block of a file) into its
// ciphertext record.
func (e *Engine) sealBlock(fileID types.FileId, blockIndex uint64, plaintext []byte) ([]byte, error) {
	iv, err := crypto.RandomNonZero(e.layout.headerSize)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "content.sealBlock", uint64(fileID), err)
	}
	ad := associatedData(fileID, blockIndex)
	ciphertext := e.aead.Seal(nil, iv, plaintext, ad)
	record := make([]byte, 0, len(iv)+len(ciphertext))
	record = append(record, iv...)
	record = append(record, ciphertext...)
	return record, nil
}

// openBlock decrypts one ciphertext record, returning plaintext of the
// same length as the original sealed plaintext (<= BlockSize). A hole
// record (empty, or with an all-zero header) returns plaintextLen zero
// bytes without attempting AEAD verification.
func (e *Engine) openBlock(fileID types.FileId, blockIndex uint64, record []byte, plaintextLen int) ([]byte, error) {
	if len(record) == 0 {
		return make([]byte, plaintextLen), nil
	}
	if len(record) < e.layout.headerSize {
		return nil, bjerrors.Newf(bjerrors.DataCorruption, "content.openBlock", uint64(fileID), fmt.Errorf("short record: %d bytes, want at least %d", len(record), e.layout.headerSize))
	}
	header := record[:e.layout.headerSize]
	if isHole(header) {
		return make([]byte, plaintextLen), nil
	}
	ciphertext := record[e.layout.headerSize:]
	ad := associatedData(fileID, blockIndex)
	plaintext, err := e.aead.Open(nil, header, ciphertext, ad)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.DataCorruption, "content.openBlock", uint64(fileID), err)
	}
	return plaintext, nil
}

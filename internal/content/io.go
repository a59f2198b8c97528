package content

import (
	"errors"
	"io"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/rawstore"
	"github.com/bijoufs/bijou/internal/types"
)

// blockRange returns the inclusive range of block indices [first, last]
// that overlap [offset, offset+length).
func blockRange(blockSize uint32, offset int64, length int) (first, last uint64) {
	first = uint64(offset) / uint64(blockSize)
	if length == 0 {
		return first, first
	}
	last = uint64(offset+int64(length)-1) / uint64(blockSize)
	return first, last
}

// plaintextLenFor returns how many plaintext bytes block blockIndex
// holds for a file of logical size fileSize: BlockSize for every block
// but the last, and fileSize%BlockSize (or BlockSize if that's zero)
// for the last one.
func plaintextLenFor(blockSize uint32, fileSize uint64, blockIndex uint64) int {
	blockStart := blockIndex * uint64(blockSize)
	if blockStart >= fileSize {
		return 0
	}
	remaining := fileSize - blockStart
	if remaining > uint64(blockSize) {
		return int(blockSize)
	}
	return int(remaining)
}

// ReadAt decrypts and copies into buf the plaintext content of file
// fileID (whose logical size is fileSize) in range [offset,
// offset+len(buf)), reading records from raw. Reads past fileSize
// return 0.
func (e *Engine) ReadAt(raw rawstore.Handle, fileID types.FileId, fileSize uint64, buf []byte, offset int64) (int, error) {
	if offset < 0 || uint64(offset) >= fileSize || len(buf) == 0 {
		return 0, nil
	}
	want := len(buf)
	if uint64(offset)+uint64(want) > fileSize {
		want = int(fileSize - uint64(offset))
	}

	blockSize := int(e.blockSize)
	recordSize := e.RecordSize()
	total := 0
	for total < want {
		pos := offset + int64(total)
		blockIndex := uint64(pos) / uint64(blockSize)
		withinBlock := int(uint64(pos) % uint64(blockSize))

		plen := plaintextLenFor(e.blockSize, fileSize, blockIndex)
		if plen == 0 {
			break
		}
		record := make([]byte, e.layout.headerSize+plen+e.layout.tagSize)
		n, err := raw.ReadAt(record, int64(blockIndex)*recordSize)
		if err != nil && n == 0 && !errors.Is(err, io.EOF) {
			return total, bjerrors.Newf(bjerrors.IoError, "content.ReadAt", uint64(fileID), err)
		}
		record = record[:n]

		plaintext, err := e.openBlock(fileID, blockIndex, record, plen)
		if err != nil {
			return total, err
		}

		copyLen := len(plaintext) - withinBlock
		if copyLen <= 0 {
			break
		}
		if copyLen > want-total {
			copyLen = want - total
		}
		copy(buf[total:total+copyLen], plaintext[withinBlock:withinBlock+copyLen])
		total += copyLen
	}
	return total, nil
}

// WriteAt encrypts buf into file fileID's content at offset, performing
// decrypt-modify-encrypt for any partial block at either end of the
// range (§4.3 "Random-access write"). It returns the number of bytes
// written and the file's new logical size if it grew.
func (e *Engine) WriteAt(raw rawstore.Handle, fileID types.FileId, fileSize uint64, buf []byte, offset int64) (int, uint64, error) {
	if offset < 0 {
		return 0, fileSize, bjerrors.New(bjerrors.InvalidName, "content.WriteAt")
	}
	blockSize := int(e.blockSize)
	recordSize := e.RecordSize()
	newSize := fileSize
	if need := uint64(offset) + uint64(len(buf)); need > newSize {
		newSize = need
	}

	total := 0
	for total < len(buf) {
		pos := offset + int64(total)
		blockIndex := uint64(pos) / uint64(blockSize)
		withinBlock := int(uint64(pos) % uint64(blockSize))

		chunk := len(buf) - total
		if chunk > blockSize-withinBlock {
			chunk = blockSize - withinBlock
		}

		existingLen := plaintextLenFor(e.blockSize, fileSize, blockIndex)
		plaintext := make([]byte, blockSize)
		if existingLen > 0 {
			existingRecord := make([]byte, e.layout.headerSize+existingLen+e.layout.tagSize)
			n, err := raw.ReadAt(existingRecord, int64(blockIndex)*recordSize)
			if err == nil && n > 0 {
				existing, oerr := e.openBlock(fileID, blockIndex, existingRecord[:n], existingLen)
				if oerr != nil {
					return total, fileSize, oerr
				}
				copy(plaintext, existing)
			}
		}

		finalLen := withinBlock + chunk
		if existingLen > finalLen {
			finalLen = existingLen
		}
		if blockStart := blockIndex * uint64(blockSize); blockStart+uint64(finalLen) > newSize {
			if newSize > blockStart {
				finalLen = int(newSize - blockStart)
			}
		}

		copy(plaintext[withinBlock:withinBlock+chunk], buf[total:total+chunk])

		record, err := e.sealBlock(fileID, blockIndex, plaintext[:finalLen])
		if err != nil {
			return total, fileSize, err
		}
		if _, err := raw.WriteAt(record, int64(blockIndex)*recordSize); err != nil {
			return total, fileSize, bjerrors.Newf(bjerrors.IoError, "content.WriteAt", uint64(fileID), err)
		}

		total += chunk
	}
	return total, newSize, nil
}

// Truncate resizes the file to newSize. Growing a file creates no new
// records: reads past the old size and within the new size are served
// as holes by ReadAt without ever calling SetLen on intermediate
// blocks. Shrinking truncates the raw blob to the record boundary that
// contains newSize, re-sealing the new final partial block if needed
// so that bytes beyond newSize are not left recoverable in the
// previous tail record's ciphertext.
func (e *Engine) Truncate(raw rawstore.Handle, fileID types.FileId, oldSize uint64, newSize uint64) error {
	if newSize >= oldSize {
		return nil
	}
	blockSize := uint64(e.blockSize)
	lastBlock := uint64(0)
	if newSize > 0 {
		lastBlock = (newSize - 1) / blockSize
	}
	finalLen := plaintextLenFor(e.blockSize, newSize, lastBlock)
	if finalLen > 0 {
		oldLen := plaintextLenFor(e.blockSize, oldSize, lastBlock)
		record := make([]byte, e.layout.headerSize+oldLen+e.layout.tagSize)
		n, err := raw.ReadAt(record, int64(lastBlock)*e.RecordSize())
		var plaintext []byte
		if err == nil && n > 0 {
			plaintext, err = e.openBlock(fileID, lastBlock, record[:n], oldLen)
		}
		if err != nil || plaintext == nil {
			plaintext = make([]byte, oldLen)
		}
		trimmed := make([]byte, finalLen)
		copy(trimmed, plaintext[:finalLen])
		sealed, err := e.sealBlock(fileID, lastBlock, trimmed)
		if err != nil {
			return err
		}
		if _, err := raw.WriteAt(sealed, int64(lastBlock)*e.RecordSize()); err != nil {
			return bjerrors.Newf(bjerrors.IoError, "content.Truncate", uint64(fileID), err)
		}
	}
	newRecordCount := lastBlock + 1
	if newSize == 0 {
		newRecordCount = 0
	}
	if err := raw.SetLen(int64(newRecordCount) * e.RecordSize()); err != nil {
		return bjerrors.Newf(bjerrors.IoError, "content.Truncate", uint64(fileID), err)
	}
	return nil
}

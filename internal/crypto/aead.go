// Package crypto adapts a small, closed set of AEADs and key-derivation
// primitives to the uniform shape Bijou's content cipher engine and key
// hierarchy need: AES-256-GCM and XChaCha20-Poly1305 for content
// blocks, a deterministic XChaCha20-SIV construction for filenames,
// Argon2id for the passphrase KDF, and keyed BLAKE2b for subkey and
// per-file key derivation (§4.1 item 1).
//
// Dispatch among AEADs is via a tagged variant (types.CipherID) chosen
// once at file-creation time and stored in the inode, never via
// runtime reflection (§9 "Dynamic dispatch for AEAD").
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of every key in Bijou's hierarchy and
// every per-file content key.
const KeySize = 32

// AEADFor constructs the cipher.AEAD for the given cipher id and key.
// The returned AEAD's NonceSize and Overhead determine a record's
// header and tag sizes in internal/content.
func AEADFor(id CipherID, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: AEADFor: key must be %d bytes, got %d", KeySize, len(key))
	}
	switch id {
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("crypto: AEADFor: aes: %w", err)
		}
		return cipher.NewGCM(block)
	case CipherXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("crypto: AEADFor: unknown cipher id %d", id)
	}
}

// CipherID mirrors types.CipherID without importing internal/types,
// keeping this package free of a dependency on the data model.
// internal/content converts between the two with a one-line cast; they
// share the same underlying representation and numbering (see
// internal/content/record.go).
type CipherID = uint8

const (
	CipherAES256GCM         CipherID = 0
	CipherXChaCha20Poly1305 CipherID = 1
)

// RandomKey returns a fresh CSPRNG-drawn key of KeySize bytes.
func RandomKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return nil, fmt.Errorf("crypto: RandomKey: %w", err)
	}
	return k, nil
}

// RandomBytes returns n CSPRNG-drawn bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("crypto: RandomBytes: %w", err)
	}
	return b, nil
}

// RandomNonZero draws a random buffer of n bytes, redrawing if the
// result happens to be all-zero. The content cipher engine relies on
// this to guarantee a freshly generated record IV is never confused
// with the all-zero "hole" marker (§4.3 "Hole handling").
func RandomNonZero(n int) ([]byte, error) {
	for {
		b, err := RandomBytes(n)
		if err != nil {
			return nil, err
		}
		if !isAllZero(b) {
			return b, nil
		}
	}
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

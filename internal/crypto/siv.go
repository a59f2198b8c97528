package crypto

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// SIVNonceSize is the size of the synthetic nonce XChaCha20-SIV
// derives internally; callers never supply one (that's the point of
// a SIV/deterministic construction: the same (key, plaintext, AD)
// always yields the same ciphertext).
const SIVNonceSize = chacha20poly1305.NonceSizeX

// XChaCha20SIV is a deterministic AEAD for encrypting filenames
// (§4.1, §4.5 "Filename encryption"). It is built the way the HS1-SIV
// reference composes a keyed MAC with a stream cipher: a keyed BLAKE2b
// digest of (associatedData, plaintext) stands in for the random
// nonce a conventional AEAD would require, so identical (key, AD,
// plaintext) triples always produce identical ciphertext, while any
// change to the plaintext or AD produces an unrelated nonce and hence
// unrelated ciphertext. Associated data here is the parent directory's
// file id, so identical names in different directories are
// unlinkable even though lookups stay deterministic.
//
// This is not a generic building block: the spec calls for exactly
// this property (deterministic, key+AD-dependent) for one purpose
// (directory entry names), so it lives next to the AEAD adapter rather
// than as a reusable library type.
type XChaCha20SIV struct {
	key [KeySize]byte
}

// NewXChaCha20SIV constructs a SIV instance bound to key.
func NewXChaCha20SIV(key []byte) (*XChaCha20SIV, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: NewXChaCha20SIV: key must be %d bytes", KeySize)
	}
	s := &XChaCha20SIV{}
	copy(s.key[:], key)
	return s, nil
}

// synthesize derives the synthetic nonce for (associatedData, plaintext).
func (s *XChaCha20SIV) synthesize(associatedData, plaintext []byte) ([SIVNonceSize]byte, error) {
	var nonce [SIVNonceSize]byte
	h, err := blake2b.New(SIVNonceSize, s.key[:])
	if err != nil {
		return nonce, fmt.Errorf("crypto: siv: %w", err)
	}
	var lenPrefix [8]byte
	putUint64(lenPrefix[:], uint64(len(associatedData)))
	h.Write(lenPrefix[:])
	h.Write(associatedData)
	h.Write(plaintext)
	copy(nonce[:], h.Sum(nil))
	return nonce, nil
}

// Seal deterministically encrypts plaintext under associatedData,
// returning nonce||ciphertext||tag. The same (key, associatedData,
// plaintext) always produces the same output; this is the whole
// point for deterministic directory lookups (§8 "Name encryption
// determinism").
func (s *XChaCha20SIV) Seal(associatedData, plaintext []byte) ([]byte, error) {
	nonce, err := s.synthesize(associatedData, plaintext)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: siv: %w", err)
	}
	out := make([]byte, 0, SIVNonceSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce[:]...)
	out = aead.Seal(out, nonce[:], plaintext, associatedData)
	return out, nil
}

// Open decrypts a blob produced by Seal, authenticating associatedData.
func (s *XChaCha20SIV) Open(associatedData, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < SIVNonceSize {
		return nil, fmt.Errorf("crypto: siv: ciphertext too short")
	}
	nonce := ciphertext[:SIVNonceSize]
	body := ciphertext[SIVNonceSize:]
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: siv: %w", err)
	}
	return aead.Open(nil, nonce, body, associatedData)
}

// EncryptName encrypts a directory entry's component name under the
// filename key, binding the parent's file id as associated data so
// that identical plaintext names in different directories produce
// different ciphertexts, while a given (parent, name) pair always
// resolves to one ciphertext (§4.5).
func EncryptName(filenameKey []byte, parentID uint64, name []byte) ([]byte, error) {
	s, err := NewXChaCha20SIV(filenameKey)
	if err != nil {
		return nil, err
	}
	ad := make([]byte, 8)
	putUint64(ad, parentID)
	return s.Seal(ad, name)
}

// DecryptName reverses EncryptName.
func DecryptName(filenameKey []byte, parentID uint64, ciphertext []byte) ([]byte, error) {
	s, err := NewXChaCha20SIV(filenameKey)
	if err != nil {
		return nil, err
	}
	ad := make([]byte, 8)
	putUint64(ad, parentID)
	return s.Open(ad, ciphertext)
}

// ConstantTimeEqual reports whether a and b are equal, in time that
// does not depend on where they differ. Nothing in this module calls
// it.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

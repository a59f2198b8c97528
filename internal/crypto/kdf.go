package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Argon2Params are the Argon2id tuning parameters persisted in
// keystore.json (§4.1, §6).
type Argon2Params struct {
	Memory      uint32 // KiB
	Time        uint32 // iterations
	Parallelism uint8
	Salt        []byte
}

// DefaultArgon2Params are conservative interactive-use parameters,
// comparable to the OWASP-recommended minimum for Argon2id.
func DefaultArgon2Params(salt []byte) Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 4,
		Salt:        salt,
	}
}

// DeriveFromPassphrase runs Argon2id over the passphrase, returning a
// KeySize-byte key suitable for unwrapping the master key.
func DeriveFromPassphrase(passphrase string, p Argon2Params) []byte {
	return argon2.IDKey([]byte(passphrase), p.Salt, p.Time, p.Memory, p.Parallelism, KeySize)
}

// Domain labels for keyed-BLAKE2b subkey derivation (§4.1). Each
// subkey is BLAKE2b-256 keyed by the master key, with the label as
// the hashed message, giving four independent, non-invertible subkeys
// from one root.
var (
	domainConfigKey   = []byte("bijou/config_key/v1")
	domainContentRoot = []byte("bijou/content_key/v1")
	domainFilenameRoot = []byte("bijou/filename_key/v1")
	domainDBKey       = []byte("bijou/db_key/v1")
)

// Subkeys holds the four purpose-specific keys derived from the master
// key (§4.1). ContentRoot is a derivation root, not used directly as
// an AEAD key: each file's content key is derived from it
// (internal/content, via DerivePerFileKey). FilenameRoot, by contrast,
// is used directly as the SIV key for directory-entry-name encryption
// (internal/fsengine); only the parent directory's file id varies
// per call, as associated data, not the key itself.
type Subkeys struct {
	ConfigKey    [KeySize]byte
	ContentRoot  [KeySize]byte
	FilenameRoot [KeySize]byte
	DBKey        [KeySize]byte
}

// DeriveSubkeys expands a 32-byte master key into the four subkeys via
// keyed BLAKE2b with fixed, distinct domain labels.
func DeriveSubkeys(masterKey []byte) (*Subkeys, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("crypto: DeriveSubkeys: master key must be %d bytes", KeySize)
	}
	sk := &Subkeys{}
	for _, kv := range []struct {
		label []byte
		out   *[KeySize]byte
	}{
		{domainConfigKey, &sk.ConfigKey},
		{domainContentRoot, &sk.ContentRoot},
		{domainFilenameRoot, &sk.FilenameRoot},
		{domainDBKey, &sk.DBKey},
	} {
		digest, err := KeyedBlake2b256(masterKey, kv.label)
		if err != nil {
			return nil, err
		}
		*kv.out = digest
	}
	return sk, nil
}

// KeyedBlake2b256 computes BLAKE2b-256 keyed by key over message.
func KeyedBlake2b256(key, message []byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	h, err := blake2b.New256(key)
	if err != nil {
		return out, fmt.Errorf("crypto: KeyedBlake2b256: %w", err)
	}
	h.Write(message)
	copy(out[:], h.Sum(nil))
	return out, nil
}

// DerivePerFileKey derives a per-file content key from the content-key
// derivation root, the file id, and a random per-file salt stored in
// the inode (§4.3 "Per-file key"). The key is reproducible for the
// life of the inode because (contentRoot, fileID, salt) never changes.
func DerivePerFileKey(contentRoot []byte, fileID uint64, salt []byte) ([KeySize]byte, error) {
	msg := make([]byte, 8+len(salt))
	putUint64(msg, fileID)
	copy(msg[8:], salt)
	return KeyedBlake2b256(contentRoot, msg)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Package keys implements Bijou's key hierarchy (§4.1): unwrapping the
// master key from a passphrase-protected keystore file, deriving the
// four purpose-specific subkeys, and reading/writing the encrypted
// configuration file that carries the superblock.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/bijoufs/bijou/internal/bjerrors"
	bjcrypto "github.com/bijoufs/bijou/internal/crypto"
)

// KeystoreFileName and ConfigFileName are the on-disk artifact names
// under the data directory (§6).
const (
	KeystoreFileName = "keystore.json"
	ConfigFileName   = "config.json"
	wrapNonceSize    = 12 // AES-256-GCM nonce size, used for the master-key wrap
)

// keystoreFile is the plaintext JSON envelope persisted as
// keystore.json (§6): Argon2id parameters plus the master key wrapped
// under the passphrase-derived key with AES-256-GCM.
type keystoreFile struct {
	KDF  string `json:"kdf"`
	M    uint32 `json:"m"`
	T    uint32 `json:"t"`
	P    uint8  `json:"p"`
	Salt string `json:"salt_b64"`
	Wrap struct {
		Nonce      string `json:"nonce_b64"`
		Ciphertext string `json:"ciphertext_b64"`
	} `json:"wrap"`
}

// CreateKeystore generates a fresh random master key, wraps it under a
// passphrase-derived Argon2id key, and writes keystore.json to dir.
// It returns the unwrapped master key so the caller can proceed to
// derive subkeys and initialize config.json without re-prompting.
func CreateKeystore(dir, passphrase string) ([]byte, error) {
	masterKey, err := bjcrypto.RandomKey()
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "CreateKeystore", 0, err)
	}

	salt, err := bjcrypto.RandomBytes(16)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "CreateKeystore", 0, err)
	}
	params := bjcrypto.DefaultArgon2Params(salt)
	wrapKey := bjcrypto.DeriveFromPassphrase(passphrase, params)

	nonce, err := bjcrypto.RandomBytes(wrapNonceSize)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "CreateKeystore", 0, err)
	}
	ciphertext, err := sealAESGCM(wrapKey, nonce, masterKey)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "CreateKeystore", 0, err)
	}

	var kf keystoreFile
	kf.KDF = "argon2id"
	kf.M = params.Memory
	kf.T = params.Time
	kf.P = params.Parallelism
	kf.Salt = base64.StdEncoding.EncodeToString(salt)
	kf.Wrap.Nonce = base64.StdEncoding.EncodeToString(nonce)
	kf.Wrap.Ciphertext = base64.StdEncoding.EncodeToString(ciphertext)

	if err := writeJSONFile(filepath.Join(dir, KeystoreFileName), &kf); err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "CreateKeystore", 0, err)
	}
	return masterKey, nil
}

// UnwrapMasterKey reads keystore.json from dir and recovers the master
// key from passphrase. A wrong passphrase or tampered ciphertext
// surfaces as AuthFailed (§4.1 "Errors"); a structurally broken
// keystore file surfaces as CorruptKeystore.
func UnwrapMasterKey(dir, passphrase string) ([]byte, error) {
	var kf keystoreFile
	if err := readJSONFile(filepath.Join(dir, KeystoreFileName), &kf); err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptKeystore, "UnwrapMasterKey", 0, err)
	}
	if kf.KDF != "argon2id" {
		return nil, bjerrors.New(bjerrors.CorruptKeystore, "UnwrapMasterKey: unsupported kdf")
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptKeystore, "UnwrapMasterKey", 0, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Wrap.Nonce)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptKeystore, "UnwrapMasterKey", 0, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Wrap.Ciphertext)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptKeystore, "UnwrapMasterKey", 0, err)
	}

	params := bjcrypto.Argon2Params{Memory: kf.M, Time: kf.T, Parallelism: kf.P, Salt: salt}
	wrapKey := bjcrypto.DeriveFromPassphrase(passphrase, params)

	masterKey, err := openAESGCM(wrapKey, nonce, ciphertext)
	if err != nil {
		// Authentication failure here is ambiguous between "wrong
		// passphrase" and "tampered file"; the spec treats both as
		// AuthFailed (§4.1 "Errors": wrong passphrase -> AuthFailed).
		return nil, bjerrors.Newf(bjerrors.AuthFailed, "UnwrapMasterKey", 0, err)
	}
	return masterKey, nil
}

func sealAESGCM(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

func openAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

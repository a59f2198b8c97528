package keys

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	bjcrypto "github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/google/uuid"
)

// configPayload is the plaintext JSON shape encrypted under config_key
// and persisted as config.json (§6): "ciphertext blob under
// config_key; plaintext payload JSON carries superblock fields".
type configPayload struct {
	UUID             string `json:"uuid"`
	Version          uint32 `json:"version"`
	DefaultCipher    uint8  `json:"default_cipher"`
	DefaultBlockSize uint32 `json:"default_block_size"`
	NameCipher       uint8  `json:"name_cipher"`
	NameEncryption   bool   `json:"name_encryption"`
	NextFileID       uint64 `json:"next_file_id"`
	CreatedAt        int64  `json:"created_at_unix_nano"`
}

type configFile struct {
	Nonce      string `json:"nonce_b64"`
	Ciphertext string `json:"ciphertext_b64"`
}

const configNonceSize = 12

// WriteSuperblock encrypts sb under configKey and writes config.json
// in dir, overwriting any existing file.
func WriteSuperblock(dir string, configKey []byte, sb *types.Superblock) error {
	payload := configPayload{
		UUID:             sb.UUID.String(),
		Version:          sb.Version,
		DefaultCipher:    uint8(sb.DefaultCipher),
		DefaultBlockSize: sb.DefaultBlockSize,
		NameCipher:       uint8(sb.NameCipher),
		NameEncryption:   sb.NameEncryption,
		NextFileID:       uint64(sb.NextFileID),
		CreatedAt:        sb.CreatedAt.UnixNano(),
	}
	plaintext, err := json.Marshal(&payload)
	if err != nil {
		return bjerrors.Newf(bjerrors.CorruptConfig, "WriteSuperblock", 0, err)
	}

	nonce, err := bjcrypto.RandomBytes(configNonceSize)
	if err != nil {
		return bjerrors.Newf(bjerrors.IoError, "WriteSuperblock", 0, err)
	}
	ciphertext, err := sealAESGCM(configKey, nonce, plaintext)
	if err != nil {
		return bjerrors.Newf(bjerrors.IoError, "WriteSuperblock", 0, err)
	}

	var cf configFile
	cf.Nonce = base64.StdEncoding.EncodeToString(nonce)
	cf.Ciphertext = base64.StdEncoding.EncodeToString(ciphertext)
	if err := writeJSONFile(filepath.Join(dir, ConfigFileName), &cf); err != nil {
		return bjerrors.Newf(bjerrors.IoError, "WriteSuperblock", 0, err)
	}
	return nil
}

// ReadSuperblock decrypts config.json under configKey and returns the
// superblock it carries. Authentication failure (wrong master key, or
// tampering) surfaces as CorruptConfig: by the time the caller has a
// configKey at all, the passphrase has already been verified via the
// keystore, so a mismatch here means the config file itself is broken
// rather than the password being wrong.
func ReadSuperblock(dir string, configKey []byte) (*types.Superblock, error) {
	var cf configFile
	if err := readJSONFile(filepath.Join(dir, ConfigFileName), &cf); err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(cf.Nonce)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cf.Ciphertext)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}
	plaintext, err := openAESGCM(configKey, nonce, ciphertext)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}

	var payload configPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}
	id, err := uuid.Parse(payload.UUID)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.CorruptConfig, "ReadSuperblock", 0, err)
	}
	return &types.Superblock{
		UUID:             id,
		Version:          payload.Version,
		DefaultCipher:    types.CipherID(payload.DefaultCipher),
		DefaultBlockSize: payload.DefaultBlockSize,
		NameCipher:       types.NameCipherID(payload.NameCipher),
		NameEncryption:   payload.NameEncryption,
		NextFileID:       types.FileId(payload.NextFileID),
		CreatedAt:        time.Unix(0, payload.CreatedAt).UTC(),
	}, nil
}

// DataDirExists reports whether dir already holds a keystore, used by
// Create to refuse to overwrite an existing database.
func DataDirExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, KeystoreFileName))
	return err == nil
}

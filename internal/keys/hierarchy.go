package keys

import (
	"os"
	"time"

	"github.com/bijoufs/bijou/internal/bjerrors"
	bjcrypto "github.com/bijoufs/bijou/internal/crypto"
	"github.com/bijoufs/bijou/internal/types"
)

// Hierarchy is the unwrapped key material and superblock for one open
// database: the four subkeys (§4.1) plus the superblock they were
// used to decrypt. It is the single object the mount lifecycle (§5
// "Mount lifecycle") threads through to the metadata store, raw store
// and content engine.
type Hierarchy struct {
	Subkeys    *bjcrypto.Subkeys
	Superblock *types.Superblock
}

// Create initializes a brand-new data directory: writes keystore.json
// and an initial config.json, and returns the opened Hierarchy. Fails
// with AlreadyExists if dir already holds a keystore.
func Create(dir, passphrase string, defaultCipher types.CipherID, blockSize uint32, nameEncryption bool) (*Hierarchy, error) {
	if DataDirExists(dir) {
		return nil, bjerrors.New(bjerrors.AlreadyExists, "keys.Create")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "keys.Create", 0, err)
	}

	masterKey, err := CreateKeystore(dir, passphrase)
	if err != nil {
		return nil, err
	}
	subkeys, err := bjcrypto.DeriveSubkeys(masterKey)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "keys.Create", 0, err)
	}

	sb := types.NewSuperblock(defaultCipher, blockSize, nameEncryption, time.Now().UTC())
	if err := WriteSuperblock(dir, subkeys.ConfigKey[:], sb); err != nil {
		return nil, err
	}
	return &Hierarchy{Subkeys: subkeys, Superblock: sb}, nil
}

// Open unwraps an existing data directory's keystore and decrypts its
// superblock. A wrong passphrase surfaces as AuthFailed (propagated
// from UnwrapMasterKey) without touching config.json at all; the data
// directory is never modified by Open.
func Open(dir, passphrase string) (*Hierarchy, error) {
	masterKey, err := UnwrapMasterKey(dir, passphrase)
	if err != nil {
		return nil, err
	}
	subkeys, err := bjcrypto.DeriveSubkeys(masterKey)
	if err != nil {
		return nil, bjerrors.Newf(bjerrors.IoError, "keys.Open", 0, err)
	}
	sb, err := ReadSuperblock(dir, subkeys.ConfigKey[:])
	if err != nil {
		return nil, err
	}
	return &Hierarchy{Subkeys: subkeys, Superblock: sb}, nil
}

// PersistNextFileID updates the superblock's id-allocator high-water
// mark and rewrites config.json. Nothing in this module calls it: id
// allocation persists its counter only in the metadata store
// (metastore.Store.AllocateID), so after Create the superblock keeps
// the NextFileID it was created with.
func (h *Hierarchy) PersistNextFileID(dir string, next types.FileId) error {
	h.Superblock.NextFileID = next
	return WriteSuperblock(dir, h.Subkeys.ConfigKey[:], h.Superblock)
}

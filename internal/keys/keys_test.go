package keys

import (
	"path/filepath"
	"testing"

	"github.com/bijoufs/bijou/internal/bjerrors"
	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapMasterKeyWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateKeystore(dir, "correct horse battery staple")
	require.NoError(t, err)

	_, err = UnwrapMasterKey(dir, "wrong passphrase entirely")
	require.Error(t, err)
	assert.True(t, bjerrors.Is(err, bjerrors.AuthFailed))
}

func TestUnwrapMasterKeyCorrectPassphrase(t *testing.T) {
	dir := t.TempDir()
	masterKey, err := CreateKeystore(dir, "correct horse battery staple")
	require.NoError(t, err)

	got, err := UnwrapMasterKey(dir, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, masterKey, got)
}

func TestOpenWrongPassphraseIsAuthFailed(t *testing.T) {
	dir := t.TempDir()
	_, err := Create(dir, "correct horse battery staple", types.CipherAES256GCM, 4096, false)
	require.NoError(t, err)

	_, err = Open(dir, "incorrect horse battery staple")
	require.Error(t, err)
	assert.True(t, bjerrors.Is(err, bjerrors.AuthFailed))
}

func TestUnwrapMasterKeyCorruptKeystore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeJSONFile(filepath.Join(dir, KeystoreFileName), map[string]string{"kdf": "bogus"}))

	_, err := UnwrapMasterKey(dir, "anything")
	require.Error(t, err)
	assert.True(t, bjerrors.Is(err, bjerrors.CorruptKeystore))
}

package cmd

import (
	"testing"

	"github.com/bijoufs/bijou/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherFromFlag(t *testing.T) {
	cipher, err := cipherFromFlag("aes256gcm")
	require.NoError(t, err)
	assert.Equal(t, types.CipherAES256GCM, cipher)

	cipher, err = cipherFromFlag("xchacha20poly1305")
	require.NoError(t, err)
	assert.Equal(t, types.CipherXChaCha20Poly1305, cipher)

	_, err = cipherFromFlag("rot13")
	assert.Error(t, err)
}

func TestTrimNewline(t *testing.T) {
	assert.Equal(t, "hunter2", trimNewline("hunter2\n"))
	assert.Equal(t, "hunter2", trimNewline("hunter2\r\n"))
	assert.Equal(t, "hunter2", trimNewline("hunter2"))
	assert.Equal(t, "", trimNewline("\n"))
}

package bjconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 4096, cfg.DefaultBlockSize)
	assert.EqualValues(t, 0, cfg.DefaultCipher)
	assert.EqualValues(t, 1024, cfg.ClusterSize)
	assert.False(t, cfg.AllowOther)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, os.Setenv("BIJOU_ALLOW_OTHER", "true"))
	defer os.Unsetenv("BIJOU_ALLOW_OTHER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowOther)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, os.WriteFile("bijou-config.yaml", []byte("cluster_size: 512\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 512, cfg.ClusterSize)
}

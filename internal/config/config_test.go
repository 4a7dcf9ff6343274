package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFileOrFlags(t *testing.T) {
	dir := t.TempDir()
	aliasFile := filepath.Join(dir, "aliases.conf")
	require.NoError(t, os.WriteFile(aliasFile, nil, 0o644))

	t.Setenv("NFSD_ALIAS_FILE", aliasFile)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 111, cfg.Listen.Portmap)
	assert.Equal(t, 20048, cfg.Listen.Mount)
	assert.Equal(t, 2049, cfg.Listen.NFS)
	assert.Equal(t, uint32(65534), cfg.Identity.DefaultUID)
	assert.Equal(t, aliasFile, cfg.AliasFile)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
listen:
  nfs: 12049
alias_file: `+filepath.Join(dir, "a.conf")+`
cache_file: `+filepath.Join(dir, "cache")+`
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 12049, cfg.Listen.NFS)
	// Unspecified fields still pick up defaults.
	assert.Equal(t, 111, cfg.Listen.Portmap)
}

func TestLoadFlagsOutrankFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen:
  nfs: 12049
alias_file: `+filepath.Join(dir, "a.conf")+`
cache_file: `+filepath.Join(dir, "cache")+`
`), 0o644))

	t.Setenv("NFSD_LISTEN_NFS", "22049")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Set("listen.nfs", "32049"))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, 32049, cfg.Listen.NFS)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: LOUD
alias_file: `+filepath.Join(dir, "a.conf")+`
cache_file: `+filepath.Join(dir, "cache")+`
`), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen:
  nfs: 99999
alias_file: `+filepath.Join(dir, "a.conf")+`
cache_file: `+filepath.Join(dir, "cache")+`
`), 0o644))

	_, err := Load(path, nil)
	assert.Error(t, err)
}

func TestLoadMissingConfigFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliasFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.conf")
	content := "# exports\n" +
		"/exports   C:\\srv\n" +
		"\n" +
		"  /exports/data \t C:\\srv\\data with spaces  \n" +
		"# trailing comment\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	mappings, err := ParseAliasFile(path)
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	assert.Equal(t, "/exports", mappings[0].AliasPath)
	assert.Equal(t, `C:\srv`, mappings[0].HostPath)
	assert.Equal(t, "/exports/data", mappings[1].AliasPath)
	assert.Equal(t, `C:\srv\data with spaces`, mappings[1].HostPath)
}

func TestParseAliasFileRejectsMissingHostPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.conf")
	require.NoError(t, os.WriteFile(path, []byte("/exports\n"), 0o644))

	_, err := ParseAliasFile(path)
	assert.Error(t, err)
}

func TestParseAliasFileMissingFile(t *testing.T) {
	_, err := ParseAliasFile(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

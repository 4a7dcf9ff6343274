package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLongestPrefixMatch(t *testing.T) {
	r := New(nil)
	src := r.NewSource()
	require.NoError(t, r.Set(src, []Mapping{
		{HostPath: `C:\a`, AliasPath: "/a"},
		{HostPath: `C:\a\b`, AliasPath: "/a/b"},
	}))

	t.Run("DeeperQueryResolvesThroughLongerAlias", func(t *testing.T) {
		host, ok := r.Resolve("/a/b/c")
		require.True(t, ok)
		assert.Equal(t, `C:\a\b\c`, host)
	})

	t.Run("SiblingNameDoesNotFalsePrefixMatch", func(t *testing.T) {
		host, ok := r.Resolve("/a/bz")
		require.True(t, ok)
		assert.Equal(t, `C:\a\bz`, host)
	})

	t.Run("ExactAliasMatchesItself", func(t *testing.T) {
		host, ok := r.Resolve("/a/b")
		require.True(t, ok)
		assert.Equal(t, `C:\a\b`, host)
	})

	t.Run("UnrelatedQueryDoesNotMatch", func(t *testing.T) {
		_, ok := r.Resolve("/x")
		assert.False(t, ok)
	})
}

func TestSourceIsolation(t *testing.T) {
	r := New(nil)
	s1 := r.NewSource()
	s2 := r.NewSource()

	require.NoError(t, r.Set(s1, []Mapping{{HostPath: `C:\one`, AliasPath: "/one"}}))
	require.NoError(t, r.Set(s2, []Mapping{{HostPath: `C:\two`, AliasPath: "/two"}}))
	require.NoError(t, r.Set(s1, []Mapping{{HostPath: `C:\one-v2`, AliasPath: "/one"}}))

	t.Run("ReplacedSourceEntryUpdated", func(t *testing.T) {
		host, ok := r.Resolve("/one")
		require.True(t, ok)
		assert.Equal(t, `C:\one-v2`, host)
	})

	t.Run("OtherSourceEntryUnaffected", func(t *testing.T) {
		host, ok := r.Resolve("/two")
		require.True(t, ok)
		assert.Equal(t, `C:\two`, host)
	})
}

func TestSynthesizedAlias(t *testing.T) {
	r := New(nil)
	src := r.NewSource()
	require.NoError(t, r.Set(src, []Mapping{{HostPath: `\\?\C:\foo\bar\`}}))

	host, ok := r.Resolve("/C/foo/bar")
	require.True(t, ok)
	assert.Equal(t, `\\?\C:\foo\bar\`, host)
}

func TestValidation(t *testing.T) {
	r := New(nil)
	src := r.NewSource()

	t.Run("RejectsMissingLeadingSlash", func(t *testing.T) {
		err := r.Set(src, []Mapping{{HostPath: `C:\x`, AliasPath: "x"}})
		assert.Error(t, err)
	})

	t.Run("RejectsControlCharacters", func(t *testing.T) {
		err := r.Set(src, []Mapping{{HostPath: `C:\x`, AliasPath: "/x\x01y"}})
		assert.Error(t, err)
	})
}

type denyAll struct{}

func (denyAll) CanOpen(string) bool { return false }

func TestOpenCheckerSkipsUnopenable(t *testing.T) {
	r := New(denyAll{})
	src := r.NewSource()
	require.NoError(t, r.Set(src, []Mapping{{HostPath: `C:\gone`, AliasPath: "/gone"}}))

	_, ok := r.Resolve("/gone")
	assert.False(t, ok)
}

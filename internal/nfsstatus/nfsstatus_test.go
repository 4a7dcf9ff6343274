package nfsstatus

import (
	"fmt"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHostError(t *testing.T) {
	t.Run("NilIsOK", func(t *testing.T) {
		assert.Equal(t, OK, FromHostError(nil))
	})

	t.Run("NotExistSentinelMapsToNoEnt", func(t *testing.T) {
		_, err := os.Open(fmt.Sprintf("/nonexistent-path-%d", os.Getpid()))
		assert.Equal(t, ErrNoEnt, FromHostError(err))
	})

	t.Run("PathErrorUnwrapsToUnderlyingErrno", func(t *testing.T) {
		err := &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOTDIR}
		assert.Equal(t, ErrNotDir, FromHostError(err))
	})

	t.Run("UnknownErrorDefaultsToIO", func(t *testing.T) {
		assert.Equal(t, ErrIO, FromHostError(fmt.Errorf("boom")))
	})

	t.Run("ENOTEMPTYMapsToNotEmpty", func(t *testing.T) {
		assert.Equal(t, ErrNotEmpty, FromHostError(syscall.ENOTEMPTY))
	})
}

func TestFromHostErrorMount(t *testing.T) {
	t.Run("NoEntNarrowsToMountNoEnt", func(t *testing.T) {
		assert.Equal(t, MountErrNoEnt, FromHostErrorMount(syscall.ENOENT))
	})

	t.Run("UnmappedCodeFallsBackToIO", func(t *testing.T) {
		assert.Equal(t, MountErrIO, FromHostErrorMount(syscall.ENOSPC))
	})
}

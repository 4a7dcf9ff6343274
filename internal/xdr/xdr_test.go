package xdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderIntegers(t *testing.T) {
	t.Run("GetU32BEBigEndian", func(t *testing.T) {
		r := NewReader([]byte{0x00, 0x00, 0x01, 0x02})
		assert.Equal(t, uint32(0x0102), r.GetU32BE(0))
		assert.True(t, r.Valid())
	})

	t.Run("GetU64BEBigEndian", func(t *testing.T) {
		r := NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
		assert.Equal(t, uint64(0x0102030405060708), r.GetU64BE(8))
		assert.True(t, r.Valid())
	})

	t.Run("OutOfBoundsInvalidatesReader", func(t *testing.T) {
		r := NewReader([]byte{0x01, 0x02})
		r.GetU32BE(0)
		assert.False(t, r.Valid())
	})

	t.Run("OnceInvalidStaysInvalid", func(t *testing.T) {
		r := NewReader([]byte{0x01, 0x02, 0x03, 0x04})
		r.GetU32BE(4) // out of bounds
		require.False(t, r.Valid())
		r.GetU32BE(0) // would otherwise succeed
		assert.False(t, r.Valid())
	})
}

func TestReaderSub(t *testing.T) {
	t.Run("SubViewAddressesRelativeToItsOwnStart", func(t *testing.T) {
		r := NewReader([]byte{0xAA, 0xAA, 0x01, 0x02, 0x03, 0x04, 0xBB})
		sub := r.Sub(2, 4)
		require.True(t, sub.Valid())
		assert.Equal(t, uint32(0x01020304), sub.GetU32BE(0))
	})

	t.Run("SubPastEndIsInvalid", func(t *testing.T) {
		r := NewReader([]byte{0x01, 0x02})
		sub := r.Sub(0, 10)
		assert.False(t, sub.Valid())
	})
}

func TestOpaqueRoundTrip(t *testing.T) {
	t.Run("RoundTripsThroughWriteAndRead", func(t *testing.T) {
		w := NewWriter(16)
		ok := WriteOpaque(w, []byte{0x01, 0x02, 0x03}, 1024)
		require.True(t, ok)
		assert.Equal(t, 0, w.Len()%4, "opaque encoding must be 4-byte aligned")

		r := NewReader(w.Bytes())
		data, wireSize, ok := ReadOpaque(r, 0, 1024)
		require.True(t, ok)
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, data)
		assert.Equal(t, w.Len(), wireSize)
	})

	t.Run("RejectsLengthOverMax", func(t *testing.T) {
		w := NewWriter(16)
		ok := WriteOpaque(w, make([]byte, 100), 10)
		assert.False(t, ok)
		assert.Equal(t, 0, w.Len())
	})

	t.Run("ReadRejectsDeclaredLengthOverMax", func(t *testing.T) {
		w := NewWriter(16)
		require.True(t, WriteOpaque(w, make([]byte, 100), 1024))

		r := NewReader(w.Bytes())
		_, _, ok := ReadOpaque(r, 0, 10)
		assert.False(t, ok)
	})

	t.Run("ReadRejectsTruncatedPaddingRegion", func(t *testing.T) {
		// length=3 declares 1 byte of padding but the buffer ends early.
		buf := []byte{0, 0, 0, 3, 0x01, 0x02, 0x03}
		r := NewReader(buf)
		_, _, ok := ReadOpaque(r, 0, 1024)
		assert.False(t, ok)
	})
}

func TestWriteList(t *testing.T) {
	t.Run("EncodesPresentThenAbsent", func(t *testing.T) {
		w := NewWriter(32)
		WriteList(w, []uint32{1, 2, 3}, func(w *Writer, v uint32) {
			w.AppendU32(v)
		})

		r := NewReader(w.Bytes())
		off := 0
		var decoded []uint32
		for {
			present := r.GetU32BE(off)
			off += 4
			if present == 0 {
				break
			}
			decoded = append(decoded, r.GetU32BE(off))
			off += 4
		}
		require.True(t, r.Valid())
		assert.Equal(t, []uint32{1, 2, 3}, decoded)
	})

	t.Run("EmptyListIsJustAbsentFlag", func(t *testing.T) {
		w := NewWriter(4)
		WriteList(w, []uint32{}, func(w *Writer, v uint32) { w.AppendU32(v) })
		assert.Equal(t, []byte{0, 0, 0, 0}, w.Bytes())
	})
}

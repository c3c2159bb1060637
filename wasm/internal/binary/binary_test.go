package binary

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsignedRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 624485, math.MaxUint32, math.MaxUint64} {
		w := NewWriter()
		w.WriteU64(v)
		got, err := NewReader(w.Bytes()).ReadU64()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestSignedRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, 64, -64, -65, -123456, math.MinInt64, math.MaxInt64} {
		w := NewWriter()
		w.WriteS64(v)
		got, err := NewReader(w.Bytes()).ReadS64()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestKnownEncodings(t *testing.T) {
	w := NewWriter()
	w.WriteU32(624485)
	assert.Equal(t, []byte{0xE5, 0x8E, 0x26}, w.Bytes())

	w = NewWriter()
	w.WriteS32(-123456)
	assert.Equal(t, []byte{0xC0, 0xBB, 0x78}, w.Bytes())

	w = NewWriter()
	w.WriteS32(-64)
	assert.Equal(t, []byte{0x40}, w.Bytes())
}

func TestReadU32Overflow(t *testing.T) {
	_, err := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F}).ReadU32()
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}).ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)
}

func TestReadS33BlockType(t *testing.T) {
	v, err := NewReader([]byte{0x40}).ReadS33()
	require.NoError(t, err)
	assert.Equal(t, int64(-64), v)

	v, err = NewReader([]byte{0x7E}).ReadS33()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v)
}

func TestTruncatedInput(t *testing.T) {
	_, err := NewReader([]byte{0x80}).ReadU32()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewReader([]byte{0x05, 'a'}).ReadName()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNameAndFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteName("sum")
	w.WriteU32LE(0x6D736100)
	w.WriteU64LE(42)

	r := NewReader(w.Bytes())
	name, err := r.ReadName()
	require.NoError(t, err)
	assert.Equal(t, "sum", name)

	magic, err := r.ReadU32LE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x6D736100), magic)

	v, err := r.ReadU64LE()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
	assert.Zero(t, r.Len())
}

func TestInvalidUTF8Name(t *testing.T) {
	_, err := NewReader([]byte{0x02, 0xC3, 0x28}).ReadName()
	assert.Error(t, err)
}

func TestSection(t *testing.T) {
	w := NewWriter()
	w.Section(7, func(s *Writer) {
		s.WriteU32(1)
		s.WriteName("f")
	})
	assert.Equal(t, []byte{7, 3, 1, 1, 'f'}, w.Bytes())
}

func TestParseError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, _ = r.ReadByte()
	err := r.WrapError("code", io.ErrUnexpectedEOF)
	assert.EqualError(t, err, "wasm: code section at offset 1: unexpected EOF")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

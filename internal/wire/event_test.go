package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	cases := []Event{
		{Wd: 1, Mask: Create, Cookie: 0, Name: "a"},
		{Wd: 42, Mask: Delete | IsDir, Cookie: 0, Name: "subdir"},
		{Wd: -1, Mask: QOverflow},
		{Wd: 7, Mask: Ignored},
	}
	for _, want := range cases {
		buf := want.Encode()
		got, n, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, want.Wd, got.Wd)
		assert.Equal(t, want.Mask, got.Mask)
		assert.Equal(t, want.Cookie, got.Cookie)
		assert.Equal(t, want.Name, got.Name)
	}
}

func TestEventLenIsMultipleOf8(t *testing.T) {
	for _, name := range []string{"", "a", "ab", "abcdefg", "abcdefgh", "abcdefghi"} {
		e := Event{Wd: 1, Mask: Create, Name: name}
		buf := e.Encode()
		nameLen := len(buf) - HeaderSize
		assert.Equal(t, 0, nameLen%NamePad, "name=%q nameLen=%d", name, nameLen)
		if nameLen > 0 {
			assert.Equal(t, byte(0), buf[len(buf)-1], "last byte of name field must be NUL")
		}
	}
}

// S1 — Create then read: one event with mask=CREATE, name padded to 8
// bytes ("a\0\0\0\0\0\0\0"), matching the literal scenario in the spec.
func TestScenarioS1CreateEventShape(t *testing.T) {
	e := Event{Wd: 3, Mask: Create, Name: "a"}
	buf := e.Encode()
	require.Len(t, buf, HeaderSize+8)
	assert.Equal(t, "a\x00\x00\x00\x00\x00\x00\x00", string(buf[HeaderSize:]))

	decoded, _, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(3), decoded.Wd)
	assert.True(t, decoded.Mask.Has(Create))
	assert.Equal(t, "a", decoded.Name)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestMaskHasAnyOr(t *testing.T) {
	m := Create.Or(IsDir)
	assert.True(t, m.Has(Create))
	assert.True(t, m.Has(IsDir))
	assert.False(t, m.Has(Delete))
	assert.True(t, m.Any(Delete|Create))
}

func TestNoNameEventHasZeroLen(t *testing.T) {
	e := Event{Wd: 1, Mask: Ignored}
	buf := e.Encode()
	assert.Len(t, buf, HeaderSize)
}

package parcel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteUint32(1))
	require.NoError(t, p.WriteInt32(-1))
	require.NoError(t, p.WriteBool(true))

	want := []byte{
		0x01, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x01, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, p.Bytes())

	u, err := p.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), u)

	i, err := p.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), i)

	b, err := p.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	assert.False(t, p.HasUnreadData())
}

func TestPrimitiveWidths(t *testing.T) {
	tests := []struct {
		name  string
		write func(p *Parcel) error
		want  []byte
	}{
		{"u8", func(p *Parcel) error { return p.WriteUint8(0xAB) }, []byte{0xAB}},
		{"i16", func(p *Parcel) error { return p.WriteInt16(-2) }, []byte{0xFE, 0xFF}},
		{"u16", func(p *Parcel) error { return p.WriteUint16(0x1234) }, []byte{0x34, 0x12}},
		{"u64", func(p *Parcel) error { return p.WriteUint64(0x0102030405060708) },
			[]byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}},
		{"usize is 8 bytes", func(p *Parcel) error { return p.WriteUsize(7) },
			[]byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"f32", func(p *Parcel) error { return p.WriteFloat32(1.0) }, []byte{0x00, 0x00, 0x80, 0x3F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			require.NoError(t, tt.write(p))
			assert.Equal(t, tt.want, p.Bytes())
		})
	}
}

func TestString16(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteString16("Hi"))

	want := []byte{
		0x02, 0x00, 0x00, 0x00, // length in code units
		0x48, 0x00, 0x69, 0x00, // "Hi" UTF-16LE
		0x00, 0x00, // terminator
		0x00, 0x00, // pad to 4
	}
	assert.Equal(t, want, p.Bytes())
	assert.Len(t, p.Bytes(), 12)

	got, err := p.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "Hi", got)
}

func TestString16Empty(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteString16(""))
	got, err := p.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "", got)

	// A -1 length is the null marker and decodes as the empty string.
	p = New()
	require.NoError(t, p.WriteInt32(-1))
	require.NoError(t, p.Write([]byte{0x00, 0x00}))
	p.SetPosition(0)
	got, err = p.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestString8RoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "abc", "abcd", "héllo"} {
		p := New()
		require.NoError(t, p.WriteString(s))
		assert.Zero(t, p.Len()%4, "payload must stay 4-byte aligned")
		got, err := p.ReadString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestInterfaceToken(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteInterfaceToken("x"))

	want := []byte{
		0x04, 0x00, 0x00, 0xC2, // strict mode policy
		0xFF, 0xFF, 0xFF, 0xFF, // unset work source uid
		0x54, 0x53, 0x59, 0x53, // "SYST"
	}
	assert.Equal(t, want, p.Bytes()[:12])

	got, err := p.ReadInterfaceToken()
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestInterfaceTokenValidation(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		p := New()
		require.NoError(t, p.WriteInt32(strictModePolicy))
		require.NoError(t, p.WriteInt32(-1))
		require.NoError(t, p.WriteInt32(0x12345678))
		require.NoError(t, p.WriteString16("x"))
		p.SetPosition(0)

		_, err := p.ReadInterfaceToken()
		assert.ErrorIs(t, err, ErrBadInterfaceToken)
	})

	t.Run("BadWorkSource", func(t *testing.T) {
		p := New()
		require.NoError(t, p.WriteInt32(strictModePolicy))
		require.NoError(t, p.WriteInt32(1000))
		require.NoError(t, p.WriteInt32(headerMagic))
		require.NoError(t, p.WriteString16("x"))
		p.SetPosition(0)

		_, err := p.ReadInterfaceToken()
		assert.ErrorIs(t, err, ErrBadInterfaceToken)
	})
}

func TestWritePadsToFour(t *testing.T) {
	for n := 0; n <= 9; n++ {
		p := New()
		require.NoError(t, p.Write(bytes.Repeat([]byte{0xEE}, n)))
		assert.Zero(t, p.Len()%4, "length %d not padded", n)
	}
}

func TestReadAlignedVsUnaligned(t *testing.T) {
	p := New()
	require.NoError(t, p.Write([]byte{1, 2, 3, 4, 5}))

	got, err := p.ReadAligned(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 8, p.Position())

	p.SetPosition(0)
	got, err = p.ReadUnaligned(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 5, p.Position())
}

func TestAppendRelocatesOffsets(t *testing.T) {
	p := FromBytes([]byte{0xAA})
	p.offsets = []uint64{0}
	q := FromBytes([]byte{0xBB, 0xCC})
	q.offsets = []uint64{1}

	p.Append(q)

	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, p.Bytes())
	assert.Equal(t, []uint64{0, 2}, p.Offsets())
}

func TestAppendIsConcatenation(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteUint32(1))
	q := New()
	require.NoError(t, q.WriteString16("Hi"))

	want := append(append([]byte(nil), p.Bytes()...), q.Bytes()...)
	p.Append(q)
	assert.Equal(t, want, p.Bytes())
}

func TestTruncatedRead(t *testing.T) {
	p := FromBytes([]byte{0x01, 0x02})

	_, err := p.ReadUint32()
	assert.ErrorIs(t, err, ErrDeserialization)

	_, err = p.ReadString16()
	assert.ErrorIs(t, err, ErrDeserialization)
}

func TestReset(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteString16("payload"))
	obj := NewFlatObject(TypeBinder, 1, 0, 0)
	require.NoError(t, obj.WriteParcel(p))

	p.Reset()
	assert.Zero(t, p.Len())
	assert.Zero(t, p.OffsetsLen())
	assert.Zero(t, p.Position())
	assert.False(t, p.HasUnreadData())
}

func TestSetPositionClamps(t *testing.T) {
	p := FromBytes([]byte{1, 2, 3, 4})
	p.SetPosition(100)
	assert.Equal(t, 4, p.Position())
	p.SetPosition(-1)
	assert.Equal(t, 0, p.Position())
}

func TestFromDataAndOffsetsCopies(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	offsets := []uint64{0}
	p := FromDataAndOffsets(data, offsets)

	data[0] = 0xFF
	offsets[0] = 99

	assert.Equal(t, []byte{1, 2, 3, 4}, p.Bytes())
	assert.Equal(t, []uint64{0}, p.Offsets())
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrBadEnumValue, ErrDeserialization))
	assert.False(t, errors.Is(ErrBadInterfaceToken, ErrDeserialization))
}

package parcel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectTypeTags(t *testing.T) {
	assert.Equal(t, ObjectType(0x73622A85), TypeBinder)
	assert.Equal(t, ObjectType(0x77622A85), TypeWeakBinder)
	assert.Equal(t, ObjectType(0x73682A85), TypeHandle)
	assert.Equal(t, ObjectType(0x77682A85), TypeWeakHandle)
	assert.Equal(t, ObjectType(0x66642A85), TypeFd)
	assert.Equal(t, ObjectType(0x66646185), TypeFdArray)
	assert.Equal(t, ObjectType(0x70742A85), TypePointer)
}

func TestFlatObjectWriteRecordsOffset(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteUint32(0)) // leading status word

	before := p.Len()
	obj := NewFlatObject(TypeHandle, 7, 0, 0)
	require.NoError(t, obj.WriteParcel(p))

	require.Equal(t, 1, p.OffsetsLen())
	assert.Equal(t, uint64(before), p.Offsets()[0])

	// type(4) + flags(4) + handle(8) + cookie(8) + stability(4)
	assert.Equal(t, before+28, p.Len())
}

func TestFlatObjectRoundTrip(t *testing.T) {
	obj := NewFlatObject(TypeBinder, 0xdeadbeef, 42, 1)

	p := New()
	require.NoError(t, obj.WriteParcel(p))

	var got FlatObject
	require.NoError(t, got.ReadParcel(p))
	assert.Equal(t, *obj, got)
	assert.Equal(t, StabilitySystem, got.Stability)
}

func TestFlatObjectBadType(t *testing.T) {
	p := New()
	require.NoError(t, p.WriteUint32(0x11111111))

	var got FlatObject
	assert.ErrorIs(t, got.ReadParcel(p), ErrBadEnumValue)
}

func TestFlatFd(t *testing.T) {
	fd := NewFlatFd(5)
	assert.Equal(t, FdDefaultFlags, fd.Flags)
	assert.Equal(t, uint32(0x17f), fd.Flags)

	p := New()
	require.NoError(t, fd.WriteParcel(p))

	// type(4) + flags(4) + fd(8) + cookie(8), no stability word
	assert.Equal(t, 24, p.Len())
	require.Equal(t, 1, p.OffsetsLen())
	assert.Equal(t, uint64(0), p.Offsets()[0])

	var got FlatFd
	require.NoError(t, got.ReadParcel(p))
	assert.Equal(t, *fd, got)
}

func TestEveryObjectWritePushesOffset(t *testing.T) {
	p := New()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.WriteString16("padding"))
		before := p.Len()
		obj := NewFlatObject(TypeHandle, uint64(i), 0, 0)
		require.NoError(t, obj.WriteParcel(p))
		assert.Equal(t, uint64(before), p.Offsets()[p.OffsetsLen()-1])
	}
}

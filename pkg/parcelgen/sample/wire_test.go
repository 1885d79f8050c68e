package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gobinder/pkg/parcel"
)

func TestUserInfoRoundTrip(t *testing.T) {
	in := UserInfo{Uid: 1000, Name: "alice", Active: true}

	p := parcel.New()
	require.NoError(t, in.WriteParcel(p))

	var out UserInfo
	require.NoError(t, out.ReadParcel(p))
	assert.Equal(t, in, out)
	assert.False(t, p.HasUnreadData())
}

func TestEventDiscriminators(t *testing.T) {
	t.Run("DeclaredValue", func(t *testing.T) {
		p := parcel.New()
		require.NoError(t, WriteEvent(p, &EventProgress{Value: 0x11}))

		// Declared discriminator 5 then the u32 payload.
		assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00}, p.Bytes())

		got, err := ReadEvent(p)
		require.NoError(t, err)
		assert.Equal(t, &EventProgress{Value: 0x11}, got)
	})

	t.Run("DeclarationIndex", func(t *testing.T) {
		p := parcel.New()
		require.NoError(t, WriteEvent(p, &EventStarted{}))
		assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, p.Bytes())

		got, err := ReadEvent(p)
		require.NoError(t, err)
		assert.Equal(t, &EventStarted{}, got)
	})

	t.Run("StructVariant", func(t *testing.T) {
		p := parcel.New()
		in := &EventFinished{Code: -7, Message: "done"}
		require.NoError(t, WriteEvent(p, in))

		disc, err := p.ReadInt32()
		require.NoError(t, err)
		assert.Equal(t, int32(2), disc)

		p.SetPosition(0)
		got, err := ReadEvent(p)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})
}

func TestEventUnknownDiscriminator(t *testing.T) {
	p := parcel.New()
	require.NoError(t, p.WriteInt32(99))

	_, err := ReadEvent(p)
	assert.ErrorIs(t, err, parcel.ErrBadEnumValue)
}

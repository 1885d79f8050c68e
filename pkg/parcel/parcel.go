// Package parcel implements the Binder parcel wire format: a little-endian
// byte buffer with a read/write cursor and an auxiliary table of byte offsets
// naming the flat objects embedded in the buffer.
//
// Wire format rules:
//   - All multi-byte integers are little-endian regardless of host endianness.
//   - Variable-length payloads (strings, raw byte slices) are zero-padded to
//     a 4-byte boundary.
//   - usize values are fixed at 8 bytes on the wire (64-bit kernel ABI).
//   - Flat objects are fixed-layout records; writing one records its byte
//     offset in the parcel's offset table.
package parcel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

// Protocol errors surfaced by parcel reads.
var (
	// ErrDeserialization indicates a truncated or malformed read.
	ErrDeserialization = errors.New("parcel: deserialization error")

	// ErrBadEnumValue indicates an unknown tagged-union discriminator or
	// an unrecognized fixed enumeration value.
	ErrBadEnumValue = errors.New("parcel: bad enum value")

	// ErrBadInterfaceToken indicates an interface token whose strict-mode
	// word, work-source uid or magic marker did not match.
	ErrBadInterfaceToken = errors.New("parcel: bad interface token")
)

// Interface token framing constants.
//
// Every non-trivial transaction payload starts with a four-word preamble:
// a strict-mode policy word, a work-source uid (-1 meaning unset), the
// "SYST" magic marker, and the UTF-16 interface name.
const (
	// strictModePolicy is the default strict-mode word: the penalty-gather
	// bit ORed with the gather flags.
	strictModePolicy = int32(-0x80000000) | 0x42000004

	// unsetWorkSource is the sentinel uid meaning "no work source".
	unsetWorkSource = int32(-1)

	// headerMagic is the packed-char marker "SYST".
	headerMagic = int32(0x53595354)
)

// Parcel is an ordered byte buffer with a cursor plus an ordered table of
// flat-object byte offsets. A parcel is either being written or being read
// at any step; callers that need to rewind do so via SetPosition.
//
// Parcel is not safe for concurrent use.
type Parcel struct {
	data    []byte
	pos     int
	offsets []uint64
}

// New creates a new empty parcel.
func New() *Parcel {
	return &Parcel{}
}

// FromBytes creates a parcel over a copy of the given bytes, positioned at
// the start, with an empty offset table.
func FromBytes(data []byte) *Parcel {
	return &Parcel{data: append([]byte(nil), data...)}
}

// FromDataAndOffsets creates a parcel over copies of the given payload bytes
// and flat-object offsets. This is how inbound transaction payloads delivered
// through the driver mapping become parcels.
func FromDataAndOffsets(data []byte, offsets []uint64) *Parcel {
	return &Parcel{
		data:    append([]byte(nil), data...),
		offsets: append([]uint64(nil), offsets...),
	}
}

// Reset returns the parcel to empty without releasing its backing storage.
func (p *Parcel) Reset() {
	p.data = p.data[:0]
	p.offsets = p.offsets[:0]
	p.pos = 0
}

// Len returns the length of the parcel's payload in bytes.
func (p *Parcel) Len() int { return len(p.data) }

// IsEmpty reports whether the parcel carries no payload.
func (p *Parcel) IsEmpty() bool { return len(p.data) == 0 }

// Bytes returns the parcel's payload. The slice aliases the parcel's
// internal buffer and is invalidated by the next write.
func (p *Parcel) Bytes() []byte { return p.data }

// Offsets returns the flat-object offset table. The slice aliases the
// parcel's internal table.
func (p *Parcel) Offsets() []uint64 { return p.offsets }

// OffsetsLen returns the number of flat-object offsets.
func (p *Parcel) OffsetsLen() int { return len(p.offsets) }

// Position returns the current cursor position.
func (p *Parcel) Position() int { return p.pos }

// SetPosition moves the cursor. Positions beyond the payload are clamped.
func (p *Parcel) SetPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.data) {
		pos = len(p.data)
	}
	p.pos = pos
}

// HasUnreadData reports whether the cursor has not reached the end of the
// payload.
func (p *Parcel) HasUnreadData() bool { return p.pos != len(p.data) }

// Append copies another parcel to the tail of this one. The payloads are
// concatenated and the source offsets are relocated by the pre-append
// destination length.
func (p *Parcel) Append(other *Parcel) {
	base := uint64(len(p.data))
	p.data = append(p.data, other.data...)
	for _, off := range other.offsets {
		p.offsets = append(p.offsets, off+base)
	}
}

// MarkObjectOffset records the current buffer position in the offset table.
// Flat-object writers call this immediately before writing their bytes.
func (p *Parcel) MarkObjectOffset() {
	p.offsets = append(p.offsets, uint64(len(p.data)))
}

// ============================================================================
// Primitive writes
// ============================================================================

// WriteUint8 appends a single byte.
func (p *Parcel) WriteUint8(v uint8) error {
	p.data = append(p.data, v)
	return nil
}

// WriteInt8 appends a single byte.
func (p *Parcel) WriteInt8(v int8) error { return p.WriteUint8(uint8(v)) }

// WriteUint16 appends two bytes little-endian.
func (p *Parcel) WriteUint16(v uint16) error {
	p.data = binary.LittleEndian.AppendUint16(p.data, v)
	return nil
}

// WriteInt16 appends two bytes little-endian.
func (p *Parcel) WriteInt16(v int16) error { return p.WriteUint16(uint16(v)) }

// WriteUint32 appends four bytes little-endian.
func (p *Parcel) WriteUint32(v uint32) error {
	p.data = binary.LittleEndian.AppendUint32(p.data, v)
	return nil
}

// WriteInt32 appends four bytes little-endian.
func (p *Parcel) WriteInt32(v int32) error { return p.WriteUint32(uint32(v)) }

// WriteUint64 appends eight bytes little-endian.
func (p *Parcel) WriteUint64(v uint64) error {
	p.data = binary.LittleEndian.AppendUint64(p.data, v)
	return nil
}

// WriteInt64 appends eight bytes little-endian.
func (p *Parcel) WriteInt64(v int64) error { return p.WriteUint64(uint64(v)) }

// WriteFloat32 appends an IEEE-754 float little-endian.
func (p *Parcel) WriteFloat32(v float32) error {
	return p.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends an IEEE-754 double little-endian.
func (p *Parcel) WriteFloat64(v float64) error {
	return p.WriteUint64(math.Float64bits(v))
}

// WriteUsize appends a size value. The wire width is fixed at 8 bytes.
func (p *Parcel) WriteUsize(v uint64) error { return p.WriteUint64(v) }

// WritePointer appends a userspace pointer as 8 bytes.
func (p *Parcel) WritePointer(v uintptr) error { return p.WriteUint64(uint64(v)) }

// WriteBool appends a bool as a 4-byte 0/1 word.
func (p *Parcel) WriteBool(v bool) error {
	if v {
		return p.WriteUint32(1)
	}
	return p.WriteUint32(0)
}

// ============================================================================
// Primitive reads
// ============================================================================

// take advances the cursor by n bytes and returns them, or
// ErrDeserialization when fewer than n bytes remain.
func (p *Parcel) take(n int) ([]byte, error) {
	if n < 0 || p.pos+n > len(p.data) {
		return nil, fmt.Errorf("%w: need %d bytes at position %d of %d", ErrDeserialization, n, p.pos, len(p.data))
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

// ReadUint8 reads a single byte.
func (p *Parcel) ReadUint8() (uint8, error) {
	b, err := p.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads a single byte.
func (p *Parcel) ReadInt8() (int8, error) {
	v, err := p.ReadUint8()
	return int8(v), err
}

// ReadUint16 reads two bytes little-endian.
func (p *Parcel) ReadUint16() (uint16, error) {
	b, err := p.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads two bytes little-endian.
func (p *Parcel) ReadInt16() (int16, error) {
	v, err := p.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads four bytes little-endian.
func (p *Parcel) ReadUint32() (uint32, error) {
	b, err := p.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads four bytes little-endian.
func (p *Parcel) ReadInt32() (int32, error) {
	v, err := p.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads eight bytes little-endian.
func (p *Parcel) ReadUint64() (uint64, error) {
	b, err := p.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads eight bytes little-endian.
func (p *Parcel) ReadInt64() (int64, error) {
	v, err := p.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE-754 float little-endian.
func (p *Parcel) ReadFloat32() (float32, error) {
	v, err := p.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE-754 double little-endian.
func (p *Parcel) ReadFloat64() (float64, error) {
	v, err := p.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadUsize reads an 8-byte size value.
func (p *Parcel) ReadUsize() (uint64, error) { return p.ReadUint64() }

// ReadPointer reads an 8-byte userspace pointer.
func (p *Parcel) ReadPointer() (uintptr, error) {
	v, err := p.ReadUint64()
	return uintptr(v), err
}

// ReadBool reads a 4-byte word; any non-zero value decodes as true.
func (p *Parcel) ReadBool() (bool, error) {
	v, err := p.ReadInt32()
	return v != 0, err
}

// ============================================================================
// Byte slices
// ============================================================================

// pad4 returns n rounded up to the next multiple of four.
func pad4(n int) int { return (n + 3) &^ 3 }

// Write appends raw bytes and zero-pads the payload to a 4-byte boundary.
func (p *Parcel) Write(data []byte) error {
	p.data = append(p.data, data...)
	for i := len(data); i < pad4(len(data)); i++ {
		p.data = append(p.data, 0)
	}
	return nil
}

// ReadAligned reads size bytes, advancing the cursor by size rounded up to
// a multiple of four. The returned slice holds exactly size bytes.
func (p *Parcel) ReadAligned(size int) ([]byte, error) {
	b, err := p.take(pad4(size))
	if err != nil {
		return nil, err
	}
	return b[:size], nil
}

// ReadUnaligned reads exactly size bytes without consuming padding.
func (p *Parcel) ReadUnaligned(size int) ([]byte, error) {
	return p.take(size)
}

// WriteByteSlice writes a byte sequence: an i32 length followed by the bytes
// zero-padded to a 4-byte boundary.
func (p *Parcel) WriteByteSlice(b []byte) error {
	if err := p.WriteInt32(int32(len(b))); err != nil {
		return err
	}
	return p.Write(b)
}

// ReadByteSlice reads a byte sequence written by WriteByteSlice.
func (p *Parcel) ReadByteSlice() ([]byte, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrDeserialization, length)
	}
	b, err := p.ReadAligned(int(length))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ============================================================================
// Strings
// ============================================================================

// WriteString16 writes a UTF-16 string: an i32 length in code units (the
// terminator is not counted), the code units little-endian, a u16 zero
// terminator, then zero-padding to a 4-byte boundary.
func (p *Parcel) WriteString16(s string) error {
	units := utf16.Encode([]rune(s))
	if err := p.WriteInt32(int32(len(units))); err != nil {
		return err
	}
	payload := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		payload = binary.LittleEndian.AppendUint16(payload, u)
	}
	payload = binary.LittleEndian.AppendUint16(payload, 0)
	return p.Write(payload)
}

// ReadString16 reads a UTF-16 string written by WriteString16. A length of
// -1 decodes as the empty string.
func (p *Parcel) ReadString16() (string, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return "", err
	}
	if length < 0 {
		// -1 is the null/empty marker; the terminator still follows.
		length = 0
	}
	raw, err := p.ReadAligned((int(length) + 1) * 2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return string(utf16.Decode(units)), nil
}

// WriteString writes a UTF-8 string: an i32 byte length (terminator not
// counted), the bytes, a single zero terminator, then zero-padding to a
// 4-byte boundary.
func (p *Parcel) WriteString(s string) error {
	if err := p.WriteInt32(int32(len(s))); err != nil {
		return err
	}
	payload := make([]byte, 0, len(s)+1)
	payload = append(payload, s...)
	payload = append(payload, 0)
	return p.Write(payload)
}

// ReadString reads a UTF-8 string written by WriteString.
func (p *Parcel) ReadString() (string, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return "", err
	}
	if length < 0 {
		length = 0
	}
	raw, err := p.ReadAligned(int(length) + 1)
	if err != nil {
		return "", err
	}
	return string(raw[:length]), nil
}

// ============================================================================
// Interface token
// ============================================================================

// WriteInterfaceToken writes the four-word transaction preamble: the
// strict-mode policy word, the unset work-source uid, the "SYST" magic and
// the UTF-16 interface name.
func (p *Parcel) WriteInterfaceToken(name string) error {
	if err := p.WriteInt32(strictModePolicy); err != nil {
		return err
	}
	if err := p.WriteInt32(unsetWorkSource); err != nil {
		return err
	}
	if err := p.WriteInt32(headerMagic); err != nil {
		return err
	}
	return p.WriteString16(name)
}

// ReadInterfaceToken reads the transaction preamble and returns the
// interface name. The strict-mode word, work-source uid and magic marker
// are validated; a mismatch yields ErrBadInterfaceToken.
func (p *Parcel) ReadInterfaceToken() (string, error) {
	strict, err := p.ReadInt32()
	if err != nil {
		return "", err
	}
	if strict != strictModePolicy {
		return "", fmt.Errorf("%w: strict mode word 0x%x", ErrBadInterfaceToken, uint32(strict))
	}
	uid, err := p.ReadInt32()
	if err != nil {
		return "", err
	}
	if uid != unsetWorkSource {
		return "", fmt.Errorf("%w: work source uid %d", ErrBadInterfaceToken, uid)
	}
	magic, err := p.ReadInt32()
	if err != nil {
		return "", err
	}
	if magic != headerMagic {
		return "", fmt.Errorf("%w: magic 0x%x", ErrBadInterfaceToken, uint32(magic))
	}
	return p.ReadString16()
}

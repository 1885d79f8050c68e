package parcel

import "fmt"

// Parcelable is the uniform (de)serialization contract. A type that
// implements it can be written to and read back from a parcel.
//
// ReadParcel fills the receiver from the parcel's cursor; WriteParcel
// appends the receiver's wire form. Implementations are generated for
// user-defined aggregates by the parcelgen package; this package ships the
// primitive, string, option, sequence and map forms.
type Parcelable interface {
	WriteParcel(p *Parcel) error
	ReadParcel(p *Parcel) error
}

// Ptr constrains PT to be a pointer to T that satisfies Parcelable. It lets
// the generic helpers below allocate values and read into them.
type Ptr[T any] interface {
	*T
	Parcelable
}

// ============================================================================
// Named primitive forms
// ============================================================================

// String16 is a UTF-16 string on the wire (distinct from the UTF-8 String8).
type String16 string

func (s *String16) WriteParcel(p *Parcel) error { return p.WriteString16(string(*s)) }
func (s *String16) ReadParcel(p *Parcel) error {
	v, err := p.ReadString16()
	if err != nil {
		return err
	}
	*s = String16(v)
	return nil
}

// String8 is a UTF-8 string on the wire.
type String8 string

func (s *String8) WriteParcel(p *Parcel) error { return p.WriteString(string(*s)) }
func (s *String8) ReadParcel(p *Parcel) error {
	v, err := p.ReadString()
	if err != nil {
		return err
	}
	*s = String8(v)
	return nil
}

// Bool is a 4-byte 0/1 word on the wire; any non-zero value decodes as true.
type Bool bool

func (b *Bool) WriteParcel(p *Parcel) error { return p.WriteBool(bool(*b)) }
func (b *Bool) ReadParcel(p *Parcel) error {
	v, err := p.ReadBool()
	if err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}

// Int8 .. Float64 give the integer and float primitives a Parcelable form.
type (
	Int8    int8
	Uint8   uint8
	Int16   int16
	Uint16  uint16
	Int32   int32
	Uint32  uint32
	Int64   int64
	Uint64  uint64
	Float32 float32
	Float64 float64
)

func (v *Int8) WriteParcel(p *Parcel) error  { return p.WriteInt8(int8(*v)) }
func (v *Uint8) WriteParcel(p *Parcel) error { return p.WriteUint8(uint8(*v)) }
func (v *Int16) WriteParcel(p *Parcel) error { return p.WriteInt16(int16(*v)) }
func (v *Uint16) WriteParcel(p *Parcel) error {
	return p.WriteUint16(uint16(*v))
}
func (v *Int32) WriteParcel(p *Parcel) error { return p.WriteInt32(int32(*v)) }
func (v *Uint32) WriteParcel(p *Parcel) error {
	return p.WriteUint32(uint32(*v))
}
func (v *Int64) WriteParcel(p *Parcel) error { return p.WriteInt64(int64(*v)) }
func (v *Uint64) WriteParcel(p *Parcel) error {
	return p.WriteUint64(uint64(*v))
}
func (v *Float32) WriteParcel(p *Parcel) error {
	return p.WriteFloat32(float32(*v))
}
func (v *Float64) WriteParcel(p *Parcel) error {
	return p.WriteFloat64(float64(*v))
}

func (v *Int8) ReadParcel(p *Parcel) error {
	x, err := p.ReadInt8()
	*v = Int8(x)
	return err
}
func (v *Uint8) ReadParcel(p *Parcel) error {
	x, err := p.ReadUint8()
	*v = Uint8(x)
	return err
}
func (v *Int16) ReadParcel(p *Parcel) error {
	x, err := p.ReadInt16()
	*v = Int16(x)
	return err
}
func (v *Uint16) ReadParcel(p *Parcel) error {
	x, err := p.ReadUint16()
	*v = Uint16(x)
	return err
}
func (v *Int32) ReadParcel(p *Parcel) error {
	x, err := p.ReadInt32()
	*v = Int32(x)
	return err
}
func (v *Uint32) ReadParcel(p *Parcel) error {
	x, err := p.ReadUint32()
	*v = Uint32(x)
	return err
}
func (v *Int64) ReadParcel(p *Parcel) error {
	x, err := p.ReadInt64()
	*v = Int64(x)
	return err
}
func (v *Uint64) ReadParcel(p *Parcel) error {
	x, err := p.ReadUint64()
	*v = Uint64(x)
	return err
}
func (v *Float32) ReadParcel(p *Parcel) error {
	x, err := p.ReadFloat32()
	*v = Float32(x)
	return err
}
func (v *Float64) ReadParcel(p *Parcel) error {
	x, err := p.ReadFloat64()
	*v = Float64(x)
	return err
}

// ============================================================================
// Option
// ============================================================================

// WriteOption writes an i32 presence prefix (1 when present, 0 when absent)
// followed by the payload when present. A nil pointer is absent.
func WriteOption[T any, PT Ptr[T]](p *Parcel, v *T) error {
	if v == nil {
		return p.WriteInt32(0)
	}
	if err := p.WriteInt32(1); err != nil {
		return err
	}
	return PT(v).WriteParcel(p)
}

// ReadOption reads an option written by WriteOption. Both 0 and -1 prefixes
// decode as absent (nil).
func ReadOption[T any, PT Ptr[T]](p *Parcel) (*T, error) {
	prefix, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if prefix == 0 || prefix == -1 {
		return nil, nil
	}
	var v T
	if err := PT(&v).ReadParcel(p); err != nil {
		return nil, err
	}
	return &v, nil
}

// ============================================================================
// Sequences
// ============================================================================

// WriteSlice writes an i32 length followed by each element.
func WriteSlice[T any, PT Ptr[T]](p *Parcel, xs []T) error {
	if err := p.WriteInt32(int32(len(xs))); err != nil {
		return err
	}
	for i := range xs {
		if err := PT(&xs[i]).WriteParcel(p); err != nil {
			return err
		}
	}
	return nil
}

// ReadSlice reads a sequence written by WriteSlice.
func ReadSlice[T any, PT Ptr[T]](p *Parcel) ([]T, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrDeserialization, length)
	}
	xs := make([]T, length)
	for i := range xs {
		if err := PT(&xs[i]).ReadParcel(p); err != nil {
			return nil, err
		}
	}
	return xs, nil
}

// WriteSliceFunc writes an i32 length then each element with the given
// writer. Useful for element types without a Parcelable form.
func WriteSliceFunc[T any](p *Parcel, xs []T, write func(*Parcel, T) error) error {
	if err := p.WriteInt32(int32(len(xs))); err != nil {
		return err
	}
	for _, x := range xs {
		if err := write(p, x); err != nil {
			return err
		}
	}
	return nil
}

// ReadSliceFunc reads a sequence using the given element reader.
func ReadSliceFunc[T any](p *Parcel, read func(*Parcel) (T, error)) ([]T, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrDeserialization, length)
	}
	xs := make([]T, 0, length)
	for i := int32(0); i < length; i++ {
		x, err := read(p)
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
	}
	return xs, nil
}

// ============================================================================
// Maps
// ============================================================================

// WriteMap writes an i32 length then key-value pairs. Iteration order is
// unspecified; readers must not depend on entry order.
func WriteMap[K comparable, V any, PK Ptr[K], PV Ptr[V]](p *Parcel, m map[K]V) error {
	if err := p.WriteInt32(int32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		k, v := k, v
		if err := PK(&k).WriteParcel(p); err != nil {
			return err
		}
		if err := PV(&v).WriteParcel(p); err != nil {
			return err
		}
	}
	return nil
}

// ReadMap reads a mapping written by WriteMap.
func ReadMap[K comparable, V any, PK Ptr[K], PV Ptr[V]](p *Parcel) (map[K]V, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrDeserialization, length)
	}
	m := make(map[K]V, length)
	for i := int32(0); i < length; i++ {
		var k K
		if err := PK(&k).ReadParcel(p); err != nil {
			return nil, err
		}
		var v V
		if err := PV(&v).ReadParcel(p); err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}


package parcel

import "fmt"

// objectTypeLarge is the trailing byte of every flat-object type tag.
const objectTypeLarge = 0x85

// ObjectType is the 32-bit type tag of a flat object.
type ObjectType uint32

// Flat-object type tags.
const (
	TypeBinder     = ObjectType(uint32('s')<<24 | uint32('b')<<16 | uint32('*')<<8 | objectTypeLarge)
	TypeWeakBinder = ObjectType(uint32('w')<<24 | uint32('b')<<16 | uint32('*')<<8 | objectTypeLarge)
	TypeHandle     = ObjectType(uint32('s')<<24 | uint32('h')<<16 | uint32('*')<<8 | objectTypeLarge)
	TypeWeakHandle = ObjectType(uint32('w')<<24 | uint32('h')<<16 | uint32('*')<<8 | objectTypeLarge)
	TypeFd         = ObjectType(uint32('f')<<24 | uint32('d')<<16 | uint32('*')<<8 | objectTypeLarge)
	TypeFdArray    = ObjectType(uint32('f')<<24 | uint32('d')<<16 | uint32('a')<<8 | objectTypeLarge)
	TypePointer    = ObjectType(uint32('p')<<24 | uint32('t')<<16 | uint32('*')<<8 | objectTypeLarge)
)

// StabilitySystem is the stability word carried by binder-object flat
// objects ("SYSTEM").
const StabilitySystem = uint32(0x0c)

// FdDefaultFlags is the flags word a file-descriptor flat object carries by
// default; bit 0 transfers descriptor ownership to the receiver.
const FdDefaultFlags = uint32(0x17f)

// WriteParcel writes the type tag as a u32.
func (t *ObjectType) WriteParcel(p *Parcel) error {
	return p.WriteUint32(uint32(*t))
}

// ReadParcel reads and validates a type tag. Unknown tags yield
// ErrBadEnumValue.
func (t *ObjectType) ReadParcel(p *Parcel) error {
	v, err := p.ReadUint32()
	if err != nil {
		return err
	}
	switch ObjectType(v) {
	case TypeBinder, TypeWeakBinder, TypeHandle, TypeWeakHandle, TypeFd, TypeFdArray, TypePointer:
		*t = ObjectType(v)
		return nil
	default:
		return fmt.Errorf("%w: flat object type 0x%x", ErrBadEnumValue, v)
	}
}

// FlatObject is the fixed-layout record that carries a typed handle across
// the binder boundary: type tag, flags, handle/pointer word, cookie word and
// a stability word. Writing one also records its byte offset in the parcel's
// offset table.
type FlatObject struct {
	Type      ObjectType
	Flags     uint32
	Handle    uint64
	Cookie    uint64
	Stability uint32
}

// NewFlatObject builds a flat object with the SYSTEM stability word.
func NewFlatObject(typ ObjectType, handle, cookie uint64, flags uint32) *FlatObject {
	return &FlatObject{
		Type:      typ,
		Flags:     flags,
		Handle:    handle,
		Cookie:    cookie,
		Stability: StabilitySystem,
	}
}

// WriteParcel records the object offset and writes the record. No padding
// is required; the record size is already 4-byte aligned.
func (o *FlatObject) WriteParcel(p *Parcel) error {
	p.MarkObjectOffset()
	if err := o.Type.WriteParcel(p); err != nil {
		return err
	}
	if err := p.WriteUint32(o.Flags); err != nil {
		return err
	}
	if err := p.WriteUsize(o.Handle); err != nil {
		return err
	}
	if err := p.WriteUsize(o.Cookie); err != nil {
		return err
	}
	return p.WriteUint32(o.Stability)
}

// ReadParcel reads a flat object record at the cursor.
func (o *FlatObject) ReadParcel(p *Parcel) error {
	if err := o.Type.ReadParcel(p); err != nil {
		return err
	}
	var err error
	if o.Flags, err = p.ReadUint32(); err != nil {
		return err
	}
	if o.Handle, err = p.ReadUsize(); err != nil {
		return err
	}
	if o.Cookie, err = p.ReadUsize(); err != nil {
		return err
	}
	o.Stability, err = p.ReadUint32()
	return err
}

// FlatFd is the flat-object record for a file descriptor. It carries no
// stability word.
type FlatFd struct {
	Type   ObjectType
	Flags  uint32
	Fd     uint64
	Cookie uint64
}

// NewFlatFd builds a file-descriptor flat object with the default
// ownership-transferring flags.
func NewFlatFd(fd int) *FlatFd {
	return &FlatFd{
		Type:  TypeFd,
		Flags: FdDefaultFlags,
		Fd:    uint64(fd),
	}
}

// WriteParcel records the object offset and writes the record.
func (o *FlatFd) WriteParcel(p *Parcel) error {
	p.MarkObjectOffset()
	if err := o.Type.WriteParcel(p); err != nil {
		return err
	}
	if err := p.WriteUint32(o.Flags); err != nil {
		return err
	}
	if err := p.WriteUsize(o.Fd); err != nil {
		return err
	}
	return p.WriteUsize(o.Cookie)
}

// ReadParcel reads a file-descriptor flat object at the cursor.
func (o *FlatFd) ReadParcel(p *Parcel) error {
	if err := o.Type.ReadParcel(p); err != nil {
		return err
	}
	var err error
	if o.Flags, err = p.ReadUint32(); err != nil {
		return err
	}
	if o.Fd, err = p.ReadUsize(); err != nil {
		return err
	}
	o.Cookie, err = p.ReadUsize()
	return err
}

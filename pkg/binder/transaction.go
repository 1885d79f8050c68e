package binder

import (
	"fmt"

	"github.com/marmos91/gobinder/pkg/parcel"
)

// transactionDataSize is the byte size of the packed C transaction
// descriptor on a 64-bit kernel: the 4-byte target handle is padded to 8 so
// the cookie lands on an 8-byte boundary.
const transactionDataSize = 64

// TransactionData is the fixed-layout descriptor passed to and returned by
// the driver for every transaction and reply.
//
// On the inbound side Data and Offsets point into the driver's shared
// mapping; SenderPID and SenderEUID are filled in by the kernel.
type TransactionData struct {
	Target      uint32
	Cookie      uint64
	Code        uint32
	Flags       TransactionFlags
	SenderPID   uint32
	SenderEUID  uint32
	DataSize    uint64
	OffsetsSize uint64 // in bytes, not entries
	Data        uintptr
	Offsets     uintptr
}

// writeTo appends the descriptor's packed form to a parcel. The layout
// matches the kernel struct: target(4) pad(4) cookie(8) code(4) flags(4)
// sender_pid(4) sender_euid(4) data_size(8) offsets_size(8) data(8)
// offsets(8).
func (td *TransactionData) writeTo(p *parcel.Parcel) error {
	if err := p.WriteUint32(td.Target); err != nil {
		return err
	}
	if err := p.WriteUint32(0); err != nil { // alignment padding
		return err
	}
	if err := p.WriteUint64(td.Cookie); err != nil {
		return err
	}
	if err := p.WriteUint32(td.Code); err != nil {
		return err
	}
	if err := p.WriteUint32(uint32(td.Flags)); err != nil {
		return err
	}
	if err := p.WriteUint32(td.SenderPID); err != nil {
		return err
	}
	if err := p.WriteUint32(td.SenderEUID); err != nil {
		return err
	}
	if err := p.WriteUint64(td.DataSize); err != nil {
		return err
	}
	if err := p.WriteUint64(td.OffsetsSize); err != nil {
		return err
	}
	if err := p.WritePointer(td.Data); err != nil {
		return err
	}
	return p.WritePointer(td.Offsets)
}

// readTransactionData decodes a descriptor at the parcel cursor.
func readTransactionData(p *parcel.Parcel) (*TransactionData, error) {
	var td TransactionData
	var err error

	if td.Target, err = p.ReadUint32(); err != nil {
		return nil, err
	}
	if _, err = p.ReadUint32(); err != nil { // alignment padding
		return nil, err
	}
	if td.Cookie, err = p.ReadUint64(); err != nil {
		return nil, err
	}
	if td.Code, err = p.ReadUint32(); err != nil {
		return nil, err
	}
	var flags uint32
	if flags, err = p.ReadUint32(); err != nil {
		return nil, err
	}
	td.Flags = TransactionFlags(flags)
	if td.SenderPID, err = p.ReadUint32(); err != nil {
		return nil, err
	}
	if td.SenderEUID, err = p.ReadUint32(); err != nil {
		return nil, err
	}
	if td.DataSize, err = p.ReadUint64(); err != nil {
		return nil, err
	}
	if td.OffsetsSize, err = p.ReadUint64(); err != nil {
		return nil, err
	}
	if td.Data, err = p.ReadPointer(); err != nil {
		return nil, err
	}
	if td.Offsets, err = p.ReadPointer(); err != nil {
		return nil, err
	}
	return &td, nil
}

// OffsetsLen returns the number of flat-object offsets the descriptor
// names.
func (td *TransactionData) OffsetsLen() int {
	return int(td.OffsetsSize / 8)
}

func hex32(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}

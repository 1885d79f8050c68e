package binder

// writeReadBlockSize is the byte size of the binder_write_read control
// block on a 64-bit kernel (six 8-byte words).
const writeReadBlockSize = 48

// WriteReadBlock mirrors struct binder_write_read: a flush-and-drain
// descriptor whose consumed fields the driver updates in place.
type WriteReadBlock struct {
	WriteSize     uint64
	WriteConsumed uint64
	WriteBuffer   uintptr
	ReadSize      uint64
	ReadConsumed  uint64
	ReadBuffer    uintptr
}

// Device abstracts the kernel surface of the binder driver so the client
// loop can be exercised against a scripted fake.
//
// PayloadBytes and PayloadOffsets materialize inbound transaction payloads
// from the addresses carried in a descriptor; on the real device these are
// reads of the shared mapping.
type Device interface {
	Version() (int32, error)
	SetMaxThreads(count uint32) error
	WriteRead(bwr *WriteReadBlock) error
	PayloadBytes(addr uintptr, size int) ([]byte, error)
	PayloadOffsets(addr uintptr, count int) ([]uint64, error)
	Close() error
}

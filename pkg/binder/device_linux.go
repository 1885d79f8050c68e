//go:build linux

package binder

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/marmos91/gobinder/internal/logger"
)

// kernelDevice drives the real /dev/binder character device.
type kernelDevice struct {
	fd  int
	mem []byte
}

// openKernelDevice opens the driver and maps the shared inbound region; the
// protocol version is read afterwards through Version. The mapping is read-only, private and
// non-reserved; the kernel uses it to deliver inbound payloads without a
// userspace copy. It is intentionally never unmapped: the kernel detaches
// it when the descriptor closes.
func openKernelDevice(path string) (*kernelDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	dev := &kernelDevice{fd: fd}

	mem, err := unix.Mmap(fd, 0, vmSize, unix.PROT_READ, unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap binder region: %w", err)
	}
	dev.mem = mem

	logger.Debug("opened binder device",
		logger.KeyDevice, path,
		"map_size", vmSize)

	return dev, nil
}

// ioctl issues a raw ioctl on the driver descriptor.
func (d *kernelDevice) ioctl(req uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Version reads the driver protocol version (BINDER_VERSION).
func (d *kernelDevice) Version() (int32, error) {
	var v int32
	if err := d.ioctl(ioctlVersion, unsafe.Pointer(&v)); err != nil {
		return 0, fmt.Errorf("read binder version: %w", err)
	}
	return v, nil
}

// SetMaxThreads sets the driver-side thread limit (BINDER_SET_MAX_THREADS).
func (d *kernelDevice) SetMaxThreads(count uint32) error {
	if err := d.ioctl(ioctlSetMaxThreads, unsafe.Pointer(&count)); err != nil {
		return fmt.Errorf("set max threads: %w", err)
	}
	return nil
}

// WriteRead performs the BINDER_WRITE_READ ioctl. The driver updates the
// consumed fields of the control block in place.
func (d *kernelDevice) WriteRead(bwr *WriteReadBlock) error {
	if err := d.ioctl(ioctlWriteRead, unsafe.Pointer(bwr)); err != nil {
		return fmt.Errorf("binder write_read: %w", err)
	}
	return nil
}

// PayloadBytes copies size bytes from a kernel-delivered payload address.
// The address points into the shared mapping, which stays alive for the
// lifetime of the device.
func (d *kernelDevice) PayloadBytes(addr uintptr, size int) ([]byte, error) {
	if addr == 0 || size == 0 {
		return nil, nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return append([]byte(nil), src...), nil
}

// PayloadOffsets copies count flat-object offsets from a kernel-delivered
// offsets address.
func (d *kernelDevice) PayloadOffsets(addr uintptr, count int) ([]uint64, error) {
	if addr == 0 || count == 0 {
		return nil, nil
	}
	src := unsafe.Slice((*uint64)(unsafe.Pointer(addr)), count)
	return append([]uint64(nil), src...), nil
}

// Close releases the driver descriptor. The shared mapping is detached by
// the kernel on close.
func (d *kernelDevice) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("close binder device: %w", err)
	}
	return nil
}

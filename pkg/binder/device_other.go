//go:build !linux

package binder

import "errors"

// The binder driver is Linux-only; on other platforms Open fails at device
// open time.
func openKernelDevice(path string) (*kernelDevice, error) {
	return nil, errors.New("binder: driver is only available on linux")
}

type kernelDevice struct{}

func (d *kernelDevice) Version() (int32, error)           { return 0, errUnsupported }
func (d *kernelDevice) SetMaxThreads(uint32) error        { return errUnsupported }
func (d *kernelDevice) WriteRead(*WriteReadBlock) error   { return errUnsupported }
func (d *kernelDevice) PayloadBytes(uintptr, int) ([]byte, error) {
	return nil, errUnsupported
}
func (d *kernelDevice) PayloadOffsets(uintptr, int) ([]uint64, error) {
	return nil, errUnsupported
}
func (d *kernelDevice) Close() error { return errUnsupported }

var errUnsupported = errors.New("binder: unsupported platform")

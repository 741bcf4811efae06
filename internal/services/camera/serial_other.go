//go:build !(linux || darwin || freebsd)

package camera

import "context"

type SerialDevice struct {
	Glob string
}

func NewSerialDevice(glob string) *SerialDevice {
	return &SerialDevice{Glob: glob}
}

func (d *SerialDevice) Enumerate(context.Context) ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}

func (d *SerialDevice) Open(context.Context, DeviceInfo) (Stream, error) {
	return nil, ErrUnsupported
}

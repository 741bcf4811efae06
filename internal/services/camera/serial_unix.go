//go:build linux || darwin || freebsd

package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// SerialDevice drives USB QR scanners in serial mode. Each matching node is one
// device; opening takes an exclusive flock so two sessions never share a scanner.
type SerialDevice struct {
	Glob string
}

func NewSerialDevice(glob string) *SerialDevice {
	return &SerialDevice{Glob: glob}
}

func (d *SerialDevice) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(d.Glob)
	if err != nil {
		return nil, &Error{Kind: Unsupported, Err: fmt.Errorf("bad device pattern %q: %w", d.Glob, err)}
	}
	sort.Strings(paths)

	infos := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		label := filepath.Base(p)
		infos = append(infos, DeviceInfo{ID: p, Label: label, Facing: FacingFromLabel(label)})
	}
	return infos, nil
}

func (d *SerialDevice) Open(ctx context.Context, info DeviceInfo) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(info.ID, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(info.ID, err)
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &Error{Kind: InitializationFailed, Err: fmt.Errorf("%s: %w", info.ID, ErrDeviceBusy)}
		}
		return nil, &Error{Kind: InitializationFailed, Err: fmt.Errorf("lock %s: %w", info.ID, err)}
	}
	return &serialStream{File: os.NewFile(uintptr(fd), info.ID)}, nil
}

func openError(path string, err error) error {
	wrapped := fmt.Errorf("open %s: %w", path, err)
	switch {
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return &Error{Kind: PermissionDenied, Err: wrapped}
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return &Error{Kind: DeviceNotFound, Err: wrapped}
	case errors.Is(err, unix.EBUSY):
		return &Error{Kind: InitializationFailed, Err: fmt.Errorf("%s: %w", path, ErrDeviceBusy)}
	}
	return &Error{Kind: InitializationFailed, Err: wrapped}
}

// serialStream releases the flock together with the descriptor.
type serialStream struct {
	*os.File
}

func (s *serialStream) Close() error {
	if raw, err := s.File.SyscallConn(); err == nil {
		_ = raw.Control(func(fd uintptr) {
			_ = unix.Flock(int(fd), unix.LOCK_UN)
		})
	}
	return s.File.Close()
}

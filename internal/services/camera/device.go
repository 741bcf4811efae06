package camera

import (
	"context"
	"io"
	"strings"
)

type Facing string

const (
	FacingRear    Facing = "rear"
	FacingFront   Facing = "front"
	FacingUnknown Facing = "unknown"
)

type DeviceInfo struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Facing Facing `json:"facing"`
}

// Device is a capture backend. Enumerate must not prompt for permission or
// lock anything; Open acquires the hardware and may suspend on a permission prompt.
type Device interface {
	Enumerate(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, info DeviceInfo) (Stream, error)
}

// Stream is an open capture. Close releases the hardware lock.
type Stream interface {
	io.Reader
	io.Closer
}

// Detection is one decoder result. Found is false for frames without a code.
type Detection struct {
	Text  string
	Found bool
}

// Decoder turns a stream into detections until ctx ends or the stream does.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, emit func(Detection)) error
	Close() error
}

type DecoderFactory func() (Decoder, error)

// FacingFromLabel guesses the facing of a device from its label.
func FacingFromLabel(label string) Facing {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "rear"), strings.Contains(l, "back"), strings.Contains(l, "environment"):
		return FacingRear
	case strings.Contains(l, "front"), strings.Contains(l, "user"), strings.Contains(l, "face"):
		return FacingFront
	}
	return FacingUnknown
}

// preferRear picks the first rear-facing device, falling back to the first one.
func preferRear(infos []DeviceInfo) DeviceInfo {
	for _, info := range infos {
		if info.Facing == FacingRear {
			return info
		}
	}
	return infos[0]
}

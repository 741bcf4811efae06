package camera

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	PermissionDenied     ErrorKind = "permission_denied"
	DeviceNotFound       ErrorKind = "device_not_found"
	Unsupported          ErrorKind = "unsupported"
	InitializationFailed ErrorKind = "initialization_failed"
)

// Error is a device failure. Errors are surfaced, never retried automatically.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrPermissionDenied     = &Error{Kind: PermissionDenied}
	ErrDeviceNotFound       = &Error{Kind: DeviceNotFound}
	ErrUnsupported          = &Error{Kind: Unsupported}
	ErrInitializationFailed = &Error{Kind: InitializationFailed}

	ErrAlreadyActive = errors.New("capture already running")
	ErrDeviceBusy    = errors.New("device is held by another session")
	ErrNoDevices     = errors.New("no video input device found")
	ErrStreamEnded   = errors.New("capture stream ended")
	ErrStartAborted  = errors.New("capture stopped while opening")
)

func (e *Error) Error() string {
	if e.Err == nil {
		return "camera: " + string(e.Kind)
	}
	return fmt.Sprintf("camera: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Remediation is the user-facing hint for the failure. Manual entry stays available in every case.
func (e *Error) Remediation() string {
	switch e.Kind {
	case PermissionDenied:
		return "Camera access was denied. Allow camera access for this app and try again."
	case DeviceNotFound:
		return "The camera was disconnected. Reconnect the scanner and try again."
	case Unsupported:
		return "No camera is available on this device."
	default:
		return "The camera could not be started. Close other apps using it and try again."
	}
}

// KindOf returns the kind of a camera error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify wraps backend failures into the taxonomy.
// An unanswered permission prompt counts as a denial.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: PermissionDenied, Err: err}
	}
	return &Error{Kind: InitializationFailed, Err: err}
}

package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultPermissionTimeout = 30 * time.Second
	eventBuffer              = 16
)

// CaptureHandle is the device chosen by RequestCapability.
type CaptureHandle struct {
	Device     DeviceInfo   `json:"device"`
	Candidates []DeviceInfo `json:"candidates"`
}

type Status struct {
	Active    bool        `json:"active"`
	Starting  bool        `json:"starting,omitempty"`
	Device    *DeviceInfo `json:"device,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}

// Manager owns at most one open capture stream and its decoder loop.
// mu is not held while a device is being opened, so Status stays
// responsive during a permission wait. A second Start is refused until
// the first one has finished or been stopped.
type Manager struct {
	device            Device
	newDecoder        DecoderFactory
	permissionTimeout time.Duration
	events            chan string

	mu          sync.Mutex
	starting    bool
	startCancel context.CancelFunc
	active      bool
	info        DeviceInfo
	stream      Stream
	decoder     Decoder
	cancel      context.CancelFunc
	done        chan struct{}

	errMu   sync.Mutex
	lastErr error
}

type Option func(*Manager)

func WithPermissionTimeout(d time.Duration) Option {
	return func(m *Manager) { m.permissionTimeout = d }
}

func WithDecoder(factory DecoderFactory) Option {
	return func(m *Manager) { m.newDecoder = factory }
}

func NewManager(device Device, opts ...Option) *Manager {
	m := &Manager{
		device:            device,
		newDecoder:        NewLineDecoder,
		permissionTimeout: DefaultPermissionTimeout,
		events:            make(chan string, eventBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events delivers decoded text. The channel lives as long as the manager.
func (m *Manager) Events() <-chan string {
	return m.events
}

// RequestCapability picks a device without opening it.
func (m *Manager) RequestCapability(ctx context.Context) (CaptureHandle, error) {
	if m.device == nil {
		return CaptureHandle{}, ErrUnsupported
	}
	infos, err := m.device.Enumerate(ctx)
	if err != nil {
		return CaptureHandle{}, classify(err)
	}
	if len(infos) == 0 {
		return CaptureHandle{}, &Error{Kind: Unsupported, Err: ErrNoDevices}
	}
	return CaptureHandle{Device: preferRear(infos), Candidates: infos}, nil
}

// Start opens the device and runs the decoder loop until Stop or until
// the stream ends on its own.
func (m *Manager) Start(ctx context.Context, h CaptureHandle) error {
	m.mu.Lock()
	m.reapLocked()
	if m.active || m.starting {
		m.mu.Unlock()
		return &Error{Kind: InitializationFailed, Err: ErrAlreadyActive}
	}
	openCtx, abort := context.WithCancel(ctx)
	defer abort()
	m.starting = true
	m.startCancel = abort
	m.mu.Unlock()

	stream, dec, err := m.open(openCtx, h.Device)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	m.startCancel = nil
	if err == nil && openCtx.Err() != nil {
		// Stopped while the device was opening.
		m.release(h.Device, stream, dec)
		err = &Error{Kind: InitializationFailed, Err: ErrStartAborted}
	}
	if err != nil {
		m.setErr(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.active = true
	m.info = h.Device
	m.stream = stream
	m.decoder = dec
	m.cancel = cancel
	m.done = done
	m.setErr(nil)

	go m.run(runCtx, h.Device, dec, stream, done)
	log.Infof("camera %s started", h.Device.ID)
	return nil
}

// open runs the permission check, then opens the live stream and a decoder for it.
func (m *Manager) open(ctx context.Context, info DeviceInfo) (Stream, Decoder, error) {
	if err := m.checkPermission(ctx, info); err != nil {
		return nil, nil, err
	}

	s, err := m.device.Open(ctx, info)
	if err != nil {
		return nil, nil, classify(err)
	}
	stream := &onceStream{Stream: s}
	dec, err := m.newDecoder()
	if err != nil {
		if cerr := stream.Close(); cerr != nil {
			log.Warnf("camera %s: close after decoder failure: %v", info.ID, cerr)
		}
		return nil, nil, &Error{Kind: InitializationFailed, Err: fmt.Errorf("decoder: %w", err)}
	}
	return stream, dec, nil
}

func (m *Manager) release(info DeviceInfo, stream Stream, dec Decoder) {
	if err := stream.Close(); err != nil {
		log.Warnf("camera %s: close stream: %v", info.ID, err)
	}
	if err := dec.Close(); err != nil {
		log.Warnf("camera %s: close decoder: %v", info.ID, err)
	}
}

// checkPermission opens the device and immediately releases it.
func (m *Manager) checkPermission(ctx context.Context, info DeviceInfo) error {
	permCtx, cancel := context.WithTimeout(ctx, m.permissionTimeout)
	defer cancel()

	s, err := m.device.Open(permCtx, info)
	if err != nil {
		return classify(err)
	}
	if err := s.Close(); err != nil {
		return &Error{Kind: InitializationFailed, Err: fmt.Errorf("release permission check: %w", err)}
	}
	return nil
}

func (m *Manager) run(ctx context.Context, info DeviceInfo, dec Decoder, stream Stream, done chan struct{}) {
	defer close(done)
	err := dec.Decode(ctx, stream, func(d Detection) {
		if !d.Found {
			return
		}
		select {
		case m.events <- d.Text:
		case <-ctx.Done():
		default:
			log.Debugf("camera %s: event dropped, consumer busy", info.ID)
		}
	})
	if ctx.Err() != nil {
		return
	}

	// The stream ended without a Stop: unplugged, EOF or read error.
	if err == nil {
		err = ErrStreamEnded
	}
	log.Errorf("camera %s: decoder stopped: %v", info.ID, err)
	m.setErr(&Error{Kind: DeviceNotFound, Err: err})
	// Drop the device lock now. mu may be held by a Stop waiting on done,
	// so the remaining state is cleared by reapLocked.
	if cerr := stream.Close(); cerr != nil {
		log.Warnf("camera %s: close ended stream: %v", info.ID, cerr)
	}
}

// reapLocked clears a capture whose decoder loop has already exited.
func (m *Manager) reapLocked() {
	if !m.active {
		return
	}
	select {
	case <-m.done:
	default:
		return
	}
	m.cancel()
	if err := m.decoder.Close(); err != nil {
		log.Warnf("camera %s: close decoder: %v", m.info.ID, err)
	}
	log.Infof("camera %s released after stream ended", m.info.ID)
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.active = false
	m.info = DeviceInfo{}
	m.stream = nil
	m.decoder = nil
	m.cancel = nil
	m.done = nil
}

// Stop releases the stream and decoder. Calling it when idle is a no-op.
// A Start still opening the device is aborted and releases what it opened.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.starting {
		m.startCancel()
		return nil
	}
	m.reapLocked()
	if !m.active {
		return nil
	}

	var result *multierror.Error
	m.cancel()
	// Closing the stream unblocks a decoder waiting in Read.
	if err := m.stream.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close stream: %w", err))
	}
	<-m.done
	if err := m.decoder.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close decoder: %w", err))
	}

	log.Infof("camera %s stopped", m.info.ID)
	m.clearLocked()
	return result.ErrorOrNil()
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked()

	s := Status{Active: m.active, Starting: m.starting}
	if m.active {
		info := m.info
		s.Device = &info
	}
	if err := m.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// LastError is the most recent start or decoder failure, cleared by a successful Start.
func (m *Manager) LastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

func (m *Manager) setErr(err error) {
	m.errMu.Lock()
	m.lastErr = err
	m.errMu.Unlock()
}

// onceStream lets the decoder loop and Stop both close the stream.
type onceStream struct {
	Stream
	once sync.Once
	err  error
}

func (s *onceStream) Close() error {
	s.once.Do(func() { s.err = s.Stream.Close() })
	return s.err
}

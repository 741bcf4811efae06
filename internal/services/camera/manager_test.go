package camera

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	closeErr error

	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	return &fakeStream{r: r, w: w}
}

func (s *fakeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.r.Close()
	return s.closeErr
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDevice struct {
	infos        []DeviceInfo
	enumErr      error
	openErrs     []error
	blockOpen    bool
	gate         chan struct{}
	liveCloseErr error

	mu      sync.Mutex
	streams []*fakeStream
}

func (d *fakeDevice) Enumerate(context.Context) ([]DeviceInfo, error) {
	return d.infos, d.enumErr
}

func (d *fakeDevice) Open(ctx context.Context, _ DeviceInfo) (Stream, error) {
	if d.gate != nil {
		<-d.gate
	}
	if d.blockOpen {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.openErrs) > 0 {
		err := d.openErrs[0]
		d.openErrs = d.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeStream()
	if len(d.streams) > 0 {
		s.closeErr = d.liveCloseErr
	}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) opened() []*fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeStream(nil), d.streams...)
}

var rearAndFront = []DeviceInfo{
	{ID: "/dev/a", Label: "front-cam", Facing: FacingFront},
	{ID: "/dev/b", Label: "rear-scanner", Facing: FacingRear},
}

func TestRequestCapability(t *testing.T) {
	tests := []struct {
		name     string
		device   *fakeDevice
		wantID   string
		wantKind ErrorKind
	}{
		{name: "prefers rear", device: &fakeDevice{infos: rearAndFront}, wantID: "/dev/b"},
		{name: "falls back to first", device: &fakeDevice{infos: rearAndFront[:1]}, wantID: "/dev/a"},
		{name: "no devices", device: &fakeDevice{}, wantKind: Unsupported},
		{name: "enumeration failure", device: &fakeDevice{enumErr: errors.New("bus error")}, wantKind: InitializationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := NewManager(tt.device).RequestCapability(context.Background())
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, h.Device.ID)
			assert.Empty(t, tt.device.opened(), "enumeration must not open devices")
		})
	}
}

func TestStart_PermissionCheckThenLive(t *testing.T) {
	dev := &fakeDevice{infos: rearAndFront}
	m := NewManager(dev)
	h, err := m.RequestCapability(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background(), h))
	defer m.Stop()

	streams := dev.opened()
	require.Len(t, streams, 2)
	assert.True(t, streams[0].isClosed(), "permission check stream released")
	assert.False(t, streams[1].isClosed())
	assert.True(t, m.Status().Active)
}

func TestStart_Errors(t *testing.T) {
	tests := []struct {
		name     string
		device   *fakeDevice
		wantKind ErrorKind
	}{
		{
			name:     "permission denied on first open",
			device:   &fakeDevice{openErrs: []error{&Error{Kind: PermissionDenied}}},
			wantKind: PermissionDenied,
		},
		{
			name:     "unanswered prompt",
			device:   &fakeDevice{blockOpen: true},
			wantKind: PermissionDenied,
		},
		{
			name:     "device vanished after permission check",
			device:   &fakeDevice{openErrs: []error{nil, &Error{Kind: DeviceNotFound}}},
			wantKind: DeviceNotFound,
		},
		{
			name:     "unknown failure",
			device:   &fakeDevice{openErrs: []error{errors.New("ioctl failed")}},
			wantKind: InitializationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.device, WithPermissionTimeout(20*time.Millisecond))
			err := m.Start(context.Background(), CaptureHandle{Device: rearAndFront[1]})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.False(t, m.Status().Active)
			assert.NotEmpty(t, m.Status().LastError)
			for _, s := range tt.device.opened() {
				assert.True(t, s.isClosed())
			}
		})
	}
}

func TestStart_AlreadyActive(t *testing.T) {
	m := NewManager(&fakeDevice{})
	h := CaptureHandle{Device: rearAndFront[0]}
	require.NoError(t, m.Start(context.Background(), h))
	defer m.Stop()

	err := m.Start(context.Background(), h)
	assert.ErrorIs(t, err, ErrInitializationFailed)
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestStart_DecoderFailureReleasesStream(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(dev, WithDecoder(func() (Decoder, error) { return nil, errors.New("no codec") }))

	err := m.Start(context.Background(), CaptureHandle{Device: rearAndFront[0]})
	assert.Equal(t, InitializationFailed, KindOf(err))
	for _, s := range dev.opened() {
		assert.True(t, s.isClosed())
	}
}

func TestEvents_SuppressNonDetections(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(dev)
	require.NoError(t, m.Start(context.Background(), CaptureHandle{Device: rearAndFront[0]}))
	defer m.Stop()

	live := dev.opened()[1]
	go func() {
		_, _ = live.w.Write([]byte("\n   \n\x01\x02\n{\"type\":\"driver\"}\r\n"))
	}()

	select {
	case text := <-m.Events():
		assert.Equal(t, `{"type":"driver"}`, text)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	assert.Empty(t, m.Events())
}

func TestStop(t *testing.T) {
	t.Run("idempotent when idle", func(t *testing.T) {
		m := NewManager(&fakeDevice{})
		assert.NoError(t, m.Stop())
		assert.NoError(t, m.Stop())
	})

	t.Run("releases mid-decode and allows restart", func(t *testing.T) {
		dev := &fakeDevice{}
		m := NewManager(dev)
		h := CaptureHandle{Device: rearAndFront[0]}
		require.NoError(t, m.Start(context.Background(), h))

		require.NoError(t, m.Stop())
		assert.True(t, dev.opened()[1].isClosed())
		assert.False(t, m.Status().Active)
		assert.NoError(t, m.Stop())

		require.NoError(t, m.Start(context.Background(), h))
		assert.NoError(t, m.Stop())
	})

	t.Run("close failure still releases", func(t *testing.T) {
		dev := &fakeDevice{liveCloseErr: errors.New("EIO")}
		m := NewManager(dev)
		require.NoError(t, m.Start(context.Background(), CaptureHandle{Device: rearAndFront[0]}))

		err := m.Stop()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close stream")
		assert.False(t, m.Status().Active)
	})
}

func TestRun_StreamEndReleasesDevice(t *testing.T) {
	tests := []struct {
		name string
		end  func(w *io.PipeWriter)
	}{
		{name: "clean eof", end: func(w *io.PipeWriter) { w.Close() }},
		{name: "unplugged", end: func(w *io.PipeWriter) { w.CloseWithError(errors.New("EIO")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &fakeDevice{}
			m := NewManager(dev)
			h := CaptureHandle{Device: rearAndFront[0]}
			require.NoError(t, m.Start(context.Background(), h))

			live := dev.opened()[1]
			tt.end(live.w)

			assert.Eventually(t, live.isClosed, time.Second, 5*time.Millisecond, "device lock released")
			assert.Eventually(t, func() bool { return !m.Status().Active }, time.Second, 5*time.Millisecond)
			assert.NotEmpty(t, m.Status().LastError)
			assert.ErrorIs(t, m.LastError(), ErrDeviceNotFound)

			assert.NoError(t, m.Stop())
			require.NoError(t, m.Start(context.Background(), h))
			assert.NoError(t, m.Stop())
		})
	}
}

func TestStatus_ResponsiveWhileOpening(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	m := NewManager(dev)
	h := CaptureHandle{Device: rearAndFront[0]}

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background(), h) }()

	assert.Eventually(t, func() bool { return m.Status().Starting }, time.Second, 5*time.Millisecond)
	assert.False(t, m.Status().Active)
	assert.ErrorIs(t, m.Start(context.Background(), h), ErrAlreadyActive)

	close(dev.gate)
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("start did not finish")
	}
	st := m.Status()
	assert.True(t, st.Active)
	assert.False(t, st.Starting)
	assert.NoError(t, m.Stop())
}

func TestStop_AbortsPendingStart(t *testing.T) {
	dev := &fakeDevice{gate: make(chan struct{})}
	m := NewManager(dev)

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background(), CaptureHandle{Device: rearAndFront[0]}) }()
	assert.Eventually(t, func() bool { return m.Status().Starting }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop())
	close(dev.gate)

	select {
	case err := <-started:
		assert.ErrorIs(t, err, ErrStartAborted)
	case <-time.After(time.Second):
		t.Fatal("start did not finish")
	}
	assert.False(t, m.Status().Active)
	for _, s := range dev.opened() {
		assert.True(t, s.isClosed())
	}
}

func TestError_Remediation(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range []ErrorKind{PermissionDenied, DeviceNotFound, Unsupported, InitializationFailed} {
		msg := (&Error{Kind: k}).Remediation()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "remediation for %s is not distinct", k)
		seen[msg] = true
	}
}

func TestFacingFromLabel(t *testing.T) {
	assert.Equal(t, FacingRear, FacingFromLabel("usb-Back_Camera-if00"))
	assert.Equal(t, FacingRear, FacingFromLabel("environment"))
	assert.Equal(t, FacingFront, FacingFromLabel("FaceTime HD"))
	assert.Equal(t, FacingUnknown, FacingFromLabel("usb-Honeywell_Scanner-if00"))
}

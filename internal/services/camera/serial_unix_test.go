//go:build linux || darwin || freebsd

package camera

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialDevice(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"usb-Rear_Scanner-if00", "usb-Acme-if00"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("hello\n"), 0o600))
	}
	dev := NewSerialDevice(filepath.Join(dir, "usb-*"))
	ctx := context.Background()

	infos, err := dev.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, FacingUnknown, infos[0].Facing)
	assert.Equal(t, FacingRear, infos[1].Facing)

	t.Run("exclusive lock", func(t *testing.T) {
		first, err := dev.Open(ctx, infos[0])
		require.NoError(t, err)

		_, err = dev.Open(ctx, infos[0])
		assert.ErrorIs(t, err, ErrDeviceBusy)
		assert.Equal(t, InitializationFailed, KindOf(err))

		require.NoError(t, first.Close())
		again, err := dev.Open(ctx, infos[0])
		require.NoError(t, err)
		require.NoError(t, again.Close())
	})

	t.Run("missing node", func(t *testing.T) {
		_, err := dev.Open(ctx, DeviceInfo{ID: filepath.Join(dir, "gone")})
		assert.Equal(t, DeviceNotFound, KindOf(err))
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root bypasses file permissions")
		}
		locked := filepath.Join(dir, "usb-locked")
		require.NoError(t, os.WriteFile(locked, nil, 0o000))
		_, err := dev.Open(ctx, DeviceInfo{ID: locked})
		assert.Equal(t, PermissionDenied, KindOf(err))
	})

	t.Run("no matches", func(t *testing.T) {
		infos, err := NewSerialDevice(filepath.Join(dir, "none-*")).Enumerate(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})
}

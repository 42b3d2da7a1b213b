package hardware

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRTCTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "date"), []byte("2025-06-16\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "time"), []byte("10:30:45\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wakealarm"), []byte("\n"), 0o644))
	return dir
}

func TestRaspberryPi5_RequiresWakealarm(t *testing.T) {
	_, err := newRaspberryPi5(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRaspberryPi5_RTCTime(t *testing.T) {
	r, err := newRaspberryPi5(fakeRTCTree(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts, err := r.RTCTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 16, 10, 30, 45, 0, time.UTC), ts)
}

func TestRaspberryPi5_StartupTime(t *testing.T) {
	dir := fakeRTCTree(t)
	r, err := newRaspberryPi5(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	alarm := time.Date(2025, time.June, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.SetStartupTime(alarm))

	content, err := os.ReadFile(filepath.Join(dir, "wakealarm"))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(alarm.Unix(), 10), string(content))

	read, err := r.StartupTime()
	require.NoError(t, err)
	assert.Equal(t, alarm, read)

	// rearming the same instant is a no-op
	require.NoError(t, r.SetStartupTime(alarm))

	require.NoError(t, r.SetStartupTime(time.Time{}))
	read, err = r.StartupTime()
	require.NoError(t, err)
	assert.True(t, read.IsZero())
}

func TestRaspberryPi5_ShutdownTime(t *testing.T) {
	r, err := newRaspberryPi5(fakeRTCTree(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	// the onboard RTC cannot cut power, so the instant is only recorded
	shutdown := time.Now().Add(time.Hour)
	require.NoError(t, r.SetShutdownTime(shutdown))
	read, err := r.ShutdownTime()
	require.NoError(t, err)
	assert.Equal(t, shutdown, read)

	assert.NoError(t, r.ClearFlags())
	reason, err := r.ActionReason()
	require.NoError(t, err)
	assert.Equal(t, ReasonNA, reason)
}

func TestDetect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// no I2C bus, no device tree
	origModel, origRTC := deviceTreeModelPath, defaultRTCSysfsPath
	t.Cleanup(func() { deviceTreeModelPath, defaultRTCSysfsPath = origModel, origRTC })
	deviceTreeModelPath = filepath.Join(t.TempDir(), "model")
	defaultRTCSysfsPath = t.TempDir()

	assert.Empty(t, Detect(9999, DefaultI2CAddr, logger))

	// a Pi 5 with a usable wakealarm node
	require.NoError(t, os.WriteFile(deviceTreeModelPath, []byte("Raspberry Pi 5 Model B Rev 1.0"), 0o644))
	defaultRTCSysfsPath = fakeRTCTree(t)
	assert.Equal(t, TypeRaspberryPi5, Detect(9999, DefaultI2CAddr, logger))
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("unknown", 1, DefaultI2CAddr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrUnavailable)
}

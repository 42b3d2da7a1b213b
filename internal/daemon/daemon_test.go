package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackIT-Systems/tsscheduled/internal/hardware"
	"github.com/trackIT-Systems/tsscheduled/internal/schedule"
)

type fakeDevice struct {
	rtc          time.Time
	startup      time.Time
	shutdown     time.Time
	reason       hardware.ActionReason
	flagsCleared bool
}

func (f *fakeDevice) RTCTime() (time.Time, error)       { return f.rtc, nil }
func (f *fakeDevice) SetStartupTime(t time.Time) error  { f.startup = t; return nil }
func (f *fakeDevice) SetShutdownTime(t time.Time) error { f.shutdown = t; return nil }
func (f *fakeDevice) StartupTime() (time.Time, error)   { return f.startup, nil }
func (f *fakeDevice) ShutdownTime() (time.Time, error)  { return f.shutdown, nil }
func (f *fakeDevice) ClearFlags() error                 { f.flagsCleared = true; return nil }
func (f *fakeDevice) ActionReason() (hardware.ActionReason, error) {
	return f.reason, nil
}
func (f *fakeDevice) Close() error { return nil }

var _ hardware.PowerManager = &fakeDevice{}

func testSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	s, err := schedule.Load(strings.NewReader(`
tz: UTC
schedule:
  - {name: day, start: "09:00", stop: "17:00"}
`), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func testClockSources(t *testing.T) clockSources {
	t.Helper()
	dir := t.TempDir()
	return clockSources{
		fakeHWClockPath:  filepath.Join(dir, "fake-hwclock.data"),
		timesyncPath:     filepath.Join(dir, "clock"),
		chronyDriftPath:  filepath.Join(dir, "chrony.drift"),
		synchronizedPath: filepath.Join(dir, "run", "synchronized"),
	}
}

func TestDaemon_Reconcile(t *testing.T) {
	now := time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: now.Add(time.Second), reason: hardware.ReasonAlarmStartup}

	d := New(device, testSchedule(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)

	ch := d.Publisher.Subscribe()
	halt, err := d.reconcile()
	require.NoError(t, err)
	assert.False(t, halt)

	status := <-ch
	assert.True(t, status.Active)
	assert.False(t, status.ForceOn)
	require.NotNil(t, status.NextStartup)
	assert.Equal(t, time.Date(2025, time.June, 17, 9, 0, 0, 0, time.UTC), *status.NextStartup)
	require.NotNil(t, status.NextShutdown)
	assert.Equal(t, time.Date(2025, time.June, 16, 17, 0, 0, 0, time.UTC), *status.NextShutdown)
	assert.Equal(t, 1.0, status.DriftSeconds)

	assert.Equal(t, *status.NextStartup, device.startup)
	assert.Equal(t, *status.NextShutdown, device.shutdown)
}

func TestDaemon_HaltsWhenInactive(t *testing.T) {
	now := time.Date(2025, time.June, 16, 20, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: now, reason: hardware.ReasonAlarmStartup}

	d := New(device, testSchedule(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)
	d.grace = 0

	var halted bool
	d.halt = func() error { halted = true; return nil }

	require.NoError(t, d.Run(context.Background()))
	assert.True(t, halted)
	assert.True(t, device.flagsCleared)
}

func TestDaemon_GraceDelaysHalt(t *testing.T) {
	now := time.Date(2025, time.June, 16, 20, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: now, reason: hardware.ReasonAlarmStartup}

	d := New(device, testSchedule(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)

	halt, err := d.reconcile()
	require.NoError(t, err)
	assert.False(t, halt)

	now = now.Add(shutdownGrace)
	halt, err = d.reconcile()
	require.NoError(t, err)
	assert.True(t, halt)
}

func TestDaemon_ManualStartKeepsDeviceOn(t *testing.T) {
	// outside the scheduled window; a button press keeps the device on for
	// the button delay
	now := time.Date(2025, time.June, 16, 20, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: now, reason: hardware.ReasonButtonClick}

	d := New(device, testSchedule(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)

	require.NoError(t, d.startup())

	halt, err := d.reconcile()
	require.NoError(t, err)
	assert.False(t, halt)

	now = now.Add(11 * time.Minute)
	halt, err = d.reconcile()
	require.NoError(t, err)
	assert.False(t, halt) // grace period starts counting now
	now = now.Add(shutdownGrace)
	halt, err = d.reconcile()
	require.NoError(t, err)
	assert.True(t, halt)
}

func TestDaemon_Terminate(t *testing.T) {
	now := time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: now, reason: hardware.ReasonAlarmStartup}

	d := New(device, testSchedule(t), 100*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.True(t, device.shutdown.IsZero())
	assert.Equal(t, time.Date(2025, time.June, 17, 9, 0, 0, 0, time.UTC), device.startup)
}

func TestDaemon_RejectsImplausibleRTC(t *testing.T) {
	now := time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC)
	device := &fakeDevice{rtc: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)}

	d := New(device, testSchedule(t), time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.clock = func() time.Time { return now }
	d.clocks = testClockSources(t)

	require.NoError(t, os.WriteFile(d.clocks.fakeHWClockPath, []byte("2025-06-15 00:00:00\n"), 0o644))

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to run")
}

func TestClockSources_LastKnownTime(t *testing.T) {
	sources := testClockSources(t)
	assert.True(t, sources.lastKnownTime().IsZero())

	require.NoError(t, os.WriteFile(sources.fakeHWClockPath, []byte("2025-06-15 12:30:00\n"), 0o644))
	assert.Equal(t, time.Date(2025, time.June, 15, 12, 30, 0, 0, time.UTC), sources.lastKnownTime())

	// a newer timesync stamp wins
	require.NoError(t, os.WriteFile(sources.timesyncPath, nil, 0o644))
	assert.True(t, sources.lastKnownTime().After(time.Date(2025, time.June, 15, 12, 30, 0, 0, time.UTC)))
}

func TestClockSources_MarkSynchronized(t *testing.T) {
	sources := testClockSources(t)
	require.NoError(t, sources.markSynchronized())
	_, err := os.Stat(sources.synchronizedPath)
	assert.NoError(t, err)
}

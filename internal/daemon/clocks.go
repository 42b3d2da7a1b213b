package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const fakeHWClockLayout = "2006-01-02 15:04:05"

// clockSources locates the on-disk traces of the last known-good wall clock
// time. Paths are fields so tests can point them at a temp dir.
type clockSources struct {
	fakeHWClockPath  string
	timesyncPath     string
	chronyDriftPath  string
	synchronizedPath string
}

func defaultClockSources() clockSources {
	return clockSources{
		fakeHWClockPath:  "/etc/fake-hwclock.data",
		timesyncPath:     "/var/lib/systemd/timesync/clock",
		chronyDriftPath:  "/var/lib/chrony/chrony.drift",
		synchronizedPath: "/run/systemd/timesync/synchronized",
	}
}

// lastKnownTime returns the most recent instant the system clock is known to
// have reached, derived from fake-hwclock's saved timestamp and the mtimes of
// the timesyncd and chrony state files. Zero when no source is present.
func (c clockSources) lastKnownTime() time.Time {
	var last time.Time
	if t, err := readFakeHWClock(c.fakeHWClockPath); err == nil && t.After(last) {
		last = t
	}
	for _, path := range []string{c.timesyncPath, c.chronyDriftPath} {
		if fi, err := os.Stat(path); err == nil && fi.ModTime().After(last) {
			last = fi.ModTime()
		}
	}
	return last
}

// markSynchronized tells systemd-timesyncd the clock has been validated, so
// services ordered after time-sync.target may start.
func (c clockSources) markSynchronized() error {
	if err := os.MkdirAll(filepath.Dir(c.synchronizedPath), 0o755); err != nil {
		return fmt.Errorf("mark synchronized: %w", err)
	}
	f, err := os.OpenFile(c.synchronizedPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("mark synchronized: %w", err)
	}
	return f.Close()
}

func readFakeHWClock(path string) (time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(fakeHWClockLayout, strings.TrimSpace(string(data)), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("fake-hwclock: %w", err)
	}
	return t, nil
}

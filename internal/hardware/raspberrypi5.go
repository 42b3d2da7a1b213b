package hardware

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var defaultRTCSysfsPath = "/sys/class/rtc/rtc0"

// RaspberryPi5 manages power through the Raspberry Pi 5 onboard RTC. The
// wake alarm is programmed through sysfs; shutdown is deferred: the instant
// is kept in memory and the daemon halts the host when it falls due. With
// POWER_OFF_ON_HALT=1 the firmware then powers the board down until the
// wake alarm fires.
type RaspberryPi5 struct {
	rtcPath  string
	shutdown time.Time
	logger   *slog.Logger
}

// NewRaspberryPi5 verifies the wake alarm interface is present and checks
// the EEPROM power settings.
func NewRaspberryPi5(logger *slog.Logger) (*RaspberryPi5, error) {
	return newRaspberryPi5(defaultRTCSysfsPath, logger)
}

func newRaspberryPi5(rtcPath string, logger *slog.Logger) (*RaspberryPi5, error) {
	if _, err := os.Stat(filepath.Join(rtcPath, "wakealarm")); err != nil {
		return nil, fmt.Errorf("%w: no wakealarm at %s: %s", ErrUnavailable, rtcPath, err)
	}
	r := &RaspberryPi5{rtcPath: rtcPath, logger: logger}
	r.checkEEPROMConfig()
	logger.Info("Raspberry Pi 5 RTC interface initialized", "path", rtcPath)
	return r, nil
}

// checkEEPROMConfig warns when the EEPROM is not configured for low-power
// halt with RTC wake. It never rewrites the EEPROM.
func (r *RaspberryPi5) checkEEPROMConfig() {
	out, err := exec.Command("rpi-eeprom-config").Output()
	if err != nil {
		r.logger.Debug("rpi-eeprom-config not available, skipping EEPROM check", "err", err)
		return
	}
	settings := map[string]string{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, found := strings.Cut(line, "="); found {
			settings[key] = value
		}
	}
	if settings["POWER_OFF_ON_HALT"] != "1" {
		r.logger.Warn("EEPROM POWER_OFF_ON_HALT is not 1, the board will not power off on halt")
	}
	if settings["WAKE_ON_GPIO"] != "0" {
		r.logger.Warn("EEPROM WAKE_ON_GPIO is not 0, RTC wake may not work")
	}
}

// RTCTime reads the sysfs date and time attributes. The kernel exposes the
// RTC in UTC.
func (r *RaspberryPi5) RTCTime() (time.Time, error) {
	date, err := os.ReadFile(filepath.Join(r.rtcPath, "date"))
	if err != nil {
		return time.Time{}, fmt.Errorf("reading rtc date: %w", err)
	}
	clock, err := os.ReadFile(filepath.Join(r.rtcPath, "time"))
	if err != nil {
		return time.Time{}, fmt.Errorf("reading rtc time: %w", err)
	}
	ts, err := time.Parse("2006-01-02 15:04:05",
		strings.TrimSpace(string(date))+" "+strings.TrimSpace(string(clock)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing rtc time: %w", err)
	}
	return ts, nil
}

// SetStartupTime programs the wake alarm. The kernel requires clearing the
// alarm before arming a new value; an unchanged value is left alone.
func (r *RaspberryPi5) SetStartupTime(t time.Time) error {
	path := filepath.Join(r.rtcPath, "wakealarm")

	if t.IsZero() {
		if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
			return fmt.Errorf("clearing wake alarm: %w", err)
		}
		return nil
	}

	stamp := t.Unix()
	if current, err := r.readWakealarm(); err == nil && current == stamp {
		return nil
	}
	if err := os.WriteFile(path, []byte("0"), 0644); err != nil {
		r.logger.Warn("failed to clear wake alarm before arming", "err", err)
	}
	if err := os.WriteFile(path, []byte(strconv.FormatInt(stamp, 10)), 0644); err != nil {
		return fmt.Errorf("setting wake alarm: %w", err)
	}
	r.logger.Debug("wake alarm armed", "at", t, "timestamp", stamp)
	return nil
}

func (r *RaspberryPi5) readWakealarm() (int64, error) {
	content, err := os.ReadFile(filepath.Join(r.rtcPath, "wakealarm"))
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(content))
	if value == "" || value == "0" {
		return 0, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func (r *RaspberryPi5) StartupTime() (time.Time, error) {
	stamp, err := r.readWakealarm()
	if err != nil || stamp == 0 {
		return time.Time{}, err
	}
	return time.Unix(stamp, 0).UTC(), nil
}

// SetShutdownTime records the shutdown instant. The onboard RTC cannot cut
// power by itself; the daemon halts the host when the instant arrives.
func (r *RaspberryPi5) SetShutdownTime(t time.Time) error {
	if !t.IsZero() && t.Before(time.Now()) {
		r.logger.Warn("shutdown time is in the past", "at", t)
	}
	r.shutdown = t
	return nil
}

func (r *RaspberryPi5) ShutdownTime() (time.Time, error) {
	return r.shutdown, nil
}

// ClearFlags is a no-op: the kernel manages wake alarm flags itself.
func (r *RaspberryPi5) ClearFlags() error {
	return nil
}

// ActionReason always reports n/a: the Pi 5 offers no reliable wake reason.
func (r *RaspberryPi5) ActionReason() (ActionReason, error) {
	return ReasonNA, nil
}

func (r *RaspberryPi5) Close() error {
	return nil
}

var _ PowerManager = &RaspberryPi5{}

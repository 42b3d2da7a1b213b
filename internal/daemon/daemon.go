// Package daemon runs the reconciliation loop: it keeps the hardware wake
// and shutdown alarms in sync with the resolved schedule, validates the
// hardware clock at startup and powers the host off when the schedule says
// it should be off.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/trackIT-Systems/tsscheduled/internal/hardware"
	"github.com/trackIT-Systems/tsscheduled/internal/schedule"
	"github.com/trackIT-Systems/tsscheduled/pkg/pubsub"
)

const (
	// driftThreshold is how far the RTC may diverge from the system clock
	// before we start reporting it.
	driftThreshold = 2 * time.Second
	// shutdownGrace is how long the schedule must stay inactive before the
	// host is powered off.
	shutdownGrace = 30 * time.Second
)

// Status is a snapshot of the daemon's view of the world, published on every
// reconciliation.
type Status struct {
	Active       bool                `json:"active"`
	ForceOn      bool                `json:"force_on"`
	NextStartup  *time.Time          `json:"next_startup,omitempty"`
	NextShutdown *time.Time          `json:"next_shutdown,omitempty"`
	SystemTime   time.Time           `json:"system_time"`
	RTCTime      time.Time           `json:"rtc_time"`
	DriftSeconds float64             `json:"drift_seconds"`
	WakeReason   string              `json:"wake_reason"`
	Telemetry    *hardware.Telemetry `json:"telemetry,omitempty"`
}

// Daemon reconciles the schedule with the power management hardware.
type Daemon struct {
	Publisher     *pubsub.Publisher[Status]
	device        hardware.PowerManager
	schedule      *schedule.Schedule
	interval      time.Duration
	grace         time.Duration
	halt          func() error
	clock         func() time.Time
	clocks        clockSources
	reason        hardware.ActionReason
	inactiveSince time.Time
	logger        *slog.Logger
}

func New(device hardware.PowerManager, sched *schedule.Schedule, interval time.Duration, logger *slog.Logger) *Daemon {
	return &Daemon{
		Publisher: pubsub.New[Status](logger.With("component", "publisher")),
		device:    device,
		schedule:  sched,
		interval:  interval,
		grace:     shutdownGrace,
		halt:      poweroff,
		clock:     time.Now,
		clocks:    defaultClockSources(),
		logger:    logger,
	}
}

func poweroff() error {
	return exec.Command("systemctl", "poweroff").Run()
}

// Run executes the reconciliation loop until ctx is cancelled or the host is
// powered off. On cancellation it clears the pending shutdown and leaves the
// startup alarm armed for the next scheduled window.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.startup(); err != nil {
		return err
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		halt, err := d.reconcile()
		if err != nil {
			d.logger.Error("reconciliation failed", "err", err)
		}
		if halt {
			d.logger.Info("schedule inactive, powering off")
			return d.halt()
		}
		select {
		case <-ctx.Done():
			return d.terminate()
		case <-ticker.C:
		}
	}
}

func (d *Daemon) startup() error {
	if err := d.device.ClearFlags(); err != nil {
		return fmt.Errorf("clear alarm flags: %w", err)
	}
	reason, err := d.device.ActionReason()
	if err != nil {
		return fmt.Errorf("read wake reason: %w", err)
	}
	d.reason = reason
	d.logger.Info("started", "reason", reason.String())
	if reason.Manual() {
		d.schedule.RecordManualStart(d.clock())
	}
	if err := d.validateClock(); err != nil {
		return err
	}
	if err := d.clocks.markSynchronized(); err != nil {
		d.logger.Warn("failed to mark clock synchronized", "err", err)
	}
	return nil
}

// validateClock refuses to run when the RTC predates the last instant the
// system clock is known to have reached: an unset or reset RTC would program
// alarms in the wrong epoch.
func (d *Daemon) validateClock() error {
	rtc, err := d.device.RTCTime()
	if err != nil {
		return fmt.Errorf("read hardware clock: %w", err)
	}
	if last := d.clocks.lastKnownTime(); !last.IsZero() && rtc.Before(last) {
		return fmt.Errorf("hardware clock %s predates last known time %s: refusing to run",
			rtc.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	return nil
}

func (d *Daemon) reconcile() (bool, error) {
	now := d.clock()
	status := Status{
		Active:     d.schedule.Active(now),
		ForceOn:    d.schedule.ForceOn(),
		SystemTime: now,
		WakeReason: d.reason.String(),
	}

	var nextStartup, nextShutdown time.Time
	if t, ok := d.schedule.NextStartup(now); ok {
		nextStartup = t
		status.NextStartup = &t
	}
	if t, ok := d.schedule.NextShutdown(now); ok {
		nextShutdown = t
		status.NextShutdown = &t
	}
	if err := d.device.SetStartupTime(nextStartup); err != nil {
		return false, fmt.Errorf("program startup alarm: %w", err)
	}
	if err := d.device.SetShutdownTime(nextShutdown); err != nil {
		return false, fmt.Errorf("program shutdown alarm: %w", err)
	}

	rtc, err := d.device.RTCTime()
	if err != nil {
		return false, fmt.Errorf("read hardware clock: %w", err)
	}
	status.RTCTime = rtc
	drift := rtc.Sub(now)
	status.DriftSeconds = drift.Seconds()
	if drift > driftThreshold || drift < -driftThreshold {
		d.logger.Warn("hardware clock drift", "drift", drift.String())
	}

	if reader, ok := d.device.(hardware.TelemetryReader); ok {
		if telemetry, err := reader.Telemetry(); err == nil {
			status.Telemetry = &telemetry
		} else {
			d.logger.Warn("failed to read telemetry", "err", err)
		}
	}

	d.Publisher.Publish(status)
	d.logger.Debug("reconciled",
		"active", status.Active,
		"next_startup", nextStartup.Format(time.RFC3339),
		"next_shutdown", nextShutdown.Format(time.RFC3339),
	)

	if status.Active {
		d.inactiveSince = time.Time{}
		return false, nil
	}
	if d.inactiveSince.IsZero() {
		d.inactiveSince = now
		d.logger.Info("schedule inactive, shutdown pending", "grace", d.grace.String())
	}
	return now.Sub(d.inactiveSince) >= d.grace, nil
}

// terminate runs when the daemon is stopped without powering off the host:
// the pending shutdown is cleared so the hardware does not cut power under a
// running system, while the startup alarm stays armed.
func (d *Daemon) terminate() error {
	d.logger.Info("shutting down")
	if err := d.device.SetShutdownTime(time.Time{}); err != nil {
		d.logger.Warn("failed to clear shutdown alarm", "err", err)
	}
	var nextStartup time.Time
	if t, ok := d.schedule.NextStartup(d.clock()); ok {
		nextStartup = t
	}
	if err := d.device.SetStartupTime(nextStartup); err != nil {
		d.logger.Warn("failed to program startup alarm", "err", err)
	}
	return nil
}

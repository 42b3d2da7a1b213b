// Package hardware provides access to power management hardware with a
// real-time clock and wake/shutdown alarms. Two backends are supported: the
// WittyPi 4 add-on board (I2C) and the Raspberry Pi 5 onboard RTC (sysfs).
package hardware

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the underlying device node or bus could not be
// opened or did not respond as expected. Fatal for the backend.
var ErrUnavailable = errors.New("power management hardware unavailable")

// PowerManager is the capability set the daemon needs from a backend.
// Individual calls are idempotent: programming the same alarm twice leaves
// the device in the same state, and setting an alarm clears any prior one.
type PowerManager interface {
	// RTCTime reads the hardware clock's notion of now (UTC).
	RTCTime() (time.Time, error)
	// SetStartupTime programs the wake alarm. A zero time clears it.
	SetStartupTime(t time.Time) error
	// SetShutdownTime requests the device be powered off at t. A zero time
	// clears the request. The mechanism is backend specific.
	SetShutdownTime(t time.Time) error
	// StartupTime returns the armed wake alarm, zero when none is armed.
	StartupTime() (time.Time, error)
	// ShutdownTime returns the pending shutdown instant, zero when none.
	ShutdownTime() (time.Time, error)
	// ClearFlags acknowledges alarm triggers after boot.
	ClearFlags() error
	// ActionReason reports why the device last powered on.
	ActionReason() (ActionReason, error)
	Close() error
}

// Telemetry is electrical monitoring exposed by backends that support it.
type Telemetry struct {
	VoltageIn   float64 `json:"voltage_in"`
	VoltageOut  float64 `json:"voltage_out"`
	CurrentOut  float64 `json:"current_out"`
	Temperature float64 `json:"temperature"`
}

// TelemetryReader is implemented by backends with voltage/temperature
// monitoring.
type TelemetryReader interface {
	Telemetry() (Telemetry, error)
}

// ActionReason identifies why the device last changed power state, as
// reported by the hardware.
type ActionReason uint8

const (
	ReasonNA                  ActionReason = 0x00
	ReasonAlarmStartup        ActionReason = 0x01
	ReasonAlarmShutdown       ActionReason = 0x02
	ReasonButtonClick         ActionReason = 0x03
	ReasonLowVoltage          ActionReason = 0x04
	ReasonVoltageRestore      ActionReason = 0x05
	ReasonOverTemperature     ActionReason = 0x06
	ReasonBelowTemperature    ActionReason = 0x07
	ReasonAlarmStartupDelayed ActionReason = 0x08
	ReasonPowerConnected      ActionReason = 0x0a
	ReasonReboot              ActionReason = 0x0b
	ReasonGuaranteedWake      ActionReason = 0x0c
)

func (r ActionReason) String() string {
	switch r {
	case ReasonNA:
		return "n/a"
	case ReasonAlarmStartup:
		return "alarm startup"
	case ReasonAlarmShutdown:
		return "alarm shutdown"
	case ReasonButtonClick:
		return "button click"
	case ReasonLowVoltage:
		return "low voltage"
	case ReasonVoltageRestore:
		return "voltage restore"
	case ReasonOverTemperature:
		return "over temperature"
	case ReasonBelowTemperature:
		return "below temperature"
	case ReasonAlarmStartupDelayed:
		return "delayed alarm startup"
	case ReasonPowerConnected:
		return "power connected"
	case ReasonReboot:
		return "reboot"
	case ReasonGuaranteedWake:
		return "guaranteed wake"
	default:
		return fmt.Sprintf("unknown (0x%02x)", uint8(r))
	}
}

// Manual reports whether the reason indicates a power-on outside the
// schedule (button press, power restored) rather than a programmed wake.
func (r ActionReason) Manual() bool {
	switch r {
	case ReasonNA, ReasonButtonClick, ReasonVoltageRestore, ReasonPowerConnected:
		return true
	}
	return false
}

// Shutdown reports whether the reason indicates the hardware already decided
// the device must power down (fired shutdown alarm, electrical protection).
func (r ActionReason) Shutdown() bool {
	switch r {
	case ReasonAlarmShutdown, ReasonLowVoltage, ReasonOverTemperature:
		return true
	}
	return false
}

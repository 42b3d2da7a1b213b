package hardware

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultI2CAddr is the WittyPi 4 microcontroller address.
const DefaultI2CAddr = 0x08

const wittyPiFirmwareID = 0x26

// alarmReset disables an alarm register field.
const alarmReset = 80

// WittyPi 4 I2C registers (subset).
const (
	regID                = 0
	regVoltageInI        = 1
	regVoltageInD        = 2
	regVoltageOutI       = 3
	regVoltageOutD       = 4
	regCurrentOutI       = 5
	regCurrentOutD       = 6
	regActionReason      = 11
	regFWRevision        = 12
	regConfDefaultOn     = 17
	regConfPowerCutDelay = 21

	// startup alarm (alarm 1): second, minute, hour, day, weekday
	regAlarm1 = 27
	// shutdown alarm (alarm 2): same layout
	regAlarm2 = 32

	regConfFlagAlarm1     = 39
	regConfFlagAlarm2     = 40
	regConfDefaultOnDelay = 47

	regLM75BTemperature = 50

	regRTCCtrl2    = 55
	regRTCSeconds  = 58
	regRTCMinutes  = 59
	regRTCHours    = 60
	regRTCDays     = 61
	regRTCWeekdays = 62
	regRTCMonths   = 63
	regRTCYears    = 64
)

func bcd2bin(v uint8) int { return int(v) - 6*int(v>>4) }
func bin2bcd(v int) uint8 { return uint8(v + 6*(v/10)) }

// WittyPi4 drives the WittyPi 4 power management board over I2C. The board
// cuts and restores power itself; both alarms are held in its firmware.
type WittyPi4 struct {
	bus    smbus
	logger *slog.Logger
}

// NewWittyPi4 opens the I2C bus and probes the board's firmware id.
func NewWittyPi4(bus, addr int, logger *slog.Logger) (*WittyPi4, error) {
	conn, err := openI2C(bus, addr)
	if err != nil {
		return nil, err
	}
	w := &WittyPi4{bus: conn, logger: logger}
	if err = w.probe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return w, nil
}

func newWittyPi4(bus smbus, logger *slog.Logger) (*WittyPi4, error) {
	w := &WittyPi4{bus: bus, logger: logger}
	if err := w.probe(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WittyPi4) probe() error {
	id, err := w.bus.ReadReg(regID)
	if err != nil {
		return fmt.Errorf("%w: reading firmware id: %s", ErrUnavailable, err)
	}
	if id != wittyPiFirmwareID {
		return fmt.Errorf("%w: unexpected firmware id 0x%02x (want 0x%02x)", ErrUnavailable, id, wittyPiFirmwareID)
	}
	revision, _ := w.bus.ReadReg(regFWRevision)
	w.logger.Info("WittyPi 4 probed", "id", fmt.Sprintf("0x%02x", id), "revision", fmt.Sprintf("0x%02x", revision))
	return nil
}

// RTCTime reads the onboard PCF85063 clock. The RTC runs on UTC.
func (w *WittyPi4) RTCTime() (time.Time, error) {
	var raw [6]int
	for i, reg := range []uint8{regRTCYears, regRTCMonths, regRTCDays, regRTCHours, regRTCMinutes, regRTCSeconds} {
		v, err := w.bus.ReadReg(reg)
		if err != nil {
			return time.Time{}, fmt.Errorf("reading rtc: %w", err)
		}
		raw[i] = bcd2bin(v)
	}
	return time.Date(2000+raw[0], time.Month(raw[1]), raw[2], raw[3], raw[4], raw[5], 0, time.UTC), nil
}

// SetRTCTime writes the hardware clock.
func (w *WittyPi4) SetRTCTime(t time.Time) error {
	ts := t.UTC()
	writes := []struct {
		reg   uint8
		value int
	}{
		{regRTCYears, ts.Year() - 2000},
		{regRTCMonths, int(ts.Month())},
		{regRTCWeekdays, int(ts.Weekday())},
		{regRTCDays, ts.Day()},
		{regRTCHours, ts.Hour()},
		{regRTCMinutes, ts.Minute()},
		{regRTCSeconds, ts.Second()},
	}
	for _, wr := range writes {
		if err := w.bus.WriteReg(wr.reg, bin2bcd(wr.value)); err != nil {
			return fmt.Errorf("writing rtc: %w", err)
		}
	}
	return nil
}

func (w *WittyPi4) SetStartupTime(t time.Time) error {
	return w.setAlarm(regAlarm1, t)
}

func (w *WittyPi4) SetShutdownTime(t time.Time) error {
	return w.setAlarm(regAlarm2, t)
}

func (w *WittyPi4) StartupTime() (time.Time, error) {
	return w.alarmTime(regAlarm1)
}

func (w *WittyPi4) ShutdownTime() (time.Time, error) {
	return w.alarmTime(regAlarm2)
}

// setAlarm programs the second/minute/hour/day registers at base. The
// weekday field is always disabled; a zero time disables the whole alarm.
func (w *WittyPi4) setAlarm(base uint8, t time.Time) error {
	if t.IsZero() {
		for offset := uint8(0); offset < 5; offset++ {
			if err := w.bus.WriteReg(base+offset, bin2bcd(alarmReset)); err != nil {
				return fmt.Errorf("clearing alarm: %w", err)
			}
		}
		return nil
	}

	ts := t.UTC()
	if rtc, err := w.RTCTime(); err == nil && ts.Before(rtc) {
		w.logger.Warn("alarm time is in the past", "alarm", ts, "rtc", rtc)
	}

	writes := []struct {
		offset uint8
		value  int
	}{
		{0, ts.Second()},
		{1, ts.Minute()},
		{2, ts.Hour()},
		{3, ts.Day()},
		{4, alarmReset},
	}
	for _, wr := range writes {
		if err := w.bus.WriteReg(base+wr.offset, bin2bcd(wr.value)); err != nil {
			return fmt.Errorf("setting alarm: %w", err)
		}
	}
	return nil
}

// alarmTime reconstructs the next instant matching the alarm registers at
// base, relative to the RTC's current time. Zero when the alarm is disabled.
func (w *WittyPi4) alarmTime(base uint8) (time.Time, error) {
	var fields [5]int
	for offset := uint8(0); offset < 5; offset++ {
		v, err := w.bus.ReadReg(base + offset)
		if err != nil {
			return time.Time{}, fmt.Errorf("reading alarm: %w", err)
		}
		fields[offset] = bcd2bin(v)
	}
	second, minute, hour, day, weekday := fields[0], fields[1], fields[2], fields[3], fields[4]

	if day == 0 {
		return time.Time{}, nil
	}
	if second == alarmReset && minute == alarmReset && hour == alarmReset && day == alarmReset && weekday == alarmReset {
		return time.Time{}, nil
	}

	ts, err := w.RTCTime()
	if err != nil {
		return time.Time{}, err
	}
	for second != alarmReset && ts.Second() != second {
		ts = ts.Add(time.Second)
	}
	for minute != alarmReset && ts.Minute() != minute {
		ts = ts.Add(time.Minute)
	}
	for hour != alarmReset && ts.Hour() != hour {
		ts = ts.Add(time.Hour)
	}
	for weekday != alarmReset && int(ts.Weekday()) != weekday {
		ts = ts.AddDate(0, 0, 1)
	}
	for day != alarmReset && ts.Day() != day {
		ts = ts.AddDate(0, 0, 1)
	}
	return ts, nil
}

// ClearFlags resets the RTC alarm flag and both firmware alarm flags. Called
// after boot to acknowledge whatever alarm woke the device.
func (w *WittyPi4) ClearFlags() error {
	ctrl2, err := w.bus.ReadReg(regRTCCtrl2)
	if err != nil {
		return fmt.Errorf("reading rtc ctrl2: %w", err)
	}
	if err = w.bus.WriteReg(regRTCCtrl2, ctrl2&0b10111111); err != nil {
		return fmt.Errorf("clearing rtc alarm flag: %w", err)
	}
	if err = w.bus.WriteReg(regConfFlagAlarm1, 0); err != nil {
		return err
	}
	return w.bus.WriteReg(regConfFlagAlarm2, 0)
}

func (w *WittyPi4) ActionReason() (ActionReason, error) {
	v, err := w.bus.ReadReg(regActionReason)
	if err != nil {
		return ReasonNA, fmt.Errorf("reading action reason: %w", err)
	}
	return ActionReason(v), nil
}

// Telemetry reads input/output voltage, output current and the LM75B
// temperature sensor.
func (w *WittyPi4) Telemetry() (Telemetry, error) {
	var t Telemetry
	var err error
	if t.VoltageIn, err = w.readFixed(regVoltageInI, regVoltageInD); err != nil {
		return t, err
	}
	if t.VoltageOut, err = w.readFixed(regVoltageOutI, regVoltageOutD); err != nil {
		return t, err
	}
	if t.CurrentOut, err = w.readFixed(regCurrentOutI, regCurrentOutD); err != nil {
		return t, err
	}
	word, err := w.bus.ReadWord(regLM75BTemperature)
	if err != nil {
		return t, err
	}
	t.Temperature = float64(int16(word)) / 256
	return t, nil
}

func (w *WittyPi4) readFixed(intReg, decReg uint8) (float64, error) {
	i, err := w.bus.ReadReg(intReg)
	if err != nil {
		return 0, err
	}
	d, err := w.bus.ReadReg(decReg)
	if err != nil {
		return 0, err
	}
	return float64(i) + float64(d)/100, nil
}

// SetDefaultOn controls whether the board powers the device when power is
// applied, after delay (in units of 100ms).
func (w *WittyPi4) SetDefaultOn(on bool, delay uint8) error {
	var v uint8
	if on {
		v = 1
	}
	if err := w.bus.WriteReg(regConfDefaultOn, v); err != nil {
		return err
	}
	return w.bus.WriteReg(regConfDefaultOnDelay, delay)
}

// SetPowerCutDelay sets how long the board waits after a shutdown alarm
// before cutting power, in seconds (max 25).
func (w *WittyPi4) SetPowerCutDelay(seconds float64) error {
	v := int(seconds * 10)
	if v < 0 {
		v = 0
	}
	if v > 250 {
		v = 250
	}
	return w.bus.WriteReg(regConfPowerCutDelay, uint8(v))
}

func (w *WittyPi4) Close() error {
	return w.bus.Close()
}

var _ PowerManager = &WittyPi4{}
var _ TelemetryReader = &WittyPi4{}

// Package schedule resolves a declarative set of power windows, possibly
// relative to solar events, into concrete power decisions: whether the
// device should be on right now, and the next instants it should start or
// stop.
package schedule

import (
	"log/slog"
	"time"
)

// maxHorizonDays caps the search for the next window so that an entirely
// unresolvable schedule (e.g. solar-only entries in permanent polar night)
// cannot make a query unbounded.
const maxHorizonDays = 366

// defaultButtonDelay keeps the device on after a manual power-on when the
// configuration does not say otherwise.
const defaultButtonDelay = 10 * time.Minute

// Schedule answers power queries for a loaded configuration. It is immutable
// after construction except for RecordManualStart, which must be called
// before concurrent use; all queries are pure functions of the configuration
// and the passed reference time.
type Schedule struct {
	tz          *time.Location
	observer    *Observer
	entries     []Entry
	forceOn     bool
	buttonDelay time.Duration
	manualStart time.Time
	logger      *slog.Logger
}

// New builds a Schedule from a loaded configuration. A configuration without
// usable schedule entries forces the device on permanently.
func New(cfg Config, logger *slog.Logger) (*Schedule, error) {
	s := &Schedule{
		tz:          time.Local,
		entries:     cfg.Entries,
		forceOn:     cfg.ForceOn,
		buttonDelay: defaultButtonDelay,
		logger:      logger,
	}

	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.Warn("invalid timezone, using host timezone", "tz", cfg.Timezone, "err", err)
		} else {
			s.tz = tz
		}
	}

	switch {
	case cfg.Latitude != nil && cfg.Longitude != nil:
		obs := Observer{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}
		if !obs.valid() {
			return nil, &ParseError{Expr: obs.String(), Reason: "coordinates out of range"}
		}
		s.observer = &obs
		logger.Info("location configured", "location", obs.String())
	default:
		if obs, err := ReadGeolocation(GeolocationPath); err == nil {
			s.observer = &obs
			logger.Info("location read from geolocation file", "location", obs.String())
		} else {
			logger.Warn("no location configured, solar schedules are disabled")
		}
	}

	if cfg.ButtonDelay != 0 {
		s.buttonDelay = time.Duration(cfg.ButtonDelay)
	}

	if len(s.entries) == 0 {
		logger.Warn("no schedule entries found, forcing device on")
		s.forceOn = true
	}

	return s, nil
}

// RecordManualStart marks a manual power-on (button press, power connect) at
// the given instant. The device is then kept on for the configured button
// delay, layered on top of the schedule without mutating it.
func (s *Schedule) RecordManualStart(t time.Time) {
	s.manualStart = t
	s.logger.Info("manual power-on recorded", "at", t, "delay", s.buttonDelay)
}

func (s *Schedule) manualWindow() (interval, bool) {
	if s.manualStart.IsZero() || s.buttonDelay <= 0 {
		return interval{}, false
	}
	return interval{start: s.manualStart, stop: s.manualStart.Add(s.buttonDelay)}, true
}

// ForceOn reports whether the schedule keeps the device on unconditionally.
func (s *Schedule) ForceOn() bool {
	return s.forceOn
}

// Active reports whether the device should be powered at the given instant.
func (s *Schedule) Active(now time.Time) bool {
	if s.forceOn {
		return true
	}
	for _, iv := range s.windows(now, 1) {
		if iv.contains(now) {
			return true
		}
	}
	return false
}

// NextStartup returns the start of the earliest window strictly after now.
// The second return value is false if no window starts within the horizon.
func (s *Schedule) NextStartup(now time.Time) (time.Time, bool) {
	for days := 1; ; days *= 2 {
		if days > maxHorizonDays {
			days = maxHorizonDays
		}
		for _, iv := range s.windows(now, days) {
			if iv.start.After(now) {
				return iv.start, true
			}
		}
		if days == maxHorizonDays {
			return time.Time{}, false
		}
	}
}

// NextShutdown returns the stop of the window containing now when active, or
// the stop of the next future window otherwise. With force-on enabled there
// is never a shutdown.
func (s *Schedule) NextShutdown(now time.Time) (time.Time, bool) {
	if s.forceOn {
		return time.Time{}, false
	}
	for days := 1; ; days *= 2 {
		if days > maxHorizonDays {
			days = maxHorizonDays
		}
		for _, iv := range s.windows(now, days) {
			if iv.stop.After(now) {
				return iv.stop, true
			}
		}
		if days == maxHorizonDays {
			return time.Time{}, false
		}
	}
}

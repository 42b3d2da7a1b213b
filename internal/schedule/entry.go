package schedule

import (
	"fmt"
	"time"
)

// Entry is one schedule line: a named start/stop window. A stop that is
// earlier than its start denotes a window crossing local midnight.
type Entry struct {
	Name  string   `yaml:"name"`
	Start TimeSpec `yaml:"start"`
	Stop  TimeSpec `yaml:"stop"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (%s - %s)", e.Name, e.Start, e.Stop)
}

// interval is an entry resolved for one calendar date: a pair of absolute
// instants with stop strictly after start.
type interval struct {
	start time.Time
	stop  time.Time
}

func (iv interval) contains(t time.Time) bool {
	return !t.Before(iv.start) && t.Before(iv.stop)
}

func (s *Schedule) resolveSpec(ts TimeSpec, date time.Time) (time.Time, error) {
	if !ts.IsSolar() {
		return time.Date(date.Year(), date.Month(), date.Day(), ts.Hour, ts.Minute, 0, 0, s.tz), nil
	}
	if s.observer == nil {
		return time.Time{}, fmt.Errorf("%s: %w", ts, ErrUnresolvable)
	}
	t, err := resolveSolar(date, *s.observer, s.tz, ts.Event)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(ts.Offset), nil
}

// normalize resolves an entry for one calendar date. When the stop resolves
// at or before the start, the window crosses midnight and the stop is
// re-resolved for the next date (solar stops are recomputed, not shifted).
func (s *Schedule) normalize(e Entry, date time.Time) (interval, error) {
	start, err := s.resolveSpec(e.Start, date)
	if err != nil {
		return interval{}, err
	}
	stop, err := s.resolveSpec(e.Stop, date)
	if err != nil {
		return interval{}, err
	}
	if !stop.After(start) {
		if stop, err = s.resolveSpec(e.Stop, date.AddDate(0, 0, 1)); err != nil {
			return interval{}, err
		}
	}
	return interval{start: start, stop: stop}, nil
}

package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/sixdouglas/suncalc"
	"gopkg.in/yaml.v3"
)

// SolarEvent names a solar event usable in a time expression.
type SolarEvent string

const (
	Sunrise SolarEvent = "sunrise"
	Sunset  SolarEvent = "sunset"
	Dawn    SolarEvent = "dawn"
	Dusk    SolarEvent = "dusk"
)

var solarEventNames = map[SolarEvent]suncalc.DayTimeName{
	Sunrise: suncalc.Sunrise,
	Sunset:  suncalc.Sunset,
	Dawn:    suncalc.Dawn,
	Dusk:    suncalc.Dusk,
}

// TimeSpec is one endpoint of a schedule entry: either a fixed clock time
// ("HH:MM", interpreted in the schedule's timezone) or a solar event with a
// signed offset ("sunrise-01:00", "sunset+00:30").
type TimeSpec struct {
	Hour   int
	Minute int
	Event  SolarEvent
	Offset time.Duration
}

// IsSolar reports whether the endpoint is relative to a solar event.
func (t TimeSpec) IsSolar() bool {
	return t.Event != ""
}

func (t TimeSpec) String() string {
	if !t.IsSolar() {
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	}
	sign := "+"
	offset := t.Offset
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%s%02d:%02d", t.Event, sign, int(offset.Hours()), int(offset.Minutes())%60)
}

// ParseError indicates a malformed time expression or schedule value. It is
// surfaced at configuration load and is never recovered from silently.
type ParseError struct {
	Expr   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time expression %q: %s", e.Expr, e.Reason)
}

// ParseTimeSpec parses "HH:MM" or "(sunrise|sunset|dawn|dusk)[+-]HH:MM".
// A bare event name is accepted as shorthand for a zero offset.
func ParseTimeSpec(s string) (TimeSpec, error) {
	expr := strings.TrimSpace(s)
	if expr == "" {
		return TimeSpec{}, &ParseError{Expr: s, Reason: "empty expression"}
	}

	if expr[0] >= '0' && expr[0] <= '9' {
		hour, minute, err := parseClock(expr)
		if err != nil {
			return TimeSpec{}, &ParseError{Expr: s, Reason: "expected HH:MM"}
		}
		return TimeSpec{Hour: hour, Minute: minute}, nil
	}

	name := expr
	var offset time.Duration
	if i := strings.IndexAny(expr, "+-"); i >= 0 {
		name = expr[:i]
		hour, minute, err := parseClock(expr[i+1:])
		if err != nil {
			return TimeSpec{}, &ParseError{Expr: s, Reason: "expected HH:MM offset after " + string(expr[i])}
		}
		offset = time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
		if expr[i] == '-' {
			offset = -offset
		}
	}

	event := SolarEvent(strings.ToLower(name))
	if _, ok := solarEventNames[event]; !ok {
		return TimeSpec{}, &ParseError{Expr: s, Reason: "unknown solar event " + name}
	}
	return TimeSpec{Event: event, Offset: offset}, nil
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func (t *TimeSpec) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseTimeSpec(node.Value)
	if err == nil {
		*t = parsed
	}
	return err
}

func (t TimeSpec) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/sixdouglas/suncalc"
)

var (
	// ErrNotObservable indicates a solar event that does not occur on the
	// requested date at the configured location (polar day or night). The
	// affected entry contributes no window for that date.
	ErrNotObservable = errors.New("event not observable")

	// ErrUnresolvable indicates an astronomical expression that cannot be
	// resolved because no location is configured.
	ErrUnresolvable = errors.New("no location configured")
)

// Observer is the geographic location used for solar event computation.
type Observer struct {
	Latitude  float64
	Longitude float64
}

func (o Observer) valid() bool {
	return o.Latitude >= -90 && o.Latitude <= 90 && o.Longitude >= -180 && o.Longitude <= 180
}

func (o Observer) String() string {
	return fmt.Sprintf("%.5f, %.5f", o.Latitude, o.Longitude)
}

// resolveSolar returns the time of event on the given calendar date. The
// computation is anchored at the date's local noon: suncalc resolves the
// solar cycle nearest the instant it is given, and anchoring at midnight
// would yield the previous day's events east of UTC. During polar day or
// night suncalc produces values far outside the requested date; anything
// not within 36h of that noon is reported as not observable.
func resolveSolar(date time.Time, obs Observer, tz *time.Location, event SolarEvent) (time.Time, error) {
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, tz)
	times := suncalc.GetTimesWithObserver(noon, suncalc.Observer{
		Latitude:  obs.Latitude,
		Longitude: obs.Longitude,
		Location:  tz,
	})

	value := times[solarEventNames[event]].Value
	if value.IsZero() || value.Sub(noon) > 36*time.Hour || noon.Sub(value) > 36*time.Hour {
		return time.Time{}, fmt.Errorf("%s on %s at %s: %w",
			event, date.Format(time.DateOnly), obs, ErrNotObservable)
	}
	return value.In(tz), nil
}

package schedule

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"
)

// mergeIntervals unions the given intervals into the minimal sorted set of
// non-overlapping intervals. Intervals that touch are merged.
func mergeIntervals(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	slices.SortFunc(ivs, func(a, b interval) int {
		if c := a.start.Compare(b.start); c != 0 {
			return c
		}
		return a.stop.Compare(b.stop)
	})

	merged := make([]interval, 0, len(ivs))
	current := ivs[0]
	for _, iv := range ivs[1:] {
		if !iv.start.After(current.stop) {
			if iv.stop.After(current.stop) {
				current.stop = iv.stop
			}
			continue
		}
		merged = append(merged, current)
		current = iv
	}
	return append(merged, current)
}

// windows resolves every entry for each calendar date from the day before
// now through days days ahead, plus the manual power-on window if one was
// recorded, and returns the merged result. Entries that cannot be resolved
// for a date contribute nothing for that date.
func (s *Schedule) windows(now time.Time, days int) []interval {
	day := now.In(s.tz)
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.tz)

	raw := make([]interval, 0, (days+2)*len(s.entries)+1)
	for d := -1; d <= days; d++ {
		date := midnight.AddDate(0, 0, d)
		for _, e := range s.entries {
			iv, err := s.normalize(e, date)
			if err != nil {
				level := slog.LevelDebug
				if errors.Is(err, ErrUnresolvable) {
					level = slog.LevelWarn
				}
				s.logger.Log(context.Background(), level, "entry skipped",
					slog.String("entry", e.Name),
					slog.String("date", date.Format(time.DateOnly)),
					slog.Any("err", err),
				)
				continue
			}
			raw = append(raw, iv)
		}
	}
	if iv, ok := s.manualWindow(); ok {
		raw = append(raw, iv)
	}
	return mergeIntervals(raw)
}

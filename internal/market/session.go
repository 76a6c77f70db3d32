package market

import (
	"fmt"
	"strings"
	"time"

	"trading-desk-go/internal/config"
)

// Window is a daily trading window in a fixed location.
type Window struct {
	loc      *time.Location
	open     time.Duration
	close    time.Duration
	weekdays map[time.Weekday]bool
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	local := t.In(w.loc)
	if !w.weekdays[local.Weekday()] {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	offset := local.Sub(midnight)
	return offset >= w.open && offset < w.close
}

// Calendar maps segments to their trading windows. Segments without a window
// trade continuously.
type Calendar struct {
	windows map[string]Window
}

// NewCalendar builds a calendar from segment configuration.
func NewCalendar(segments []config.Segment) (*Calendar, error) {
	c := &Calendar{windows: make(map[string]Window)}
	for _, seg := range segments {
		if seg.Kind != "session" {
			continue
		}
		w, err := parseWindow(seg.Session)
		if err != nil {
			return nil, fmt.Errorf("could not parse session for segment %s: %w", seg.Name, err)
		}
		c.windows[seg.Name] = w
	}
	return c, nil
}

// IsOpen reports whether segment trades at now.
func (c *Calendar) IsOpen(segment string, now time.Time) bool {
	if c == nil {
		return true
	}
	w, ok := c.windows[segment]
	if !ok {
		return true
	}
	return w.Contains(now)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWindow(s config.Session) (Window, error) {
	loc := time.UTC
	if s.Timezone != "" {
		l, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return Window{}, fmt.Errorf("unknown timezone %q: %w", s.Timezone, err)
		}
		loc = l
	}
	open, err := parseClock(s.Open)
	if err != nil {
		return Window{}, err
	}
	closeAt, err := parseClock(s.Close)
	if err != nil {
		return Window{}, err
	}
	if closeAt <= open {
		return Window{}, fmt.Errorf("close %s must be after open %s", s.Close, s.Open)
	}

	days := make(map[time.Weekday]bool)
	if len(s.Weekdays) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	}
	for _, name := range s.Weekdays {
		d, ok := weekdayNames[strings.ToLower(name[:min(3, len(name))])]
		if !ok {
			return Window{}, fmt.Errorf("unknown weekday %q", name)
		}
		days[d] = true
	}
	return Window{loc: loc, open: open, close: closeAt, weekdays: days}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

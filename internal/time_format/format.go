package time_format

import (
	"errors"
	"fmt"
	"time"
)

// Class is how often a layer's imagery changes upstream.
type Class string

const (
	TenMinute Class = "ten-minute"
	Daily     Class = "daily"
	Static    Class = "static"
)

const (
	TenMinuteLayout = "2006-01-02T15:04:05Z"
	DailyLayout     = "2006-01-02"
)

var ErrInvalidTime = errors.New("invalid time string")

func ParseClass(s string) (Class, error) {
	switch Class(s) {
	case TenMinute, Daily, Static:
		return Class(s), nil
	case "10min":
		return TenMinute, nil
	default:
		return "", fmt.Errorf("unknown temporal class: %q", s)
	}
}

func (c Class) Temporal() bool {
	return c == TenMinute || c == Daily
}

// Format renders t the way GIBS expects it for class c. Static layers have no
// time axis and yield ("", false).
//
// GIBS answers a 404 with no detail for anything coarser or finer than the
// layer's granularity, so the result must be used verbatim.
func Format(t time.Time, c Class) (string, bool) {
	t = t.UTC()
	switch c {
	case TenMinute:
		return floorTenMinutes(t).Format(TenMinuteLayout), true
	case Daily:
		return t.Format(DailyLayout), true
	default:
		return "", false
	}
}

func floorTenMinutes(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), (t.Minute()/10)*10, 0, 0, time.UTC)
}

// Validate reports whether s is exactly what Format would produce for some
// instant of class c.
func Validate(s string, c Class) error {
	switch c {
	case TenMinute:
		t, err := time.Parse(TenMinuteLayout, s)
		if err != nil {
			return fmt.Errorf("%w: %q is not %s", ErrInvalidTime, s, TenMinuteLayout)
		}
		if t.Minute()%10 != 0 || t.Second() != 0 {
			return fmt.Errorf("%w: %q is not on a 10-minute boundary", ErrInvalidTime, s)
		}
		if t.Format(TenMinuteLayout) != s {
			return fmt.Errorf("%w: %q is not canonical", ErrInvalidTime, s)
		}
		return nil
	case Daily:
		t, err := time.Parse(DailyLayout, s)
		if err != nil || t.Format(DailyLayout) != s {
			return fmt.Errorf("%w: %q is not %s", ErrInvalidTime, s, DailyLayout)
		}
		return nil
	case Static:
		if s != "" {
			return fmt.Errorf("%w: static layers take no time", ErrInvalidTime)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown temporal class %q", ErrInvalidTime, c)
	}
}

// Step is the distance between two consecutive upstream time slots.
func Step(c Class) time.Duration {
	if c == TenMinute {
		return 10 * time.Minute
	}
	return 24 * time.Hour
}

// Back walks n steps into the past from t.
func Back(t time.Time, c Class, n int) time.Time {
	if c == TenMinute {
		return t.Add(-time.Duration(n) * Step(c))
	}
	return t.AddDate(0, 0, -n)
}

// IsFuture reports a selection past wall-clock now on a temporal layer.
func IsFuture(selected, now time.Time, c Class) bool {
	return c.Temporal() && selected.After(now)
}

// Advisory is the banner shown when a temporal layer is scrubbed past now.
func Advisory(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("Future time selected or no data for this time - latest available data is from %s at %s UTC",
		now.Format(DailyLayout), now.Format("15:04"))
}

// Package daterange computes the weekly, monthly and annual windows used by
// work-order listings, schedules and indicators.
package daterange

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	Weekly  Kind = "WEEKLY"
	Monthly Kind = "MONTHLY"
	Annual  Kind = "ANNUAL"
)

// ParseKind accepts a range keyword in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Weekly, Monthly, Annual:
		return k, nil
	}
	return "", fmt.Errorf("invalid range %q: expected WEEKLY, MONTHLY or ANNUAL", s)
}

// Range is inclusive on both ends; LTE is the last second of the window.
type Range struct {
	GTE time.Time `json:"gte" format:"date-time"`
	LTE time.Time `json:"lte" format:"date-time"`
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.GTE) && !t.After(r.LTE)
}

// Calendar fixes the location and first weekday the windows are computed in.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c Calendar) endOfDay(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, c.loc())
}

// Weekly returns the week enclosing the given day. Out-of-range days are
// normalised first, so day 0 is the last day of the previous month.
func (c Calendar) Weekly(year int, month time.Month, day int) Range {
	ref := time.Date(year, month, day, 0, 0, 0, 0, c.loc())
	offset := (int(ref.Weekday()) - int(c.WeekStart) + 7) % 7
	start := time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, c.loc())
	return Range{
		GTE: start,
		LTE: c.endOfDay(start.Year(), start.Month(), start.Day()+6),
	}
}

// Monthly spans the whole calendar month; day 0 of the following month is
// its last day.
func (c Calendar) Monthly(year int, month time.Month) Range {
	return Range{
		GTE: time.Date(year, month, 1, 0, 0, 0, 0, c.loc()),
		LTE: c.endOfDay(year, month+1, 0),
	}
}

func (c Calendar) Annual(year int) Range {
	return Range{
		GTE: time.Date(year, time.January, 1, 0, 0, 0, 0, c.loc()),
		LTE: c.endOfDay(year, time.December, 31),
	}
}

// For computes the window of the given kind around ref.
func (c Calendar) For(kind Kind, ref time.Time) (Range, error) {
	ref = ref.In(c.loc())
	switch kind {
	case Weekly:
		return c.Weekly(ref.Year(), ref.Month(), ref.Day()), nil
	case Monthly:
		return c.Monthly(ref.Year(), ref.Month()), nil
	case Annual:
		return c.Annual(ref.Year()), nil
	}
	return Range{}, fmt.Errorf("invalid range %q", kind)
}

// ParseDate reads YYYY-MM-DD (or a full RFC3339 timestamp) in the calendar's location.
func (c Calendar) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, c.loc()); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t.In(c.loc()), nil
}

// Package calendar decides trading days and the comparison baseline date.
package calendar

import (
	"fmt"
	"time"

	// Zone data for hosts without a system tz database.
	_ "time/tzdata"
)

// DateLayout is the canonical date key format used across tiers and URLs.
const DateLayout = "2006-01-02"

// DefaultHolidays are recurring month-day holidays.
var DefaultHolidays = []string{"01-01", "03-01", "05-05", "06-06", "08-15", "10-03", "10-09", "12-25"}

type monthDay struct {
	month time.Month
	day   int
}

// Resolver is the trading calendar. The zero value treats only weekends as non-trading.
type Resolver struct {
	loc      *time.Location
	holidays map[monthDay]struct{}
}

// NewResolver builds a resolver from MM-DD holiday strings. Dates are evaluated in loc.
func NewResolver(loc *time.Location, holidays []string) (*Resolver, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{loc: loc, holidays: make(map[monthDay]struct{}, len(holidays))}
	for _, h := range holidays {
		t, err := time.Parse("01-02", h)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", h, err)
		}
		r.holidays[monthDay{t.Month(), t.Day()}] = struct{}{}
	}
	return r, nil
}

// Location returns the zone dates are computed in.
func (r *Resolver) Location() *time.Location {
	if r == nil || r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// Date truncates t to midnight of its calendar day in the resolver's zone.
func (r *Resolver) Date(t time.Time) time.Time {
	t = t.In(r.Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.Location())
}

// DateKey formats the calendar day of t.
func (r *Resolver) DateKey(t time.Time) string {
	return r.Date(t).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD key in the resolver's zone.
func (r *Resolver) ParseDate(key string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, key, r.Location())
}

// ResolveBaselineDate returns the date whose snapshot serves as the comparison baseline
// for today. Saturday and Sunday both resolve to the preceding Friday; any other day
// resolves to the previous calendar day. Holidays do not shift the baseline.
func (r *Resolver) ResolveBaselineDate(today time.Time) time.Time {
	d := r.Date(today)
	switch d.Weekday() {
	case time.Sunday:
		return d.AddDate(0, 0, -2)
	default:
		return d.AddDate(0, 0, -1)
	}
}

// IsHoliday reports whether date falls on a configured recurring holiday.
func (r *Resolver) IsHoliday(date time.Time) bool {
	if r == nil {
		return false
	}
	d := r.Date(date)
	_, ok := r.holidays[monthDay{d.Month(), d.Day()}]
	return ok
}

// IsTradingDay reports whether date is neither a weekend nor a holiday.
func (r *Resolver) IsTradingDay(date time.Time) bool {
	if isWeekend(r.Date(date)) {
		return false
	}
	return !r.IsHoliday(date)
}

// BaselineCandidates lists the dates to try for today's baseline. A weekend date is
// never a candidate: when the resolved date falls on a weekend (Monday resolves to
// Sunday) it is resolved again, so Monday lands on the preceding Friday.
func (r *Resolver) BaselineCandidates(today time.Time) []time.Time {
	d := r.ResolveBaselineDate(today)
	for isWeekend(d) {
		d = r.ResolveBaselineDate(d)
	}
	return []time.Time{d}
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

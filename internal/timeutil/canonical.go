// Package timeutil converts stored and user-entered timestamps into instants
// in the kiosk fleet's canonical zone.
package timeutil

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // kiosks run on minimal images without zoneinfo
)

// DefaultZone is the zone naive timestamps are assumed to be in.
const DefaultZone = "America/Chicago"

// StoreLayout is the fixed-width UTC layout used for TEXT columns so that
// lexical order matches chronological order.
const StoreLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DisplayLayout matches what the kiosk screens show for reservations.
const DisplayLayout = "Mon, Jan 02 at 03:04 PM"

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadZone resolves a zone name, falling back to UTC for an empty name.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

// Parse reads raw as an instant. Values carrying an offset keep it; values
// without one are interpreted in loc.
func Parse(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Canonical is best-effort canonicalization: it returns raw rendered in loc
// as RFC 3339 and true, or raw unchanged and false when it cannot be parsed.
func Canonical(raw string, loc *time.Location) (string, bool) {
	t, err := Parse(raw, loc)
	if err != nil {
		return raw, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339), true
}

// Store renders t for a TEXT column.
func Store(t time.Time) string {
	return t.UTC().Format(StoreLayout)
}

// Load reads a value written by Store. Anything else goes through Parse with
// UTC as the naive zone.
func Load(raw string) (time.Time, error) {
	if t, err := time.Parse(StoreLayout, raw); err == nil {
		return t, nil
	}
	return Parse(raw, time.UTC)
}

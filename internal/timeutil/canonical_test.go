package timeutil

import (
	"testing"
	"time"
)

func mustZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadZone(DefaultZone)
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	return loc
}

func TestParse_NaiveUsesZone(t *testing.T) {
	loc := mustZone(t)
	got, err := Parse("2026-01-15T09:30", loc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2026, 1, 15, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParse_OffsetIsKept(t *testing.T) {
	loc := mustZone(t)
	got, err := Parse("2026-01-15T09:30:00Z", loc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equal(time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("unexpected instant: %v", got)
	}
}

func TestCanonical(t *testing.T) {
	loc := mustZone(t)

	out, ok := Canonical("2026-07-04 12:00:00.5", loc)
	if !ok {
		t.Fatal("expected canonical form for a naive timestamp")
	}
	if out != "2026-07-04T12:00:00-05:00" {
		t.Errorf("canonical: got %q", out)
	}

	out, ok = Canonical("2026-07-04T17:00:00Z", loc)
	if !ok || out != "2026-07-04T12:00:00-05:00" {
		t.Errorf("zoned canonical: got %q ok=%v", out, ok)
	}
}

func TestCanonical_MalformedFallsBackToRaw(t *testing.T) {
	loc := mustZone(t)
	out, ok := Canonical("next tuesday-ish", loc)
	if ok {
		t.Fatal("expected fallback for malformed input")
	}
	if out != "next tuesday-ish" {
		t.Errorf("fallback: got %q, want raw value", out)
	}
}

func TestStoreRoundTripSortsLexically(t *testing.T) {
	loc := mustZone(t)
	a := time.Date(2026, 3, 1, 8, 0, 0, 0, loc)
	b := a.Add(1500 * time.Millisecond)
	sa, sb := Store(a), Store(b)
	if !(sa < sb) {
		t.Errorf("expected %q < %q", sa, sb)
	}
	back, err := Load(sa)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !back.Equal(a) {
		t.Errorf("Load: got %v, want %v", back, a)
	}
}

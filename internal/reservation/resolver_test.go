package reservation

import (
	"testing"
	"time"

	"github.com/crucial707/keykiosk/internal/models"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

func intPtr(v int) *int { return &v }

func TestIsActive_Boundaries(t *testing.T) {
	loc, err := timeutil.LoadZone(timeutil.DefaultZone)
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	d := time.Date(2026, 5, 10, 14, 0, 0, 0, loc)
	r := models.Reservation{AssetID: 1, ReservedAt: d, LeadHours: 6}
	start := d.Add(-6 * time.Hour)

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"one second before window", start.Add(-time.Second), false},
		{"window start inclusive", start, true},
		{"inside window", d.Add(-time.Minute), true},
		{"target exclusive", d, false},
		{"after target", d.Add(time.Hour), false},
	}
	for _, c := range cases {
		if got := IsActive(r, c.at); got != c.want {
			t.Errorf("%s: IsActive(%v) = %v, want %v", c.name, c.at, got, c.want)
		}
	}
}

func TestIsActive_ZoneIndependent(t *testing.T) {
	loc, err := timeutil.LoadZone(timeutil.DefaultZone)
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	d := time.Date(2026, 5, 10, 14, 0, 0, 0, loc)
	r := models.Reservation{ReservedAt: d, LeadHours: 1}
	if !IsActive(r, d.Add(-30*time.Minute).UTC()) {
		t.Error("expected active when compared in UTC")
	}
}

func TestActive_FirstMatchForAsset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	list := []models.Reservation{
		{ID: 1, AssetID: 2, ReservedAt: now.Add(time.Hour), LeadHours: 24},
		{ID: 2, AssetID: 1, ReservedAt: now.Add(48 * time.Hour), LeadHours: 24},
		{ID: 3, AssetID: 1, ReservedAt: now.Add(2 * time.Hour), LeadHours: 24},
		{ID: 4, AssetID: 1, ReservedAt: now.Add(3 * time.Hour), LeadHours: 24},
	}
	got := Active(list, 1, now)
	if got == nil || got.ID != 3 {
		t.Fatalf("Active: got %+v, want reservation 3", got)
	}
	if Active(list, 9, now) != nil {
		t.Error("expected no reservation for unknown asset")
	}
	idx := ActiveByAsset(list, now)
	if len(idx) != 2 || idx[1].ID != 3 || idx[2].ID != 1 {
		t.Errorf("ActiveByAsset: %+v", idx)
	}
}

func TestPartition(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	list := []models.Reservation{
		{ID: 1, ReservedAt: now.Add(-time.Hour)},
		{ID: 2, ReservedAt: now},
		{ID: 3, ReservedAt: now.Add(time.Second), LeadHours: 0},
	}
	past, upcoming := Partition(list, now)
	if len(past) != 2 || past[0].ID != 1 || past[1].ID != 2 {
		t.Errorf("past: %+v", past)
	}
	if len(upcoming) != 1 || upcoming[0].ID != 3 {
		t.Errorf("upcoming: %+v", upcoming)
	}
}

func TestConflict(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	holder := models.User{ID: 7, CardID: "C7", FirstName: "Ana", LastName: "Diaz"}
	other := models.User{ID: 8, CardID: "C8", FirstName: "Bo", LastName: "Lee"}

	byUser := []models.Reservation{{AssetID: 1, UserID: intPtr(7), ReservedAt: now.Add(time.Hour), LeadHours: 2}}
	if Conflict(byUser, 1, holder, now) != nil {
		t.Error("reserving user should not conflict")
	}
	if Conflict(byUser, 1, other, now) == nil {
		t.Error("other user should conflict")
	}

	byName := []models.Reservation{{AssetID: 1, ReservedForName: "ana diaz", ReservedAt: now.Add(time.Hour), LeadHours: 2}}
	if Conflict(byName, 1, holder, now) != nil {
		t.Error("matching free-text name should not conflict")
	}
	if Conflict(byName, 1, other, now) == nil {
		t.Error("non-matching free-text name should conflict")
	}

	byCard := []models.Reservation{{AssetID: 1, UserCard: "c8", ReservedAt: now.Add(time.Hour), LeadHours: 2}}
	if Conflict(byCard, 1, other, now) != nil {
		t.Error("card match should not conflict")
	}
}

func TestStatuses(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assets := []models.Asset{
		{ID: 1, Code: "T10", Name: "Truck 10", Category: "Vehicle"},
		{ID: 2, Code: "T2", Name: "Truck 2", Category: "Vehicle"},
		{ID: 3, Code: "L1", Name: "Lift", Category: "Equipment"},
	}
	open := []models.CheckoutRecord{{ID: 9, AssetID: 1, UserName: "Ana Diaz"}}
	list := []models.Reservation{
		{ID: 4, AssetID: 2, ReservedForName: "Bo Lee", ReservedAt: now.Add(time.Hour), LeadHours: 2},
		{ID: 5, AssetID: 3, ReservedForName: "Later", ReservedAt: now.Add(48 * time.Hour), LeadHours: 2},
	}

	got := Statuses(assets, open, list, now)
	if len(got) != 3 {
		t.Fatalf("got %d statuses", len(got))
	}
	if got[0].Code != "L1" || got[1].Code != "T2" || got[2].Code != "T10" {
		t.Errorf("order: %s %s %s", got[0].Code, got[1].Code, got[2].Code)
	}
	if got[0].Reservation != nil {
		t.Error("reservation outside its window is shown")
	}
	if got[1].Reservation == nil || got[1].Reservation.ID != 4 {
		t.Errorf("T2 reservation: %+v", got[1].Reservation)
	}
	if got[2].Available() || got[2].Holder.ID != 9 {
		t.Errorf("T10 holder: %+v", got[2].Holder)
	}
}

package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScheduleDocumentLegacyDecode(t *testing.T) {
	legacy := `[{"id":1,"time":"9am-12pm","shift":"Morning","volunteers":[{"name":"Alice","email":"a@x.org","username":"alice"}]}]`

	var doc ScheduleDocument
	if err := json.Unmarshal([]byte(legacy), &doc); err != nil {
		t.Fatalf("legacy decode failed: %v", err)
	}

	if len(doc.Shifts) != 1 {
		t.Fatalf("expected 1 shift, got %d", len(doc.Shifts))
	}
	if doc.Shifts[0].Name != "Morning" {
		t.Errorf("expected shift name Morning, got %q", doc.Shifts[0].Name)
	}
	if doc.GeneralVolunteers == nil || len(doc.GeneralVolunteers) != 0 {
		t.Errorf("expected empty general_volunteers, got %v", doc.GeneralVolunteers)
	}
}

func TestScheduleDocumentCurrentDecode(t *testing.T) {
	current := `{"shifts":[{"id":2,"time":"1pm-4pm","shift":"Afternoon","volunteers":[]}],"general_volunteers":[{"name":"Bob","email":"","username":"bob"}]}`

	var doc ScheduleDocument
	if err := json.Unmarshal([]byte(current), &doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(doc.Shifts) != 1 || doc.Shifts[0].ID != 2 {
		t.Fatalf("unexpected shifts: %+v", doc.Shifts)
	}
	if len(doc.GeneralVolunteers) != 1 || doc.GeneralVolunteers[0].Username != "bob" {
		t.Fatalf("unexpected general volunteers: %+v", doc.GeneralVolunteers)
	}
}

func TestNextShiftIDNeverReuses(t *testing.T) {
	doc := ScheduleDocument{Shifts: []Shift{{ID: 1}, {ID: 3}}}

	if got := doc.NextShiftID(); got != 4 {
		t.Fatalf("expected next id 4, got %d", got)
	}
	doc.Shifts = append(doc.Shifts, Shift{ID: doc.NextShiftID()})

	// Remove shift 3; the next id must still move forward.
	doc.Shifts = []Shift{doc.Shifts[0], doc.Shifts[2]}
	if got := doc.NextShiftID(); got != 5 {
		t.Errorf("expected next id 5 after removing id 3, got %d", got)
	}
}

func TestNextShiftIDEmptyDocument(t *testing.T) {
	var doc ScheduleDocument
	if got := doc.NextShiftID(); got != 1 {
		t.Errorf("expected first id 1, got %d", got)
	}
}

func TestValidateDuplicateShiftID(t *testing.T) {
	doc := ScheduleDocument{Shifts: []Shift{{ID: 1}, {ID: 1}}}
	if err := doc.Validate(); err == nil {
		t.Error("expected error for duplicate shift id")
	}
}

func TestValidateDuplicateUsername(t *testing.T) {
	doc := ScheduleDocument{
		Shifts: []Shift{
			{ID: 1, Volunteers: []Commitment{{Username: "JSmith"}}},
		},
		GeneralVolunteers: []Commitment{{Username: "jsmith"}},
	}
	if err := doc.Validate(); err == nil {
		t.Error("expected error for username in two commitments (case-insensitive)")
	}
}

func TestValidateEmptyUsernamesAllowed(t *testing.T) {
	doc := ScheduleDocument{
		Shifts: []Shift{
			{ID: 1, Volunteers: []Commitment{{Name: "Walk-in"}, {Name: "Walk-in 2"}}},
		},
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("nameless commitments should not collide: %v", err)
	}
}

func TestIsOpenExcludedDate(t *testing.T) {
	s := ScheduleSettings{
		SchedulingEnabled: true,
		OpenDays:          []int{1, 2, 3, 4, 5},
		ExcludedDates:     []string{"2026-03-16"},
	}

	monday, err := ParseDate("2026-03-16")
	if err != nil {
		t.Fatal(err)
	}
	if monday.Weekday() != time.Monday {
		t.Fatalf("test date should be a Monday, got %v", monday.Weekday())
	}
	if s.IsOpen(monday, "2026-03-16") {
		t.Error("excluded Monday should be closed")
	}

	nextMonday, _ := ParseDate("2026-03-23")
	if !s.IsOpen(nextMonday, "2026-03-23") {
		t.Error("a plain open Monday should be open")
	}

	sunday, _ := ParseDate("2026-03-15")
	if s.IsOpen(sunday, "2026-03-15") {
		t.Error("Sunday is not an open day")
	}
}

func TestMaterializeClearsVolunteers(t *testing.T) {
	s := ScheduleSettings{
		UseDefaultSchedule: true,
		DefaultSchedule: []Shift{
			{ID: 1, Time: "9am-12pm", Name: "Morning", Volunteers: []Commitment{{Username: "stale"}}},
			{Time: "1pm-4pm", Name: "Afternoon"},
		},
	}

	doc := s.Materialize()
	if len(doc.Shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(doc.Shifts))
	}
	for _, sh := range doc.Shifts {
		if len(sh.Volunteers) != 0 {
			t.Errorf("materialized shift %d should start with no volunteers", sh.ID)
		}
	}
	// An id-less template entry falls back to its position.
	if doc.Shifts[1].ID != 2 {
		t.Errorf("expected positional id 2, got %d", doc.Shifts[1].ID)
	}
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultScheduleSettings()
	if err := s.Validate(); err != nil {
		t.Errorf("default settings should validate: %v", err)
	}

	s.OpenDays = []int{7}
	if err := s.Validate(); err == nil {
		t.Error("expected error for weekday 7")
	}

	s = DefaultScheduleSettings()
	s.ExcludedDates = []string{"03/16/2026"}
	if err := s.Validate(); err == nil {
		t.Error("expected error for non-ISO excluded date")
	}

	s = DefaultScheduleSettings()
	s.DefaultSchedule = []Shift{{ID: 1}, {ID: 1}}
	if err := s.Validate(); err == nil {
		t.Error("expected error for duplicate template ids")
	}
}

func TestUsernames(t *testing.T) {
	doc := ScheduleDocument{
		Shifts: []Shift{
			{ID: 1, Volunteers: []Commitment{{Username: "Alice"}, {Username: ""}}},
		},
		GeneralVolunteers: []Commitment{{Username: "bob"}},
	}

	got := doc.Usernames()
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("unexpected usernames: %v", got)
	}
}

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates. Dates are wall-clock
// values as entered by the caller; they are never normalized to UTC.
const DateLayout = "2006-01-02"

// ParseDate validates a yyyy-MM-dd date key.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want yyyy-MM-dd)", s)
	}
	return t, nil
}

// Commitment is one volunteer signup, either inside a shift or in a
// day's general volunteer list.
type Commitment struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Shift is a named, timed volunteer slot within one pantry's single-day
// schedule. The same shape doubles as a template entry in
// ScheduleSettings.DefaultSchedule.
type Shift struct {
	ID         int          `json:"id"`
	Time       string       `json:"time"`
	Name       string       `json:"shift"`
	Volunteers []Commitment `json:"volunteers"`
}

// ScheduleDocument is one pantry's schedule for one date.
type ScheduleDocument struct {
	Shifts            []Shift      `json:"shifts"`
	GeneralVolunteers []Commitment `json:"general_volunteers"`
}

// scheduleDocumentAlias avoids UnmarshalJSON recursion.
type scheduleDocumentAlias ScheduleDocument

// UnmarshalJSON decodes both the current object shape and the legacy
// shape where a schedule was stored as a bare array of shifts. The
// legacy form decodes to {shifts: array, general_volunteers: []}.
func (d *ScheduleDocument) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var shifts []Shift
		if err := json.Unmarshal(data, &shifts); err != nil {
			return err
		}
		d.Shifts = shifts
		d.GeneralVolunteers = []Commitment{}
		return nil
	}

	var alias scheduleDocumentAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*d = ScheduleDocument(alias)
	return nil
}

// Normalize replaces nil slices with empty ones so the document always
// marshals to the current shape.
func (d *ScheduleDocument) Normalize() {
	if d.Shifts == nil {
		d.Shifts = []Shift{}
	}
	for i := range d.Shifts {
		if d.Shifts[i].Volunteers == nil {
			d.Shifts[i].Volunteers = []Commitment{}
		}
	}
	if d.GeneralVolunteers == nil {
		d.GeneralVolunteers = []Commitment{}
	}
}

// NextShiftID allocates an id for a new shift: max of the existing ids
// (0 for an empty document) plus one. Ids grow monotonically per
// document and are never reused, even after a shift is removed.
func (d *ScheduleDocument) NextShiftID() int {
	maxID := 0
	for _, s := range d.Shifts {
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	return maxID + 1
}

// Validate checks the purely structural rules of a document: positive
// unique shift ids, and each username appearing in at most one
// commitment across all shifts and the general list. Username matching
// is case-insensitive.
func (d *ScheduleDocument) Validate() error {
	ids := make(map[int]bool, len(d.Shifts))
	for _, s := range d.Shifts {
		if s.ID <= 0 {
			return fmt.Errorf("shift id must be positive, got %d", s.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate shift id %d", s.ID)
		}
		ids[s.ID] = true
	}

	seen := make(map[string]bool)
	check := func(c Commitment) error {
		u := strings.ToLower(strings.TrimSpace(c.Username))
		if u == "" {
			return nil
		}
		if seen[u] {
			return fmt.Errorf("user %q appears more than once in this schedule", c.Username)
		}
		seen[u] = true
		return nil
	}

	for _, s := range d.Shifts {
		for _, c := range s.Volunteers {
			if err := check(c); err != nil {
				return err
			}
		}
	}
	for _, c := range d.GeneralVolunteers {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

// Usernames returns the distinct non-empty usernames committed in the
// document, lowercased.
func (d *ScheduleDocument) Usernames() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(c Commitment) {
		u := strings.ToLower(strings.TrimSpace(c.Username))
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, s := range d.Shifts {
		for _, c := range s.Volunteers {
			add(c)
		}
	}
	for _, c := range d.GeneralVolunteers {
		add(c)
	}
	return out
}

// ScheduleSettings is a pantry's scheduling policy. Weekdays use
// 0=Sunday through 6=Saturday.
type ScheduleSettings struct {
	SchedulingEnabled  bool     `json:"schedulingEnabled"`
	OpenDays           []int    `json:"openDays"`
	ExcludedDates      []string `json:"excludedDates"`
	UseDefaultSchedule bool     `json:"useDefaultSchedule"`
	DefaultSchedule    []Shift  `json:"defaultSchedule"`
}

// DefaultScheduleSettings returns the policy a pantry starts with:
// scheduling enabled Monday through Friday, no exclusions, no template.
func DefaultScheduleSettings() ScheduleSettings {
	return ScheduleSettings{
		SchedulingEnabled:  true,
		OpenDays:           []int{1, 2, 3, 4, 5},
		ExcludedDates:      []string{},
		UseDefaultSchedule: false,
		DefaultSchedule:    []Shift{},
	}
}

// Validate checks that open days are valid weekdays, excluded dates
// parse, and the template carries positive unique shift ids.
func (s *ScheduleSettings) Validate() error {
	seenDays := make(map[int]bool)
	for _, d := range s.OpenDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("open day %d out of range 0-6", d)
		}
		if seenDays[d] {
			return fmt.Errorf("open day %d listed twice", d)
		}
		seenDays[d] = true
	}
	for _, date := range s.ExcludedDates {
		if _, err := ParseDate(date); err != nil {
			return fmt.Errorf("excluded date: %w", err)
		}
	}
	ids := make(map[int]bool, len(s.DefaultSchedule))
	for _, sh := range s.DefaultSchedule {
		if sh.ID <= 0 {
			return fmt.Errorf("template shift id must be positive, got %d", sh.ID)
		}
		if ids[sh.ID] {
			return fmt.Errorf("duplicate template shift id %d", sh.ID)
		}
		ids[sh.ID] = true
	}
	return nil
}

// IsOpen reports whether a date passes the open-day and exclusion
// policy. An excluded date closes an otherwise-open weekday for that
// one date only.
func (s *ScheduleSettings) IsOpen(date time.Time, dateKey string) bool {
	open := false
	weekday := int(date.Weekday()) // Go weekdays already count 0=Sunday
	for _, d := range s.OpenDays {
		if d == weekday {
			open = true
			break
		}
	}
	if !open {
		return false
	}
	for _, ex := range s.ExcludedDates {
		if ex == dateKey {
			return false
		}
	}
	return true
}

// Materialize builds a fresh document from the default template with
// every volunteer list empty. Template ids are kept; entries without an
// id fall back to their position.
func (s *ScheduleSettings) Materialize() ScheduleDocument {
	shifts := make([]Shift, 0, len(s.DefaultSchedule))
	for i, t := range s.DefaultSchedule {
		id := t.ID
		if id <= 0 {
			id = i + 1
		}
		shifts = append(shifts, Shift{
			ID:         id,
			Time:       t.Time,
			Name:       t.Name,
			Volunteers: []Commitment{},
		})
	}
	return ScheduleDocument{
		Shifts:            shifts,
		GeneralVolunteers: []Commitment{},
	}
}

// ConflictResult is the answer to "does this user already hold a
// commitment elsewhere on this date".
type ConflictResult struct {
	Scheduled  bool   `json:"scheduled"`
	PantryName string `json:"pantry_name,omitempty"`
	PantryID   uint   `json:"pantry_id,omitempty"`
}

// UserCommitment is one entry in a volunteer's cross-pantry week view.
type UserCommitment struct {
	PantryID   uint   `json:"pantry_id"`
	PantryName string `json:"pantry_name"`
	Date       string `json:"date"`
	Shift      string `json:"shift"`
	Time       string `json:"time"`
}

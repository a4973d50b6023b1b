package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Weekday letters used throughout the timetable (Korean single-letter form).
const (
	DayMon = "월"
	DayTue = "화"
	DayWed = "수"
	DayThu = "목"
	DayFri = "금"
	DaySat = "토"
	DaySun = "일"
)

// Period bounds. A period is one of twelve fixed class time blocks per day.
const (
	PeriodMin = 1
	PeriodMax = 12
)

// PeriodStartHour anchors period 1; each period spans one hour.
const PeriodStartHour = 9

// PeriodClock renders a period as its wall-clock start time, e.g. 1 -> "09:00".
func PeriodClock(period int) string {
	return fmt.Sprintf("%02d:00", PeriodStartHour+period-1)
}

// ValidDay reports whether day is one of the supported weekday letters.
func ValidDay(day string) bool {
	switch day {
	case DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun:
		return true
	default:
		return false
	}
}

// ScheduleSlot is a single weekly time range: one day plus an inclusive
// period range. Callers must guarantee Start <= End.
type ScheduleSlot struct {
	Day   string `json:"day"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Overlaps reports whether two slots share a day and intersect in time.
// Period ranges are inclusive on both ends.
func (s ScheduleSlot) Overlaps(o ScheduleSlot) bool {
	return s.Day == o.Day && s.Start <= o.End && s.End >= o.Start
}

// ScheduleSlots is stored as a JSONB column on courses.
type ScheduleSlots []ScheduleSlot

// Value implements driver.Valuer for JSONB persistence.
func (s ScheduleSlots) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB persistence.
func (s *ScheduleSlots) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule slots type %T", src)
	}
	return json.Unmarshal(data, s)
}

// CourseSchedule is the wire form of a course timetable. Either the canonical
// Slots list is set, or the legacy shorthand (one day string possibly joining
// several days, plus a single period range applied to each of them).
type CourseSchedule struct {
	Slots []ScheduleSlot `json:"slots,omitempty"`

	// Legacy shorthand, e.g. Day "월/수", Start 1, End 2.
	Day   string `json:"day,omitempty"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
}

// Normalize expands a schedule into the canonical slot list. The legacy
// shorthand splits its day string on "/" and "," and applies the single
// period range to every named day. Canonical slots win when both are present.
func (cs CourseSchedule) Normalize() []ScheduleSlot {
	if len(cs.Slots) > 0 {
		return cs.Slots
	}
	if cs.Day == "" {
		return nil
	}

	days := strings.FieldsFunc(cs.Day, func(r rune) bool {
		return r == '/' || r == ','
	})
	slots := make([]ScheduleSlot, 0, len(days))
	for _, day := range days {
		day = strings.TrimSpace(day)
		if day == "" {
			continue
		}
		slots = append(slots, ScheduleSlot{Day: day, Start: cs.Start, End: cs.End})
	}
	return slots
}

// SlotPair records one colliding slot combination in a conflict report.
type SlotPair struct {
	Candidate ScheduleSlot `json:"candidate"`
	Busy      ScheduleSlot `json:"busy"`
}

// CourseConflict names a busy course that collides with the candidate,
// including every colliding slot pair.
type CourseConflict struct {
	CourseID string     `json:"course_id"`
	Title    string     `json:"title"`
	Pairs    []SlotPair `json:"pairs"`
}

// BusyCourse pairs a course identity with its schedule for conflict checks.
type BusyCourse struct {
	CourseID string         `json:"course_id"`
	Title    string         `json:"title"`
	Schedule CourseSchedule `json:"schedule"`
}
